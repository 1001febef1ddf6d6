package openai

// Config contains OpenAI provider configuration.
// Fields map to OpenAI SDK options for single-shot calls:
//   - APIKey: default credential when a request carries none of its own
//   - BaseURL: Maps to option.WithBaseURL() and prefixes the streaming endpoint
//   - Timeout: Maps to option.WithRequestTimeout() (in seconds); streams are not bounded
//   - MaxRetries: Maps to option.WithMaxRetries()
type Config struct {
	APIKey     string `env:"OPENAI_API_KEY"`
	BaseURL    string `env:"OPENAI_BASE_URL"    envDefault:"https://api.openai.com/v1"`
	Timeout    int    `env:"OPENAI_TIMEOUT"     envDefault:"60"`
	MaxRetries int    `env:"OPENAI_MAX_RETRIES" envDefault:"3"`
}
