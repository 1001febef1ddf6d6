package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/davidbz/livegpt/internal/app"
	"github.com/davidbz/livegpt/internal/config"
	"github.com/davidbz/livegpt/internal/domain"
	"github.com/davidbz/livegpt/internal/observability"
)

type options struct {
	model        string
	temperature  float64
	systemPrompt string
	maxTokens    int
	apiKey       string
	verbose      bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet binds the command line flags to opts, defaulting them from cfg.
func newFlagSet(cfg *config.Config, opts *options) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("livegpt-ask", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.model, "model", "m", cfg.Chat.DefaultModel, "model to ask; echo4 answers offline but an API key is still required")
	flagSet.Float64VarP(&opts.temperature, "temperature", "t", cfg.Chat.DefaultTemperature, "sampling temperature")
	flagSet.StringVar(&opts.systemPrompt, "system-prompt", "", "system prompt template; {{ datetime }} is replaced with the local time")
	flagSet.IntVar(&opts.maxTokens, "max-tokens", cfg.Chat.MaxContextTokens, "context token budget, 0 disables trimming")
	flagSet.StringVar(&opts.apiKey, "api-key", cfg.OpenAI.APIKey, "API key (defaults to OPENAI_API_KEY)")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "write structured logs to stderr")
	return flagSet
}

func run() error {
	cfg := config.Load()

	var opts options
	flagSet := newFlagSet(cfg, &opts)

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	prompt, err := readPrompt(flagSet.Args(), os.Stdin)
	if err != nil {
		return err
	}

	cfg.Chat.MaxContextTokens = opts.maxTokens

	container, err := app.BuildContainer(func() *config.Config { return cfg })
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}

	if !opts.verbose {
		if err := container.Decorate(func(*zap.Logger) *zap.Logger {
			nop := zap.NewNop()
			observability.SetLogger(nop)
			return nop
		}); err != nil {
			return fmt.Errorf("failed to silence logger: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return container.Invoke(func(chat *domain.ChatService) error {
		return ask(ctx, chat, os.Stdout, prompt, domain.ParameterSet{
			APIKey:              opts.apiKey,
			Model:               opts.model,
			Temperature:         opts.temperature,
			InitialSystemPrompt: opts.systemPrompt,
		})
	})
}

// ask streams one answer to out, writing only the newly arrived suffix of
// each accumulated snapshot. Cancelling ctx cancels the session.
func ask(ctx context.Context, chat *domain.ChatService, out io.Writer, prompt string, params domain.ParameterSet) error {
	handle, err := chat.StartStreamingCompletion(ctx, []domain.Message{
		{Role: domain.RoleUser, Content: prompt},
	}, params)
	if err != nil {
		return err
	}

	var printed int
	for event := range handle.Events() {
		switch event.Type {
		case domain.EventData:
			if len(event.Text) > printed {
				fmt.Fprint(out, event.Text[printed:])
				printed = len(event.Text)
			}
		case domain.EventError:
			fmt.Fprintln(out)
			return errors.New(event.Message)
		case domain.EventDone:
			fmt.Fprintln(out)
		}
	}

	if handle.State() == domain.SessionCancelled {
		fmt.Fprintln(out)
		return context.Canceled
	}
	return nil
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	data, err := io.ReadAll(bufio.NewReader(stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}

	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("a prompt is required, as arguments or on stdin")
	}
	return prompt, nil
}
