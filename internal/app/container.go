// Package app assembles the dependency graph shared by the server and the CLI.
package app

import (
	"context"
	"fmt"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/livegpt/internal/config"
	"github.com/davidbz/livegpt/internal/domain"
	"github.com/davidbz/livegpt/internal/http"
	"github.com/davidbz/livegpt/internal/http/middleware"
	"github.com/davidbz/livegpt/internal/observability"
	"github.com/davidbz/livegpt/internal/provider/echo"
	"github.com/davidbz/livegpt/internal/provider/openai"
	"github.com/davidbz/livegpt/internal/provider/registry"
	"github.com/davidbz/livegpt/internal/store/memory"
	"github.com/davidbz/livegpt/internal/store/redis"
	"github.com/davidbz/livegpt/internal/trimmer"
)

// BuildContainer wires configuration, providers, domain services and the HTTP layer.
func BuildContainer(loadConfig func() *config.Config) (*dig.Container, error) {
	container := dig.New()

	steps := []struct {
		name        string
		constructor interface{}
	}{
		{"config", loadConfig},
		{"config dependencies", config.ParseDependenciesConfig},
		{"logger", observability.InitLogger},
		{"event publisher", func(logger *zap.Logger) domain.EventPublisher {
			return observability.NewEventBus(logger)
		}},
		{"registry", provideRegistry},
		{"conversation store", provideConversationStore},
		{"history curator", func() *domain.HistoryCurator { return domain.NewHistoryCurator(nil) }},
		{"trimmer factory", func() domain.TrimmerFactory { return trimmer.Factory }},
		{"chat service", domain.NewChatService},
		{"conversation service", domain.NewConversationService},
		{"middleware", middleware.BuildMiddlewareChain},
		{"HTTP handler", http.NewHandler},
		{"HTTP server", http.NewServer},
	}

	for _, step := range steps {
		if err := container.Provide(step.constructor); err != nil {
			return nil, fmt.Errorf("failed to provide %s: %w", step.name, err)
		}
	}

	return container, nil
}

// provideRegistry registers every provider. OpenAI needs no credential up
// front because each request carries its own.
func provideRegistry(cfg *openai.Config) (domain.ProviderRegistry, error) {
	ctx := context.Background()
	reg := registry.NewRegistry()

	openaiProvider, err := openai.NewProvider(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI provider: %w", err)
	}

	for _, provider := range []domain.Provider{openaiProvider, echo.NewProvider()} {
		if err := reg.Register(ctx, provider); err != nil {
			return nil, fmt.Errorf("failed to register %s provider: %w", provider.Name(), err)
		}
	}

	return reg, nil
}

// provideConversationStore uses Redis when configured and memory otherwise.
func provideConversationStore(cfg *redis.Config) (domain.ConversationStore, error) {
	if cfg.Addr == "" {
		return memory.NewConversationStore(), nil
	}

	client, err := redis.NewClient(context.Background(), *cfg)
	if err != nil {
		return nil, err
	}

	return redis.NewConversationStore(client, cfg.TTL), nil
}
