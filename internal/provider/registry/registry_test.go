package registry_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/livegpt/internal/domain"
	"github.com/davidbz/livegpt/internal/provider/echo"
	"github.com/davidbz/livegpt/internal/provider/openai"
	"github.com/davidbz/livegpt/internal/provider/registry"
)

// stubProvider serves a fixed model list plus anything matching prefix.
type stubProvider struct {
	name   string
	models []string
	prefix string
}

func (s *stubProvider) Complete(context.Context, *domain.CompletionRequest) (string, error) {
	return "", nil
}

func (s *stubProvider) OpenStream(ctx context.Context, _ *domain.CompletionRequest) (domain.FrameStream, error) {
	return echo.NewFrameStream(ctx, nil, 0), nil
}

func (s *stubProvider) Name() string {
	return s.name
}

func (s *stubProvider) IsModelSupported(_ context.Context, model string) bool {
	for _, m := range s.models {
		if m == model {
			return true
		}
	}
	return s.prefix != "" && len(model) > len(s.prefix) && model[:len(s.prefix)] == s.prefix
}

func (s *stubProvider) SupportedModels(context.Context) []string {
	return s.models
}

func TestRegistry_Register(t *testing.T) {
	t.Run("should register provider successfully", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		require.NoError(t, reg.Register(ctx, &stubProvider{name: "test-provider"}))

		registered, err := reg.Get(ctx, "test-provider")
		require.NoError(t, err)
		require.Equal(t, "test-provider", registered.Name())
	})

	t.Run("should return error when provider is nil", func(t *testing.T) {
		err := registry.NewRegistry().Register(context.Background(), nil)

		require.ErrorContains(t, err, "provider cannot be nil")
	})

	t.Run("should return error when provider name is empty", func(t *testing.T) {
		err := registry.NewRegistry().Register(context.Background(), &stubProvider{})

		require.ErrorContains(t, err, "provider name cannot be empty")
	})

	t.Run("should return error when provider already registered", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		require.NoError(t, reg.Register(ctx, &stubProvider{name: "test-provider"}))

		err := reg.Register(ctx, &stubProvider{name: "test-provider"})
		require.ErrorContains(t, err, "already registered")
	})
}

func TestRegistry_Get(t *testing.T) {
	t.Run("should return error when provider name is empty", func(t *testing.T) {
		_, err := registry.NewRegistry().Get(context.Background(), "")

		require.ErrorContains(t, err, "provider name cannot be empty")
	})

	t.Run("should return error when provider not found", func(t *testing.T) {
		_, err := registry.NewRegistry().Get(context.Background(), "nonexistent")

		require.ErrorContains(t, err, "not found")
	})
}

func TestRegistry_List(t *testing.T) {
	t.Run("should return empty list when no providers registered", func(t *testing.T) {
		providers, err := registry.NewRegistry().List(context.Background())

		require.NoError(t, err)
		require.NotNil(t, providers)
		require.Empty(t, providers)
	})

	t.Run("should return registered providers sorted", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		for _, name := range []string{"provider3", "provider1", "provider2"} {
			require.NoError(t, reg.Register(ctx, &stubProvider{name: name}))
		}

		providers, err := reg.List(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"provider1", "provider2", "provider3"}, providers)
	})
}

func TestRegistry_GetByModel(t *testing.T) {
	ctx := context.Background()

	openaiProvider, err := openai.NewProvider(openai.Config{BaseURL: "https://api.openai.com/v1"})
	require.NoError(t, err)

	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(ctx, openaiProvider))
	require.NoError(t, reg.Register(ctx, echo.NewProvider()))

	tests := []struct {
		model    string
		provider string
	}{
		{model: "gpt-4", provider: "openai"},
		{model: "gpt-3.5-turbo", provider: "openai"},
		{model: "gpt-4-0613", provider: "openai"},
		{model: "echo4", provider: "echo"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			provider, err := reg.GetByModel(ctx, tt.model)
			require.NoError(t, err)
			require.Equal(t, tt.provider, provider.Name())
		})
	}

	t.Run("should fail for unknown models", func(t *testing.T) {
		_, err := reg.GetByModel(ctx, "claude-2")
		require.ErrorContains(t, err, "no provider found")
	})

	t.Run("should fail for an empty model", func(t *testing.T) {
		_, err := reg.GetByModel(ctx, "")
		require.ErrorContains(t, err, "model cannot be empty")
	})

	t.Run("should keep the first owner of a model", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.Register(ctx, &stubProvider{name: "primary", models: []string{"shared"}}))
		require.NoError(t, reg.Register(ctx, &stubProvider{name: "secondary", models: []string{"shared", "own"}}))

		provider, err := reg.GetByModel(ctx, "shared")
		require.NoError(t, err)
		require.Equal(t, "primary", provider.Name())

		provider, err = reg.GetByModel(ctx, "own")
		require.NoError(t, err)
		require.Equal(t, "secondary", provider.Name())
	})

	t.Run("should fall back in registration order", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.Register(ctx, &stubProvider{name: "b", prefix: "ft:"}))
		require.NoError(t, reg.Register(ctx, &stubProvider{name: "a", prefix: "ft:"}))

		provider, err := reg.GetByModel(ctx, "ft:custom")
		require.NoError(t, err)
		require.Equal(t, "b", provider.Name())
	})
}

func TestRegistry_Concurrent(t *testing.T) {
	t.Run("should handle concurrent registrations safely", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				provider := &stubProvider{name: fmt.Sprintf("p%d", idx), models: []string{fmt.Sprintf("m%d", idx)}}
				_ = reg.Register(ctx, provider)
				_, _ = reg.GetByModel(ctx, "m0")
			}(i)
		}
		wg.Wait()

		providers, err := reg.List(ctx)
		require.NoError(t, err)
		require.Len(t, providers, 10)
	})
}
