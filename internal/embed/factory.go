package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ProviderType selects which embedder implementation to construct.
type ProviderType string

const (
	// ProviderOllama uses Ollama's HTTP API for embeddings.
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses the dependency-free hash-based embedder.
	ProviderStatic ProviderType = "static"
)

// NewEmbedder builds an embedder for provider/model, honoring a
// DOCRAG_EMBEDDER environment override. Query embedding caching is
// enabled by default; set DOCRAG_EMBED_CACHE=false to disable it.
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	if env := strings.ToLower(os.Getenv("DOCRAG_EMBEDDER")); env != "" {
		provider = ProviderType(env)
	}

	var embedder Embedder
	var err error

	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	case ProviderOllama, "":
		cfg := DefaultOllamaConfig()
		if model != "" {
			cfg.Model = model
		}
		embedder, err = NewOllamaEmbedder(ctx, cfg)
		if err != nil {
			slog.Warn("ollama embedder unavailable, falling back to static", "error", err)
			embedder = NewStaticEmbedder()
			err = nil
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}

	if err != nil {
		return nil, err
	}

	cacheEnabled := true
	if v := os.Getenv("DOCRAG_EMBED_CACHE"); v != "" {
		if parsed, perr := strconv.ParseBool(v); perr == nil {
			cacheEnabled = parsed
		}
	}
	if cacheEnabled {
		return NewCachedEmbedderWithDefaults(embedder), nil
	}
	return embedder, nil
}
