package llm

import (
	"context"
	"fmt"

	"github.com/doc-analyzer/backend/pkg/config"
)

// Generator is the text-generation collaborator: a prompt in, UTF-8 text
// out. Implementations never retry on their own.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

const SystemPrompt = `You are an expert document analyzer with advanced capabilities in understanding and extracting information from documents.
Your analysis is thorough, accurate, and structured precisely according to the requested format.`

// GenerationError wraps any failure of the generation round trip.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation via %s failed: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// New builds the generator selected by cfg.Provider.
func New(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewClient(cfg), nil
	case ProviderLocal:
		return NewLocalClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
