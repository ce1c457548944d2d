package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/metrics"
	"github.com/doc-analyzer/backend/pkg/circuitbreaker"
	"github.com/doc-analyzer/backend/pkg/config"
	"github.com/doc-analyzer/backend/pkg/logger"
)

const endOfTurn = "</s>"

// LocalClient drives a local model server (llama.cpp, vLLM, LocalAI) through
// the plain completions endpoint, wrapping prompts in the chat template the
// model was tuned on.
type LocalClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
}

func NewLocalClient(cfg config.LLMConfig) *LocalClient {
	clientConfig := openai.DefaultConfig("")
	clientConfig.BaseURL = cfg.Local.BaseURL

	maxTokens := cfg.MaxTokens
	// The completion budget has to leave room for the prompt in the
	// server's context window.
	if ctxSize := cfg.Local.ContextSize; ctxSize > 0 && maxTokens >= ctxSize {
		maxTokens = ctxSize / 2
	}

	logger.Info("LLM client initialized",
		zap.String("provider", ProviderLocal),
		zap.String("model", cfg.Local.Model),
		zap.String("base_url", cfg.Local.BaseURL),
		zap.Int("max_tokens", maxTokens),
	)

	return &LocalClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Local.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		timeout:     cfg.GenerationTimeout(),
		cb:          newBreaker("llm-local"),
	}
}

// ChatTemplate renders a system and user turn in the <|role|> ... </s>
// layout and leaves the assistant turn open.
func ChatTemplate(system, user string) string {
	var sb strings.Builder
	sb.WriteString("<|system|>\n")
	sb.WriteString(system)
	sb.WriteString("\n" + endOfTurn + "\n\n<|user|>\n")
	sb.WriteString(user)
	sb.WriteString("\n" + endOfTurn + "\n\n<|assistant|>")
	return sb.String()
}

func (c *LocalClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var text string
	err := c.cb.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.client.CreateCompletion(ctx, openai.CompletionRequest{
			Model:       c.model,
			Prompt:      ChatTemplate(SystemPrompt, prompt),
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
			Stop:        []string{endOfTurn},
		})
		if err != nil {
			return fmt.Errorf("failed to create completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return errEmptyChoices
		}

		recordUsage(c.model, Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		})
		text = strings.TrimSpace(resp.Choices[0].Text)
		return nil
	})
	if err != nil {
		metrics.LLMRequests.WithLabelValues(ProviderLocal, "error").Inc()
		return "", &GenerationError{Provider: ProviderLocal, Err: err}
	}

	metrics.LLMRequests.WithLabelValues(ProviderLocal, "ok").Inc()
	return text, nil
}
