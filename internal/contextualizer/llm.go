package contextualizer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const defaultMaxContentChars = 1500

// promptTemplate asks for a short situating sentence. The exact wording
// is deliberately unspecified beyond this; callers relying on a specific
// model's output should tune Model/Endpoint, not parse this string.
const promptTemplate = `Summarize in 1-2 sentences what this section of the documentation page covers, for use as a search context prefix. Output only the summary, nothing else.

Heading path: %s

Content:
%s`

// LLMGenerator calls an OpenAI-compatible chat completion endpoint (Ollama's
// /v1 shim, llama.cpp's server, or the real OpenAI API) to generate context.
type LLMGenerator struct {
	client *openai.Client
	model  string
}

// NewLLMGenerator builds an LLMGenerator against endpoint (an OpenAI-compatible
// base URL) using model. apiKey may be empty for local servers that don't
// check it.
func NewLLMGenerator(endpoint, apiKey, model string, timeout time.Duration) *LLMGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &LLMGenerator{client: openai.NewClientWithConfig(cfg), model: model}
}

func (g *LLMGenerator) Generate(ctx context.Context, headingPath []string, _ string, content string) (string, error) {
	prompt := fmt.Sprintf(promptTemplate, strings.Join(headingPath, " > "), truncate(content, defaultMaxContentChars))

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Available does a lightweight reachability check against the model list
// endpoint rather than spending a completion call.
func (g *LLMGenerator) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := g.client.ListModels(ctx)
	return err == nil
}

func (g *LLMGenerator) ModelName() string { return g.model }

func (g *LLMGenerator) Close() error { return nil }

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
