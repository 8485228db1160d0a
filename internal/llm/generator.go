package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Tarrun1506/starrag-bot/internal/models"
)

// promptTemplate instructs the model to answer only from the supplied context.
const promptTemplate = `Based on the following context, answer the question. If you can't find the answer, say so.

Context:
%s

Question: %s

Answer:`

// User-facing error strings. Failure modes of the completion service map to
// predictable messages instead of raw errors, since the caller is a chat UI.
const (
	msgServiceDown = "Error: Ollama is not responding. Please run 'ollama serve'."
	msgNoConnect   = "Error: Cannot connect to Ollama. Please run 'ollama serve'."
	msgTimeout     = "Error: Request timed out. Please try again."
)

// GeneratorConfig configures answer generation.
type GeneratorConfig struct {
	AllowedModels []string
	Temperature   float64
	TopP          float64
	MaxTokens     int
}

// Generator builds grounded prompts from retrieved chunks and calls the
// completion service.
type Generator struct {
	client  *Client
	allowed []string
	opts    GenerateOptions
	logger  *zap.Logger
}

// NewGenerator creates a generator. Zero sampling values get the defaults
// (temperature 0.7, top_p 0.9, 2048 tokens).
func NewGenerator(client *Client, cfg GeneratorConfig, logger *zap.Logger) *Generator {
	opts := GenerateOptions{
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxTokens,
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.TopP == 0 {
		opts.TopP = 0.9
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2048
	}
	return &Generator{client: client, allowed: cfg.AllowedModels, opts: opts, logger: logger}
}

// AllowedModels returns the configured allow-list.
func (g *Generator) AllowedModels() []string {
	return append([]string(nil), g.allowed...)
}

// IsAllowed reports whether model is on the allow-list.
func (g *Generator) IsAllowed(model string) bool {
	for _, m := range g.allowed {
		if m == model {
			return true
		}
	}
	return false
}

// AvailableModels returns the allow-listed models the service currently
// reports, in allow-list order, along with everything the service reported.
func (g *Generator) AvailableModels(ctx context.Context) (available, reported []string, err error) {
	reported, err = g.client.ListModels(ctx)
	if err != nil {
		return nil, nil, err
	}
	names := make(map[string]bool, len(reported))
	for _, n := range reported {
		names[n] = true
	}
	for _, m := range g.allowed {
		if names[m] {
			available = append(available, m)
		}
	}
	return available, reported, nil
}

// Generate answers query from the retrieved chunks using model. The chunk
// texts are joined into a context block and embedded in the instruction
// template. The requested model must be reported available by the service;
// otherwise the first available allow-listed model is substituted, and if none
// is available a descriptive error string enumerating the reported models is
// returned. All failure modes return strings, never errors.
func (g *Generator) Generate(ctx context.Context, query string, chunks []models.RetrievedChunk, model string) string {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	prompt := fmt.Sprintf(promptTemplate, strings.Join(texts, "\n\n"), query)

	names, err := g.client.ListModels(ctx)
	if err != nil {
		if isTimeout(err) {
			return msgTimeout
		}
		return msgServiceDown
	}
	reported := make(map[string]bool, len(names))
	for _, n := range names {
		reported[n] = true
	}
	if !reported[model] {
		substitute := ""
		for _, m := range g.allowed {
			if reported[m] {
				substitute = m
				break
			}
		}
		if substitute == "" {
			available := "none"
			if len(names) > 0 {
				available = strings.Join(names, ", ")
			}
			return fmt.Sprintf("Error: None of the allowed models are available. Available models: %s", available)
		}
		g.logger.Info("requested model unavailable, substituting",
			zap.String("requested", model),
			zap.String("using", substitute))
		model = substitute
	}

	response, err := g.client.Generate(ctx, model, prompt, g.opts)
	if err != nil {
		g.logger.Warn("generation failed", zap.String("model", model), zap.Error(err))
		switch {
		case isTimeout(err):
			return msgTimeout
		case isTransport(err):
			return msgNoConnect
		default:
			return "Error: " + err.Error()
		}
	}
	if response == "" {
		return "Sorry, I couldn't generate a response."
	}
	return response
}
