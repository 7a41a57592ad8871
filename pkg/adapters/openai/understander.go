// Package openai implements the Understanding collaborator on the OpenAI
// Chat Completions API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/openai/openai-go"
)

// completeFunc abstracts the completion call so tests can run without the API.
type completeFunc func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)

// Understander implements ports.Understander. It asks the model for a single
// JSON object per turn: the classification tag, its fields, and any extracted
// slot values with per-slot confidence.
type Understander struct {
	complete completeFunc
	model    openai.ChatModel
	logger   *slog.Logger
}

// Option configures the Understander.
type Option func(*Understander)

// WithModel overrides the completion model.
func WithModel(model openai.ChatModel) Option {
	return func(u *Understander) {
		u.model = model
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Understander) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// withCompleter swaps the transport, for tests.
func withCompleter(fn completeFunc) Option {
	return func(u *Understander) {
		u.complete = fn
	}
}

// New creates an Understander using the default client, which reads
// OPENAI_API_KEY from the environment.
func New(opts ...Option) *Understander {
	client := openai.NewClient()
	return NewFromClient(&client, opts...)
}

// NewFromClient creates an Understander from an existing client.
func NewFromClient(client *openai.Client, opts ...Option) *Understander {
	u := &Understander{
		complete: func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
			return client.Chat.Completions.New(ctx, params)
		},
		model:  openai.ChatModelGPT4oMini,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

const systemPrompt = `You classify one user message in a task-oriented conversation and extract slot values.

Respond with a single JSON object, nothing else:
{
  "classification": one of "slot_value", "correction", "modification", "interruption", "digression", "clarification", "cancellation", "confirmation", "continuation",
  "fields": {
    "slot": "<slot being corrected, for correction/modification>",
    "flow": "<flow being started, for interruption; must be one of the available flows>",
    "topic": "<question topic, for digression/clarification>",
    "affirmed": <true|false, for confirmation>,
    "clear": <true|false, for confirmation; false when the answer is ambiguous>
  },
  "slots": [{"name": "...", "value": "...", "confidence": 0.0}],
  "confidence": 0.0,
  "rationale": "<one short sentence>"
}

Rules:
- "interruption" only when the message asks to start one of the available flows.
- "correction" when the message changes a slot that is already filled.
- A bare yes/no while a confirmation is expected is "confirmation".
- Extract every slot value present, even several in one message.
- Omit "fields" entries that do not apply.`

// wireResult is the model's JSON reply.
type wireResult struct {
	Classification string                 `json:"classification"`
	Fields         map[string]any         `json:"fields"`
	Slots          []domain.ExtractedSlot `json:"slots"`
	Confidence     float64                `json:"confidence"`
	Rationale      string                 `json:"rationale"`
}

// Understand classifies a message given the conversational context.
func (u *Understander) Understand(ctx context.Context, message string, uctx domain.UnderstandingContext) (*domain.UnderstandingResult, error) {
	params := openai.ChatCompletionNewParams{
		Model: u.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildContext(message, uctx)),
		},
	}

	resp, err := u.complete(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	content := resp.Choices[0].Message.Content
	result, err := parseResult(content)
	if err != nil {
		u.logger.Warn("unparseable understanding reply", "content", content, "err", err)
		return nil, err
	}
	return result, nil
}

// buildContext renders the UnderstandingContext as the user message. The
// model sees exactly what the engine knows, nothing more.
func buildContext(message string, uctx domain.UnderstandingContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Available flows: %s\n", strings.Join(uctx.AvailableFlows, ", "))
	if uctx.ActiveFlow != "" {
		fmt.Fprintf(&b, "Active flow: %s\n", uctx.ActiveFlow)
	}
	if uctx.ExpectedSlot != "" {
		fmt.Fprintf(&b, "Expected slot: %s\n", uctx.ExpectedSlot)
	}
	if len(uctx.FilledSlots) > 0 {
		filled, _ := json.Marshal(uctx.FilledSlots)
		fmt.Fprintf(&b, "Filled slots: %s\n", filled)
	}
	if len(uctx.RecentHistory) > 0 {
		fmt.Fprintf(&b, "Recent messages: %s\n", strings.Join(uctx.RecentHistory, " | "))
	}
	fmt.Fprintf(&b, "User message: %s", message)
	return b.String()
}

// parseResult decodes the model reply into the domain result. Models
// occasionally wrap JSON in a code fence; strip it before decoding.
func parseResult(content string) (*domain.UnderstandingResult, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var wire wireResult
	if err := json.Unmarshal([]byte(trimmed), &wire); err != nil {
		return nil, fmt.Errorf("failed to decode understanding reply: %w", err)
	}

	classification, err := domain.ParseClassification(wire.Classification, wire.Fields)
	if err != nil {
		return nil, err
	}
	return &domain.UnderstandingResult{
		Classification: classification,
		Slots:          wire.Slots,
		Confidence:     wire.Confidence,
		Rationale:      wire.Rationale,
	}, nil
}
