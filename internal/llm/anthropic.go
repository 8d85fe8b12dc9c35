package llm

import (
	"context"
	"fmt"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/runbookctl/engine/internal/container"
)

// inputPricePerMillion and outputPricePerMillion (US dollars per
// million tokens) are a deliberately simple, fixed cost table;
// the engine does not depend on pricing being exact, only monotonic,
// since cost_limit enforcement only needs a running total that grows
// with usage.
const (
	inputPricePerMillion  = 3.00
	outputPricePerMillion = 15.00
)

// messagesClient captures the subset of the Anthropic SDK used here,
// so tests can substitute a fake without a live API key.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicFactory is a container.Factory producing a singleton
// AnthropicService. CanCreate reports false when no API key is
// configured, letting dependents degrade rather than fail hard.
type AnthropicFactory struct {
	APIKey    string
	Model     string
	MaxTokens int
}

func (f *AnthropicFactory) CanCreate() bool { return f.APIKey != "" && f.Model != "" }

func (f *AnthropicFactory) Create() (any, error) {
	if !f.CanCreate() {
		return nil, fmt.Errorf("llm: anthropic factory requires an API key and model")
	}
	client := sdk.NewClient(option.WithAPIKey(f.APIKey))
	maxTokens := f.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicService{msg: &client.Messages, model: f.Model, maxTokens: maxTokens}, nil
}

// AnthropicService implements Service over the Anthropic Messages API.
type AnthropicService struct {
	msg       messagesClient
	model     string
	maxTokens int

	mu    sync.Mutex
	spent float64
}

func (s *AnthropicService) Complete(ctx context.Context, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}

	msg, err := s.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: anthropic messages.new: %w", err)
	}

	s.recordUsage(msg.Usage)

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func (s *AnthropicService) recordUsage(usage sdk.Usage) {
	cost := float64(usage.InputTokens)/1_000_000*inputPricePerMillion +
		float64(usage.OutputTokens)/1_000_000*outputPricePerMillion

	s.mu.Lock()
	s.spent += cost
	s.mu.Unlock()
}

// Spent reports the running cost total across every Complete call.
func (s *AnthropicService) Spent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spent
}

var (
	_ Service           = (*AnthropicService)(nil)
	_ container.Factory = (*AnthropicFactory)(nil)
)
