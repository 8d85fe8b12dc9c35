package llm

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"
)

type stubMessagesClient struct {
	resp *sdk.Message
	err  error
}

func (s *stubMessagesClient) New(context.Context, sdk.MessageNewParams, ...option.RequestOption) (*sdk.Message, error) {
	return s.resp, s.err
}

func TestFactoryCanCreateRequiresAPIKeyAndModel(t *testing.T) {
	f := &AnthropicFactory{}
	require.False(t, f.CanCreate())

	f.APIKey = "sk-test"
	require.False(t, f.CanCreate())

	f.Model = "claude-3-5-sonnet"
	require.True(t, f.CanCreate())
}

func TestCompleteAccumulatesSpentFromUsage(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{{Type: "text", Text: "hello there"}},
			Usage:   sdk.Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000},
		},
	}
	svc := &AnthropicService{msg: stub, model: "claude-3-5-sonnet", maxTokens: 128}

	text, err := svc.Complete(context.Background(), "say hi")
	require.NoError(t, err)
	require.Equal(t, "hello there", text)
	require.InDelta(t, inputPricePerMillion+outputPricePerMillion, svc.Spent(), 1e-9)

	_, err = svc.Complete(context.Background(), "again")
	require.NoError(t, err)
	require.InDelta(t, 2*(inputPricePerMillion+outputPricePerMillion), svc.Spent(), 1e-9)
}
