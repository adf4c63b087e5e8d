package redundancy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/captain/llm"
	"github.com/BaSui01/captain/testutil"
	"github.com/BaSui01/captain/testutil/fixtures"
	"github.com/BaSui01/captain/testutil/mocks"
	"github.com/BaSui01/captain/types"
)

// fixtures 截图为 8×8，阈值设低一些才能进入模型判定
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SimilarityThresholdPixels = 32
	return cfg
}

func TestShouldDiscardPrevious_IdenticalSkipsModel(t *testing.T) {
	provider := mocks.NewErrorProvider(errors.New("must not be called"))
	d := New(testConfig(), provider, zap.NewNop())

	prev := fixtures.Screenshot(t, 1)
	cur := fixtures.Duplicate(t, 1, 5)

	v, err := d.Check(testutil.TestContext(t), prev, cur)
	require.NoError(t, err)
	assert.True(t, v.Discard)
	assert.Equal(t, ReasonIdentical, v.Reason)
	assert.Equal(t, 0, provider.GetCallCount())
}

func TestShouldDiscardPrevious_DissimilarKeepsWithoutModel(t *testing.T) {
	provider := mocks.NewSuccessProvider(fixtures.RedundancyReply(false))
	d := New(testConfig(), provider, zap.NewNop())

	discard, err := d.ShouldDiscardPrevious(testutil.TestContext(t), fixtures.Screenshot(t, 1), fixtures.Screenshot(t, 2))
	require.NoError(t, err)
	assert.False(t, discard)
	assert.Equal(t, 0, provider.GetCallCount())
}

func TestShouldDiscardPrevious_ModelVerdict(t *testing.T) {
	tests := []struct {
		name               string
		previousHasNewInfo bool
		wantDiscard        bool
	}{
		{name: "previous has nothing new", previousHasNewInfo: false, wantDiscard: true},
		{name: "previous has important info", previousHasNewInfo: true, wantDiscard: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := mocks.NewSuccessProvider(fixtures.RedundancyReply(tt.previousHasNewInfo))
			d := New(testConfig(), provider, zap.NewNop())

			prev := fixtures.Screenshot(t, 3)
			cur := fixtures.NearDuplicate(t, 3, 5)

			v, err := d.Check(testutil.TestContext(t), prev, cur)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDiscard, v.Discard)
			assert.Equal(t, ReasonModel, v.Reason)
			assert.Equal(t, 63, v.MatchingPixels)
			assert.Equal(t, 1, provider.GetCallCount())
		})
	}
}

func TestShouldDiscardPrevious_RequestShape(t *testing.T) {
	provider := mocks.NewSuccessProvider(fixtures.RedundancyReply(false))
	d := New(testConfig(), provider, zap.NewNop())

	prev := fixtures.Screenshot(t, 4)
	cur := fixtures.NearDuplicate(t, 4, 5)
	_, err := d.ShouldDiscardPrevious(testutil.TestContext(t), prev, cur)
	require.NoError(t, err)

	call := provider.GetLastCall()
	require.NotNil(t, call)
	req := call.Request
	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.Len(t, req.Messages, 4)

	assert.Equal(t, types.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, SystemPrompt, req.Messages[0].Content)

	assert.Equal(t, prev.Caption("Previous screenshot"), req.Messages[1].Content)
	require.Len(t, req.Messages[1].Images, 1)
	assert.Equal(t, prev.Base64(), req.Messages[1].Images[0].Data)

	assert.Equal(t, cur.Caption("Current screenshot"), req.Messages[2].Content)
	assert.Equal(t, cur.Base64(), req.Messages[2].Images[0].Data)

	assert.Equal(t, "Determine if the previous screenshot should be discarded.", req.Messages[3].Content)
}

func TestShouldDiscardPrevious_Errors(t *testing.T) {
	tests := []struct {
		name     string
		provider *mocks.MockProvider
		wantCode types.ErrorCode
	}{
		{
			name:     "transport",
			provider: mocks.NewErrorProvider(&llm.Error{Code: llm.ErrUpstreamError, Message: "bad gateway", HTTPStatus: 502, Retryable: true}),
			wantCode: types.ErrTransport,
		},
		{
			name:     "no code block",
			provider: mocks.NewSuccessProvider("the previous screenshot can go"),
			wantCode: types.ErrParseFailure,
		},
		{
			name:     "invalid json",
			provider: mocks.NewSuccessProvider("```json\n{not json}\n```"),
			wantCode: types.ErrParseFailure,
		},
		{
			name:     "missing field",
			provider: mocks.NewSuccessProvider("```json\n{\"discard\": true}\n```"),
			wantCode: types.ErrParseFailure,
		},
		{
			name:     "blank reply",
			provider: mocks.NewSuccessProvider("  "),
			wantCode: types.ErrResourceUnavailable,
		},
		{
			name: "no choices",
			provider: mocks.NewMockProvider().WithCompletionFunc(func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
				return fixtures.EmptyResponse(), nil
			}),
			wantCode: types.ErrResourceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(testConfig(), tt.provider, zap.NewNop())
			_, err := d.ShouldDiscardPrevious(testutil.TestContext(t), fixtures.Screenshot(t, 5), fixtures.NearDuplicate(t, 5, 5))
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
		})
	}
}

func TestShouldDiscardPrevious_TransportRetryableFlag(t *testing.T) {
	provider := mocks.NewErrorProvider(&llm.Error{Code: llm.ErrRateLimited, Message: "slow down", HTTPStatus: 429, Retryable: true})
	d := New(testConfig(), provider, nil)

	_, err := d.ShouldDiscardPrevious(testutil.TestContext(t), fixtures.Screenshot(t, 6), fixtures.NearDuplicate(t, 6, 5))
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))

	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrRateLimited, llmErr.Code)
}

func TestShouldDiscardPrevious_NilScreenshot(t *testing.T) {
	d := New(testConfig(), mocks.NewMockProvider(), nil)
	_, err := d.ShouldDiscardPrevious(context.Background(), nil, fixtures.Screenshot(t, 1))
	assert.True(t, types.IsErrorCode(err, types.ErrInvariantViolation))
}

func TestShouldDiscardPrevious_NoProvider(t *testing.T) {
	d := New(testConfig(), nil, nil)
	_, err := d.ShouldDiscardPrevious(context.Background(), fixtures.Screenshot(t, 7), fixtures.NearDuplicate(t, 7, 5))
	assert.True(t, types.IsErrorCode(err, types.ErrResourceUnavailable))
}

func TestNew_DefaultsThreshold(t *testing.T) {
	d := New(Config{Model: "m"}, nil, nil)
	assert.Equal(t, DefaultSimilarityThresholdPixels, d.config.SimilarityThresholdPixels)
}

func TestParseReply(t *testing.T) {
	discard, err := parseReply("```\n{\"previous_screenshot_contains_important_information_not_present_in_current_screenshot\": false}\n```")
	require.NoError(t, err)
	assert.True(t, discard)

	discard, err = parseReply(fixtures.RedundancyReply(true))
	require.NoError(t, err)
	assert.False(t, discard)
}
