package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/captain/types"
)

// ErrBlockMissing is returned when a model reply contains no fenced code block.
var ErrBlockMissing = types.NewError(types.ErrParseFailure, "no fenced code block in model output")

var fencedBlockPattern = regexp.MustCompile("```(\\w*)\\n([\\s\\S]*?)\\n```")

// FirstChoice safely returns the first choice from a ChatResponse.
// Returns an error if the response is nil or has no choices.
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil {
		return ChatChoice{}, fmt.Errorf("nil ChatResponse")
	}
	if len(resp.Choices) == 0 {
		return ChatChoice{}, fmt.Errorf("empty choices in ChatResponse (model returned no choices)")
	}
	return resp.Choices[0], nil
}

// CompleteText runs req and returns the text of the first choice.
//
// Provider failures come back as TRANSPORT errors wrapping the provider's
// *Error; a reply with no choices or blank text is RESOURCE_UNAVAILABLE.
func CompleteText(ctx context.Context, p Provider, req *ChatRequest) (string, error) {
	resp, err := p.Completion(ctx, req)
	if err != nil {
		return "", types.NewError(types.ErrTransport, "completion request failed").
			WithCause(err).
			WithProvider(p.Name()).
			WithRetryable(isRetryable(err))
	}
	choice, err := FirstChoice(resp)
	if err != nil {
		return "", types.NewError(types.ErrResourceUnavailable, "empty model response").
			WithCause(err).
			WithProvider(p.Name())
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", types.NewError(types.ErrResourceUnavailable, "empty model response").
			WithProvider(p.Name())
	}
	return choice.Message.Content, nil
}

// ExtractFencedBlock returns the body of the first ```lang fenced block in text.
func ExtractFencedBlock(text string) (string, error) {
	m := fencedBlockPattern.FindStringSubmatch(text)
	if m == nil {
		return "", ErrBlockMissing
	}
	return m[2], nil
}

func isRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}
