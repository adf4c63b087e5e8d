package context

import "github.com/BaSui01/captain/types"

// TokenEstimate 描述一组消息的 token 占用.
type TokenEstimate struct {
	TextTokens  int  `json:"text_tokens"`
	Images      int  `json:"images"`
	ImageTokens int  `json:"image_tokens"`
	Total       int  `json:"total"`
	OverReserve bool `json:"over_reserve"` // 文本超过 ReservedTextTokens
	OverBudget  bool `json:"over_budget"`  // 总量超过 MaxContextTokens
}

// Estimate 估算 messages 的 token 占用。图片按 ImageTokens 固定计价.
func (a *Assembler) Estimate(messages []types.Message) (TokenEstimate, error) {
	text, err := a.tokenizer.CountMessages(messages)
	if err != nil {
		return TokenEstimate{}, err
	}
	images := 0
	for _, m := range messages {
		images += len(m.Images)
	}

	est := TokenEstimate{
		TextTokens:  text,
		Images:      images,
		ImageTokens: images * a.config.ImageTokens,
	}
	est.Total = est.TextTokens + est.ImageTokens
	est.OverReserve = a.config.ReservedTextTokens > 0 && est.TextTokens > a.config.ReservedTextTokens
	est.OverBudget = a.config.MaxContextTokens > 0 && est.Total > a.config.MaxContextTokens
	return est, nil
}
