package tokenizer

import (
	"unicode"

	"github.com/BaSui01/captain/types"
)

// defaultEstimatorMaxTokens 未知模型时假设的上下文上限
const defaultEstimatorMaxTokens = 4096

// 东亚文字约 1.5 字符/token，其余约 4 字符/token。
// 统一放大 12 倍后用整数累加：东亚字符每个 8，其余每个 3。
const (
	wideWeight   = 8
	narrowWeight = 3
	weightScale  = 12
)

// wideScripts 按东亚文字计权的字符集
var wideScripts = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Hangul,
	fullwidthForms,
}

// fullwidthForms 全角标点与 CJK 符号
var fullwidthForms = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x3000, Hi: 0x303F, Stride: 1},
		{Lo: 0xFF00, Hi: 0xFFEF, Stride: 1},
	},
}

// EstimatorTokenizer 没有 BPE 词表时的近似计数，用于预算估算与回退
type EstimatorTokenizer struct {
	model     string
	maxTokens int
}

// NewEstimatorTokenizer maxTokens <= 0 时取 4096
func NewEstimatorTokenizer(model string, maxTokens int) *EstimatorTokenizer {
	if maxTokens <= 0 {
		maxTokens = defaultEstimatorMaxTokens
	}
	return &EstimatorTokenizer{model: model, maxTokens: maxTokens}
}

// CountTokens 非空文本至少计 1
func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	weight := 0
	for _, r := range text {
		if isWide(r) {
			weight += wideWeight
		} else {
			weight += narrowWeight
		}
	}
	return max(weight/weightScale, 1), nil
}

func (e *EstimatorTokenizer) CountMessages(messages []types.Message) (int, error) {
	return countMessages(e, messages)
}

func (e *EstimatorTokenizer) MaxTokens() int { return e.maxTokens }

func (e *EstimatorTokenizer) Name() string { return "estimator" }

func isWide(r rune) bool {
	return r > unicode.MaxASCII && unicode.In(r, wideScripts...)
}
