package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BaSui01/captain/types"
)

// Tokenizer 是统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表文本部分的总 token 数,
	// 包括每条消息的开销（角色标记、分隔符等）。图片不计入.
	CountMessages(messages []types.Message) (int, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// 每条消息与整段对话的固定开销.
const (
	perMessageOverhead      = 4
	conversationEndOverhead = 3
)

// 全局分词器注册表.
var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// RegisterTokenizer 为给定的模型名称注册分词器.
func RegisterTokenizer(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// GetTokenizer 返回为给定模型注册的分词器。
// 找不到精确匹配时取最长的前缀匹配（"gpt-4o-mini" 优先于 "gpt-4o"）.
func GetTokenizer(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()

	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}

	var (
		best    Tokenizer
		bestLen int
	)
	for prefix, t := range modelTokenizers {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = t, len(prefix)
		}
	}
	if best != nil {
		return best, nil
	}

	return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
}

// GetTokenizerOrEstimator 返回该模型的注册分词器,
// 如果没有登记,则回到一般估计器。
func GetTokenizerOrEstimator(model string) Tokenizer {
	t, err := GetTokenizer(model)
	if err != nil {
		return NewEstimatorTokenizer(model, 0)
	}
	return NewFallback(t, NewEstimatorTokenizer(model, t.MaxTokens()))
}

// Fallback 在 primary 出错时（例如 tiktoken 词表无法下载）改用 secondary.
type Fallback struct {
	primary   Tokenizer
	secondary Tokenizer
}

// NewFallback 组合两个分词器.
func NewFallback(primary, secondary Tokenizer) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) CountTokens(text string) (int, error) {
	if n, err := f.primary.CountTokens(text); err == nil {
		return n, nil
	}
	return f.secondary.CountTokens(text)
}

func (f *Fallback) CountMessages(messages []types.Message) (int, error) {
	if n, err := f.primary.CountMessages(messages); err == nil {
		return n, nil
	}
	return f.secondary.CountMessages(messages)
}

func (f *Fallback) MaxTokens() int { return f.primary.MaxTokens() }
func (f *Fallback) Name() string   { return f.primary.Name() + "|" + f.secondary.Name() }

// countMessages 按 CountTokens 累加 role 与 content 的开销.
func countMessages(t Tokenizer, messages []types.Message) (int, error) {
	total := 0
	for _, msg := range messages {
		content, err := t.CountTokens(msg.Content)
		if err != nil {
			return 0, err
		}
		role, err := t.CountTokens(string(msg.Role))
		if err != nil {
			return 0, err
		}
		total += perMessageOverhead + content + role
	}
	return total + conversationEndOverhead, nil
}
