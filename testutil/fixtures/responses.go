// =============================================================================
// 📦 测试数据工厂 - LLM 响应测试数据
// =============================================================================
// 提供预定义的 LLM 响应数据，用于测试
// =============================================================================
package fixtures

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/captain/llm"
	"github.com/BaSui01/captain/types"
)

// =============================================================================
// 🎯 ChatResponse 工厂
// =============================================================================

// SimpleResponse 返回简单的文本响应
func SimpleResponse(content string) *llm.ChatResponse {
	return ResponseWithUsage(content, 10, 20)
}

// ResponseWithUsage 返回带自定义 Token 使用量的响应
func ResponseWithUsage(content string, promptTokens, completionTokens int) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "resp-001",
		Provider: "mock",
		Model:    "gpt-4o-mini",
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				FinishReason: "stop",
				Message: types.Message{
					Role:    types.RoleAssistant,
					Content: content,
				},
			},
		},
		Usage: llm.ChatUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		CreatedAt: time.Now(),
	}
}

// EmptyResponse 返回没有任何 choice 的响应
func EmptyResponse() *llm.ChatResponse {
	resp := SimpleResponse("")
	resp.Choices = nil
	return resp
}

// =============================================================================
// 🧩 模型回复文本
// =============================================================================

// FencedJSON 把 v 序列化后包进 ```json 代码块，前后附带一些说明文字
func FencedJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("Here is my answer.\n```json\n%s\n```\nLet me know if you need anything else.", data)
}

// RedundancyReply 返回冗余检测的模型回复
func RedundancyReply(previousHasImportantInfo bool) string {
	return FencedJSON(map[string]bool{
		"previous_screenshot_contains_important_information_not_present_in_current_screenshot": previousHasImportantInfo,
	})
}

// AutocompleteReply 返回自动补全的模型回复
func AutocompleteReply(text string) string {
	return FencedJSON(map[string]string{"autocomplete": text})
}

// DescriptionReply 返回截图描述的模型回复
func DescriptionReply(n int) string {
	return fmt.Sprintf("A code editor showing main.go with the cursor on line %d.", n)
}
