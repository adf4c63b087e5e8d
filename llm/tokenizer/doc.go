// Package tokenizer 提供统一的 Token 计数接口，
// 支持 tiktoken 精确计数与 CJK 估算器，用于上下文组装的 Token 预算估算。
// tiktoken 词表不可用时，Fallback 自动退回估算器.
package tokenizer
