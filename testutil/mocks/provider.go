// MockProvider 的 LLM 提供商测试模拟实现。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/captain/llm"
	"github.com/BaSui01/captain/types"
)

// CompletionFunc 按请求计算响应
type CompletionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

// MockProvider 记录每次请求，按 err > fn > 固定回复 的优先级应答
type MockProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	fn    CompletionFunc
	calls []MockProviderCall
}

// MockProviderCall 一次调用的请求与结果
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

var _ llm.Provider = (*MockProvider)(nil)

func NewMockProvider() *MockProvider {
	return &MockProvider{reply: "Mock response"}
}

// NewSuccessProvider 总是回复 reply
func NewSuccessProvider(reply string) *MockProvider {
	return NewMockProvider().WithResponse(reply)
}

// NewErrorProvider 总是返回 err
func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider().WithError(err)
}

func (m *MockProvider) WithResponse(reply string) *MockProvider {
	m.mu.Lock()
	m.reply = reply
	m.mu.Unlock()
	return m
}

func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	return m
}

func (m *MockProvider) WithCompletionFunc(fn CompletionFunc) *MockProvider {
	m.mu.Lock()
	m.fn = fn
	m.mu.Unlock()
	return m
}

func (m *MockProvider) Name() string { return "mock" }

// Completion fn 在锁外执行，可以阻塞等待 ctx
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	reply, err, fn := m.reply, m.err, m.fn
	m.mu.Unlock()

	var resp *llm.ChatResponse
	switch {
	case err != nil:
	case fn != nil:
		resp, err = fn(ctx, req)
	default:
		resp = textResponse(req.Model, reply)
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
	m.mu.Unlock()
	return resp, err
}

func textResponse(model, content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: "mock",
		Model:    model,
		Choices: []llm.ChatChoice{{
			FinishReason: "stop",
			Message:      types.NewAssistantMessage(content),
		}},
		Usage:     llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		CreatedAt: time.Now(),
	}
}

// GetCallCount 已完成的调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// GetLastCall 没有调用时返回 nil
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}
