// MockTyper 记录自动补全输出的文本。
package mocks

import (
	"context"
	"strings"
	"sync"
)

// MockTyper 是 autocomplete.Typer 的模拟实现
type MockTyper struct {
	mu    sync.Mutex
	typed []string
	err   error
}

// NewMockTyper 创建新的 MockTyper
func NewMockTyper() *MockTyper {
	return &MockTyper{}
}

// WithError 设置返回错误
func (m *MockTyper) WithError(err error) *MockTyper {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Type 记录文本
func (m *MockTyper) Type(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.typed = append(m.typed, text)
	return nil
}

// Typed 返回所有已输出的文本
func (m *MockTyper) Typed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.typed...)
}

// Joined 返回拼接后的输出
func (m *MockTyper) Joined() string {
	return strings.Join(m.Typed(), "")
}
