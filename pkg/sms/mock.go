package sms

import (
	"context"
	"errors"
	"sync"
)

type MockCall struct {
	Phone   string
	Message string
}

// MockClient 可配置的短信客户端 mock，实现 Client 接口
type MockClient struct {
	mu    sync.Mutex
	Calls []MockCall

	// FailTimes 前 N 次调用返回 Err（默认 mock 错误），之后成功
	FailTimes int
	Err       error
}

func NewMockClient() *MockClient {
	return &MockClient{
		Calls: make([]MockCall, 0),
	}
}

func (m *MockClient) Send(ctx context.Context, phone, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Phone: phone, Message: message})

	if m.FailTimes > 0 {
		m.FailTimes--
		if m.Err != nil {
			return m.Err
		}
		return errors.New("mock sms send failure")
	}
	return nil
}

// CallCount 返回调用次数
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
