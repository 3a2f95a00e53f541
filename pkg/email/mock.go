package email

import (
	"context"
	"errors"
	"sync"
)

type MockCall struct {
	To      string
	Subject string
	Body    string
}

// MockClient 可配置的邮件客户端 mock
type MockClient struct {
	mu    sync.Mutex
	Calls []MockCall

	// FailTimes 前 N 次调用返回 Err（默认 mock 错误），之后成功
	FailTimes int
	Err       error
}

func NewMockClient() *MockClient {
	return &MockClient{Calls: make([]MockCall, 0)}
}

func (m *MockClient) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{To: to, Subject: subject, Body: body})

	if m.FailTimes > 0 {
		m.FailTimes--
		if m.Err != nil {
			return m.Err
		}
		return errors.New("mock email send failure")
	}
	return nil
}

func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
