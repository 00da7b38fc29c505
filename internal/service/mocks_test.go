package service

import (
	"context"
	"sync"

	"messengerrelay/internal/models"

	"github.com/stretchr/testify/mock"
)

// mockSender records every reply in call order
type mockSender struct {
	mock.Mock
	mu   sync.Mutex
	sent []sentReply
}

type sentReply struct {
	psid  string
	reply *models.Reply
}

func (m *mockSender) Send(ctx context.Context, psid string, reply *models.Reply) (*models.SendResponse, error) {
	m.mu.Lock()
	m.sent = append(m.sent, sentReply{psid: psid, reply: reply})
	m.mu.Unlock()

	args := m.Called(ctx, psid, reply)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SendResponse), args.Error(1)
}

func (m *mockSender) replies() []sentReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentReply, len(m.sent))
	copy(out, m.sent)
	return out
}

// texts returns the text of every text reply in order
func (m *mockSender) texts() []string {
	var out []string
	for _, s := range m.replies() {
		if s.reply.Text != "" {
			out = append(out, s.reply.Text)
		}
	}
	return out
}

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, query string) ([]string, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type mockChat struct {
	mock.Mock
}

func (m *mockChat) Ask(ctx context.Context, prompt, uid string) (string, error) {
	args := m.Called(ctx, prompt, uid)
	return args.String(0), args.Error(1)
}

// panicSender panics on every call
type panicSender struct{}

func (panicSender) Send(context.Context, string, *models.Reply) (*models.SendResponse, error) {
	panic("send exploded")
}

// blockingSender blocks until release is closed
type blockingSender struct {
	release chan struct{}
}

func (b *blockingSender) Send(ctx context.Context, psid string, reply *models.Reply) (*models.SendResponse, error) {
	<-b.release
	return &models.SendResponse{}, nil
}
