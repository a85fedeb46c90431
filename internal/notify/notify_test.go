package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu       sync.Mutex
	sent     []Message
	failN    int
	attempts int
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failN {
		return context.DeadlineExceeded
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestEnqueueAndDrainDeliversMessage(t *testing.T) {
	sender := &recordingSender{}
	senders := map[Channel]Sender{ChannelEmail: sender}
	d := NewDispatcher(senders, nil)

	require.NoError(t, d.Enqueue(Message{Channel: ChannelEmail, Recipient: "a@example.com"}))

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx, senders)

	require.Eventually(t, func() bool { return sender.sentCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
}

func TestEnqueueUnknownChannelErrors(t *testing.T) {
	d := NewDispatcher(map[Channel]Sender{ChannelEmail: &recordingSender{}}, nil)
	err := d.Enqueue(Message{Channel: ChannelSMS})
	require.Error(t, err)
}

func TestEnqueueFullQueueReturnsErrQueueFull(t *testing.T) {
	d := NewDispatcher(map[Channel]Sender{ChannelEmail: &recordingSender{}}, nil)
	for i := 0; i < defaultQueueCapacity; i++ {
		require.NoError(t, d.Enqueue(Message{Channel: ChannelEmail}))
	}
	err := d.Enqueue(Message{Channel: ChannelEmail})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	sender := &recordingSender{failN: 2}
	senders := map[Channel]Sender{ChannelEmail: sender}
	d := NewDispatcher(senders, nil)
	require.NoError(t, d.Enqueue(Message{Channel: ChannelEmail, Recipient: "a@example.com"}))

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx, senders)

	require.Eventually(t, func() bool { return sender.sentCount() == 1 }, 3*time.Second, 10*time.Millisecond)
	cancel()
}

func TestDeliverDropsAfterMaxAttempts(t *testing.T) {
	sender := &recordingSender{failN: 999}
	senders := map[Channel]Sender{ChannelEmail: sender}
	d := NewDispatcher(senders, nil)
	require.NoError(t, d.Enqueue(Message{Channel: ChannelEmail, Recipient: "a@example.com"}))

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx, senders)

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return sender.attempts == maxAttempts
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, sender.sentCount())
	cancel()
}

func TestSupportEscalationMessageFormat(t *testing.T) {
	esc := NewSupportEscalation("abcd", 42, "contract-1", "needs help", "https://support.example.com")
	require.Equal(t, "https://support.example.com/app/accounts/1/conversations/42", esc.ConversationLink)

	msg := esc.ToMessage(ChannelEmail, "provider@example.com")
	require.Equal(t, ChannelEmail, msg.Channel)
	require.Contains(t, msg.Body, "contract-1")
	require.Contains(t, msg.Body, "needs help")
}
