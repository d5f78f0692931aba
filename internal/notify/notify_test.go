package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	sent []Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, m Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, m)
	return nil
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandle_Invited(t *testing.T) {
	n := &recordingNotifier{}
	c := NewConsumer(ConsumerConfig{}, n, zap.NewNop().Sugar())

	err := c.Handle(context.Background(), RKIdentityInvited, mustJSON(t, IdentityInvited{
		UserID:    "u1",
		Email:     "coach@gym.test",
		FirstName: "Ana",
		AcceptURL: "https://gym.test/accept?token=abc",
		ExpiresAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}))
	require.NoError(t, err)

	require.Len(t, n.sent, 1)
	assert.Equal(t, "coach@gym.test", n.sent[0].To)
	assert.Contains(t, n.sent[0].Body, "https://gym.test/accept?token=abc")
	assert.Contains(t, n.sent[0].Body, "Hi Ana")
}

func TestHandle_ProvisionedSkipsInvited(t *testing.T) {
	n := &recordingNotifier{}
	c := NewConsumer(ConsumerConfig{}, n, zap.NewNop().Sugar())

	err := c.Handle(context.Background(), RKStaffProvisioned, mustJSON(t, StaffProvisioned{Email: "a@b.com", Invited: true}))
	require.NoError(t, err)
	assert.Empty(t, n.sent)

	err = c.Handle(context.Background(), RKStaffProvisioned, mustJSON(t, StaffProvisioned{Email: "a@b.com", FirstName: "A", Role: "trainer", LoginAccess: true}))
	require.NoError(t, err)
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0].Body, "trainer account")
}

func TestHandle_ProvisionedSkipsNoLoginAccess(t *testing.T) {
	n := &recordingNotifier{}
	c := NewConsumer(ConsumerConfig{}, n, zap.NewNop().Sugar())

	err := c.Handle(context.Background(), RKStaffProvisioned, mustJSON(t, StaffProvisioned{
		UserID: "u1", Email: "desk@gym.test", FirstName: "D", Role: "staff", Invited: false, LoginAccess: false,
	}))
	require.NoError(t, err)
	assert.Empty(t, n.sent)
}

func TestHandle_BadPayload(t *testing.T) {
	c := NewConsumer(ConsumerConfig{}, &recordingNotifier{}, zap.NewNop().Sugar())

	err := c.Handle(context.Background(), RKIdentityInvited, []byte("{not json"))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestHandle_UnknownKey(t *testing.T) {
	n := &recordingNotifier{}
	c := NewConsumer(ConsumerConfig{}, n, zap.NewNop().Sugar())

	require.NoError(t, c.Handle(context.Background(), "booking.created", []byte("{}")))
	assert.Empty(t, n.sent)
}

func TestHandle_NotifierError(t *testing.T) {
	c := NewConsumer(ConsumerConfig{}, &recordingNotifier{err: errors.New("smtp down")}, zap.NewNop().Sugar())

	err := c.Handle(context.Background(), RKIdentityInvited, mustJSON(t, IdentityInvited{Email: "a@b.com"}))
	assert.EqualError(t, err, "smtp down")
}

func TestRequeue(t *testing.T) {
	smtpErr := errors.New("550 mailbox unavailable")
	cases := []struct {
		name        string
		err         error
		redelivered bool
		want        bool
	}{
		{"first failure", smtpErr, false, true},
		{"failed again", smtpErr, true, false},
		{"bad payload", fmt.Errorf("%w: eof", ErrBadPayload), false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, requeue(tc.err, tc.redelivered))
		})
	}
}

func TestSMTPNotifier(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n := NewSMTPNotifier(SMTPConfig{Host: "mail.gym.test", Port: 2525, From: "no-reply@gym.test"})
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.Nil(t, a)
		return nil
	}

	err := n.Notify(context.Background(), Message{To: "a@b.com", Subject: "Hello", Body: "body text"})
	require.NoError(t, err)

	assert.Equal(t, "mail.gym.test:2525", gotAddr)
	assert.Equal(t, "no-reply@gym.test", gotFrom)
	assert.Equal(t, []string{"a@b.com"}, gotTo)
	assert.True(t, strings.HasPrefix(string(gotMsg), "From: no-reply@gym.test\r\n"))
	assert.Contains(t, string(gotMsg), "Subject: Hello\r\n")
	assert.True(t, strings.HasSuffix(string(gotMsg), "\r\n\r\nbody text"))
}

func TestLogPublisher(t *testing.T) {
	p := LogPublisher{Logger: zap.NewNop().Sugar()}
	assert.NoError(t, p.PublishJSON(context.Background(), RKStaffProvisioned, StaffProvisioned{UserID: "u1"}))
	assert.Error(t, p.PublishJSON(context.Background(), RKStaffProvisioned, make(chan int)))
}
