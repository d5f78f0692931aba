package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type ConsumerConfig struct {
	RabbitURL string
	Exchange  string
	Queue     string
	Prefetch  int
	// DeadLetterExchange receives messages that failed twice. When empty
	// they are discarded.
	DeadLetterExchange string
}

// Consumer turns gym events into transactional emails.
type Consumer struct {
	cfg      ConsumerConfig
	notifier Notifier
	logger   *zap.SugaredLogger

	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(cfg ConsumerConfig, n Notifier, logger *zap.SugaredLogger) *Consumer {
	return &Consumer{cfg: cfg, notifier: n, logger: logger}
}

func (c *Consumer) Connect() error {
	conn, err := amqp.Dial(c.cfg.RabbitURL)
	if err != nil {
		return fmt.Errorf("rabbit dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel failed: %w", err)
	}
	fail := func(step string, err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("%s failed: %w", step, err)
	}
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}
	var args amqp.Table
	if dlx := c.cfg.DeadLetterExchange; dlx != "" {
		if err := ch.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
			return fail("declare dead letter exchange", err)
		}
		dead, err := ch.QueueDeclare(c.cfg.Queue+".dead", true, false, false, false, nil)
		if err != nil {
			return fail("declare dead letter queue", err)
		}
		if err := ch.QueueBind(dead.Name, "", dlx, false, nil); err != nil {
			return fail("bind dead letter queue", err)
		}
		args = amqp.Table{"x-dead-letter-exchange": dlx}
	}
	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, args)
	if err != nil {
		return fail("declare queue", err)
	}
	for _, key := range []string{RKIdentityInvited, RKStaffProvisioned} {
		if err := ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return fail("bind "+key, err)
		}
	}
	if c.cfg.Prefetch <= 0 {
		c.cfg.Prefetch = 8
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fail("set qos", err)
	}
	c.conn = conn
	c.ch = ch
	return nil
}

func (c *Consumer) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume failed: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := c.Handle(ctx, d.RoutingKey, d.Body); err != nil {
				if requeue(err, d.Redelivered) {
					c.logger.Warnw("notification failed, requeue", "key", d.RoutingKey, "err", err)
					_ = d.Nack(false, true)
					continue
				}
				c.logger.Warnw("dropping message", "key", d.RoutingKey, "redelivered", d.Redelivered, "err", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// requeue reports whether a failed delivery gets another attempt. Undecodable
// bodies never do, and everything else is retried once so a permanent
// rejection such as an unknown recipient cannot loop.
func requeue(err error, redelivered bool) bool {
	if errors.Is(err, ErrBadPayload) {
		return false
	}
	return !redelivered
}

// Handle renders the email for one event. Unknown keys are dropped.
func (c *Consumer) Handle(ctx context.Context, key string, body []byte) error {
	switch key {
	case RKIdentityInvited:
		ev, err := Decode[IdentityInvited](body)
		if err != nil {
			return err
		}
		return c.notifier.Notify(ctx, Message{
			To:      ev.Email,
			Subject: "You're invited to the gym team",
			Body: fmt.Sprintf("Hi %s,\n\nAn account has been created for you. Set your password here:\n%s\n\nThis link expires on %s.\n",
				ev.FirstName, ev.AcceptURL, ev.ExpiresAt.Format(time.RFC1123)),
		})

	case RKStaffProvisioned:
		ev, err := Decode[StaffProvisioned](body)
		if err != nil {
			return err
		}
		// invited staff already received the invitation email
		if ev.Invited {
			return nil
		}
		if !ev.LoginAccess {
			c.logger.Debugw("skip welcome email, no login access", "user_id", ev.UserID)
			return nil
		}
		return c.notifier.Notify(ctx, Message{
			To:      ev.Email,
			Subject: "Your gym staff account is ready",
			Body:    fmt.Sprintf("Hi %s,\n\nYour %s account has been created. Sign in with the password given to you by the administrator.\n", ev.FirstName, ev.Role),
		})

	default:
		c.logger.Debugw("skip unknown key", "key", key)
	}
	return nil
}
