package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ovaphlow/pitchfork/service-gym/internal/config"
	"github.com/ovaphlow/pitchfork/service-gym/internal/notify"
	"github.com/ovaphlow/pitchfork/service-gym/pkg/utilities"
)

// notifier consumes gym events from RabbitMQ and sends the matching emails.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	if cfg.RabbitURL == "" {
		sugar.Fatal("RABBIT_URL is required")
	}

	var n notify.Notifier = notify.LogNotifier{Logger: sugar}
	if cfg.SMTP.Host != "" {
		n = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	} else {
		sugar.Warn("SMTP_HOST not set; emails are only logged")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := notify.NewConsumer(notify.ConsumerConfig{
		RabbitURL:          cfg.RabbitURL,
		Exchange:           cfg.RabbitExchange,
		Queue:              cfg.RabbitQueue,
		DeadLetterExchange: cfg.RabbitDeadLetter,
	}, n, sugar)

	// reconnect until shutdown; the broker may start after us
	for ctx.Err() == nil {
		if err := c.Connect(); err != nil {
			sugar.Warnw("consumer connect failed, retrying", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}
		sugar.Infow("consuming", "queue", cfg.RabbitQueue, "exchange", cfg.RabbitExchange)
		if err := c.Run(ctx); err != nil {
			sugar.Warnw("consumer stopped", "err", err)
		}
		c.Close()
	}
	sugar.Info("goodbye")
}
