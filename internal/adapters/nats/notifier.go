package natsadapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
)

// Outbound is one queued notification. Document payloads travel
// base64-encoded inside the JSON envelope.
type Outbound struct {
	UserID   int64  `json:"user_id"`
	Text     string `json:"text"`
	Caption  string `json:"caption,omitempty"`
	Document string `json:"document,omitempty"`
	QueuedAt int64  `json:"queued_at"`
}

// Notifier implements ports.Notifier by queueing outbound messages on
// NATS JetStream. Delivery to the chat transport happens in a separate
// consumer, so a slow or down transport never blocks the booking path.
type Notifier struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewNotifier connects to NATS and ensures the outbound stream exists.
func NewNotifier(url string) (*Notifier, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:      "NOTIFY_OUTBOUND",
		Subjects:  []string{"notify.>"},
		Retention: nats.WorkQueuePolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist — try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Notifier{conn: conn, js: js}, nil
}

func (n *Notifier) SendMessage(ctx context.Context, userID int64, text string) error {
	return n.publish(userID, Outbound{
		UserID:   userID,
		Text:     text,
		QueuedAt: time.Now().Unix(),
	})
}

func (n *Notifier) SendDocument(ctx context.Context, userID int64, caption string, document []byte) error {
	return n.publish(userID, Outbound{
		UserID:   userID,
		Caption:  caption,
		Document: base64.StdEncoding.EncodeToString(document),
		QueuedAt: time.Now().Unix(),
	})
}

func (n *Notifier) publish(userID int64, out Outbound) error {
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = n.js.Publish("notify.user."+strconv.FormatInt(userID, 10), data)
	return err
}

// ConsumeOutbound attaches a durable consumer that hands queued
// notifications to the delivery handler. Failed deliveries are
// redelivered up to three times.
func (n *Notifier) ConsumeOutbound(ctx context.Context, handler func(ctx context.Context, out *Outbound) error) (*nats.Subscription, error) {
	return n.js.Subscribe("notify.user.>", func(msg *nats.Msg) {
		var out Outbound
		if err := json.Unmarshal(msg.Data, &out); err != nil {
			_ = msg.Nak()
			return
		}
		if err := handler(ctx, &out); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("notify-delivery"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
}

// DocumentBytes decodes the base64 document payload.
func (o *Outbound) DocumentBytes() ([]byte, error) {
	if o.Document == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(o.Document)
}

// Connected reports whether the NATS connection is up.
func (n *Notifier) Connected() bool {
	return n.conn.IsConnected()
}

// Close drains and closes the connection.
func (n *Notifier) Close() {
	_ = n.conn.Drain()
}
