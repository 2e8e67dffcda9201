// Package natsutil provides typed NATS publish/subscribe helpers with
// OpenTelemetry trace propagation.
package natsutil

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// MsgPublisher is the part of *nats.Conn that Publish needs.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// Publish serializes v as JSON and publishes to the given subject.
// Trace context from ctx is injected into NATS message headers.
func Publish[T any](ctx context.Context, nc MsgPublisher, subject string, v T) error {
	msg, err := newMsg(ctx, subject, v)
	if err != nil {
		return err
	}
	return nc.PublishMsg(msg)
}

func newMsg[T any](ctx context.Context, subject string, v T) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg, nil
}

// SubOption configures Subscribe.
type SubOption func(*subConfig)

type subConfig struct {
	onMalformed func(msg *nats.Msg, err error)
}

// OnMalformed is called for messages whose payload does not decode.
// Without it malformed messages are dropped silently.
func OnMalformed(f func(msg *nats.Msg, err error)) SubOption {
	return func(c *subConfig) { c.onMalformed = f }
}

// Subscribe registers a handler that deserializes JSON messages of type T.
// Trace context is extracted from NATS message headers and passed to the handler.
func Subscribe[T any](nc *nats.Conn, subject string, handler func(context.Context, T), opts ...SubOption) (*nats.Subscription, error) {
	return nc.Subscribe(subject, decoder(handler, opts...))
}

// decoder builds the nats.MsgHandler used by Subscribe.
func decoder[T any](handler func(context.Context, T), opts ...SubOption) nats.MsgHandler {
	var cfg subConfig
	for _, o := range opts {
		o(&cfg)
	}
	return func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			if cfg.onMalformed != nil {
				cfg.onMalformed(msg, err)
			}
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		handler(ctx, v)
	}
}
