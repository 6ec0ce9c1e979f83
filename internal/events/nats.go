package events

import (
	"context"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes records on <subject>.<key>.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

func NewNATSSink(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("messaging-core"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return &NATSSink{nc: nc, subject: subject}, nil
}

func (s *NATSSink) Publish(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := nats.NewMsg(s.subject + "." + key)
	msg.Data = payload
	return s.nc.PublishMsg(msg)
}

func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
