package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/metrics"
)

// Sink is a durable event transport such as a Kafka topic or a NATS subject.
type Sink interface {
	Publish(ctx context.Context, key string, payload []byte) error
	Close() error
}

// Record is what lands on the sink for every committed lifecycle event.
type Record struct {
	Type    domain.EventType `json:"type"`
	Key     string           `json:"key"`
	Targets []int64          `json:"targets"`
	Payload any              `json:"payload"`
	At      time.Time        `json:"at"`
}

type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Publisher forwards events to a Sink behind a circuit breaker. Publish never
// fails the caller; errors are logged and counted.
type Publisher struct {
	sink    Sink
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	log     *zap.Logger
}

func NewPublisher(sink Sink, bs BreakerSettings, timeout time.Duration, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if bs.MaxFailures == 0 {
		bs.MaxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        "event-sink",
		MaxRequests: 1,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Publisher{
		sink:    sink,
		cb:      gobreaker.NewCircuitBreaker(st),
		timeout: timeout,
		log:     log,
	}
}

// Publish sends ev keyed by key. A nil Publisher or nil sink is a no-op.
func (p *Publisher) Publish(ctx context.Context, key string, ev domain.Event, targets ...int64) {
	if p == nil || p.sink == nil {
		return
	}
	b, err := json.Marshal(Record{Type: ev.Type, Key: key, Targets: targets, Payload: ev.Payload, At: ev.At})
	if err != nil {
		p.log.Error("marshal event record", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}

	// the caller's request may end before the sink answers
	cctx := context.WithoutCancel(ctx)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(cctx, p.timeout)
		defer cancel()
	}
	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.sink.Publish(cctx, key, b)
	})
	if err != nil {
		metrics.SinkPublishFailures.Inc()
		p.log.Warn("event sink publish failed", zap.String("type", string(ev.Type)), zap.String("key", key), zap.Error(err))
	}
}

func (p *Publisher) State() gobreaker.State {
	return p.cb.State()
}

func (p *Publisher) Close() error {
	if p == nil || p.sink == nil {
		return nil
	}
	return p.sink.Close()
}
