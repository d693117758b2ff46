package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"

	"taxlens/pkg/platform/circuit"
)

// Producer is the subset of *kgo.Client the Kafka publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher queues events and produces them from Run. Publish never
// blocks the caller: when the queue is full the event is dropped and counted.
type KafkaPublisher struct {
	producer Producer
	queue    chan Event
	logger   *slog.Logger
	breaker  *circuit.Breaker
	dropped  atomic.Int64
	failed   atomic.Int64
}

// KafkaOption configures a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

// WithQueueSize sets how many events may wait for Run.
func WithQueueSize(n int) KafkaOption {
	return func(p *KafkaPublisher) {
		if n > 0 {
			p.queue = make(chan Event, n)
		}
	}
}

// WithBreaker replaces the circuit breaker guarding the broker.
func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(p *KafkaPublisher) {
		if b != nil {
			p.breaker = b
		}
	}
}

func NewKafkaPublisher(producer Producer, opts ...KafkaOption) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		queue:    make(chan Event, 1024),
		logger:   slog.Default(),
		breaker:  circuit.New("kafka"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *KafkaPublisher) Publish(_ context.Context, event Event) error {
	select {
	case p.queue <- event:
		return nil
	default:
		p.dropped.Add(1)
		return fmt.Errorf("kafka event queue full, dropped %s %s", event.Type, event.ID)
	}
}

// Run produces queued events until ctx is cancelled. Produce failures are
// logged and counted; the event is not retried. While the breaker is open,
// events are dropped without contacting the broker.
func (p *KafkaPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-p.queue:
			p.handle(ctx, event)
		}
	}
}

func (p *KafkaPublisher) handle(ctx context.Context, event Event) {
	if !p.breaker.Allow() {
		p.dropped.Add(1)
		return
	}
	if err := p.produce(ctx, event); err != nil {
		p.failed.Add(1)
		p.logger.ErrorContext(ctx, "failed to produce event",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "kafka circuit opened, dropping events until the broker recovers")
		}
		return
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "kafka circuit closed")
	}
}

func (p *KafkaPublisher) produce(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(event.Key()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	return p.producer.ProduceSync(ctx, record).FirstErr()
}

// Dropped returns how many events were discarded because the queue was full
// or the breaker was open.
func (p *KafkaPublisher) Dropped() int64 { return p.dropped.Load() }

// Failed returns how many events the broker rejected.
func (p *KafkaPublisher) Failed() int64 { return p.failed.Load() }
