package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	kafka "github.com/segmentio/kafka-go"

	"chainflow/config"
	"chainflow/logger"
)

// ErrQueueFull is returned when the publisher buffer is saturated.
var ErrQueueFull = errors.New("event queue full")

const defaultQueueSize = 64

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes table events keyed by table name so every table keeps
// its order within a partition.
type KafkaPublisher struct {
	writer messageWriter
	queue  chan TableEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	closed  bool

	log *logger.Entry
}

func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	p := newKafkaPublisher(w, defaultQueueSize)
	p.log.WithFields(logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Debug("kafka publisher initialized")
	return p, nil
}

func newKafkaPublisher(w messageWriter, queueSize int) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		queue:  make(chan TableEvent, queueSize),
		log:    logger.GetLogger().WithComponent("kafka_publisher"),
	}
}

// Start launches the delivery loop. It stops when ctx is done or Close is
// called.
func (p *KafkaPublisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("kafka publisher already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()
	return nil
}

// Publish enqueues ev without waiting for the broker.
func (p *KafkaPublisher) Publish(_ context.Context, ev TableEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("kafka publisher closed")
	}
	select {
	case p.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *KafkaPublisher) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case ev, ok := <-p.queue:
			if !ok {
				return
			}
			p.deliver(ev)
		}
	}
}

func (p *KafkaPublisher) deliver(ev TableEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.WithError(err).Warn("failed to marshal table event")
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.Table),
		Value: data,
	}
	if err := p.writer.WriteMessages(p.ctx, msg); err != nil {
		p.log.WithError(err).WithFields(logger.Fields{"table": ev.Table}).Warn("failed to write table event")
		return
	}
	p.log.WithFields(logger.Fields{
		"run_id": ev.RunID,
		"table":  ev.Table,
		"rows":   len(ev.Rows),
	}).Debug("table event written to kafka")
}

// Close drains queued events and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	running := p.running
	p.mu.Unlock()

	if running {
		p.wg.Wait()
		p.cancel()
	}
	return p.writer.Close()
}
