package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/starterkit-core/internal/infrastructure/database"
)

// defaultEventBuffer is how many operation events may wait for the broker.
const defaultEventBuffer = 256

// Publisher is the part of *Client the event publishers need.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

var _ Publisher = (*Client)(nil)

// OperationMessage is the JSON payload published for each database manager call.
type OperationMessage struct {
	Operation  string    `json:"operation"`
	Outcome    string    `json:"outcome"`
	Success    bool      `json:"success"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Source     string    `json:"source,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewOperationMessage converts a manager event into its wire form.
func NewOperationMessage(ev database.OperationEvent, source string) OperationMessage {
	msg := OperationMessage{
		Operation:  ev.Operation,
		Outcome:    ev.Outcome,
		Success:    ev.Success(),
		DurationMS: float64(ev.Duration) / float64(time.Millisecond),
		Source:     source,
		Timestamp:  ev.At,
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}

// OperationPublisher implements database.Observer by publishing every
// manager call to {prefix}/db/operations/{operation}.
//
// ObserveOperation only enqueues; Run performs the publishes so callers of
// WithConnection/WithTransaction never wait on the broker. Events that do
// not fit in the queue are dropped and counted.
type OperationPublisher struct {
	pub    Publisher
	topics Topics
	qos    byte
	source string

	queue   chan database.OperationEvent
	dropped atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

var _ database.Observer = (*OperationPublisher)(nil)

// NewOperationPublisher creates a publisher. source identifies this process
// in the payload (typically the configured app name).
func NewOperationPublisher(pub Publisher, topics Topics, qos byte, source string) *OperationPublisher {
	return &OperationPublisher{
		pub:    pub,
		topics: topics,
		qos:    qos,
		source: source,
		queue:  make(chan database.OperationEvent, defaultEventBuffer),
	}
}

// SetLogger sets a logger for publish failures.
func (p *OperationPublisher) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// ObserveOperation queues ev for publishing without blocking.
func (p *OperationPublisher) ObserveOperation(_ context.Context, ev database.OperationEvent) {
	select {
	case p.queue <- ev:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (p *OperationPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Run publishes queued events until ctx is cancelled, then flushes what is
// already queued and returns.
func (p *OperationPublisher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-p.queue:
			p.publish(ev)
		case <-ctx.Done():
			p.flush()
			return nil
		}
	}
}

func (p *OperationPublisher) flush() {
	for {
		select {
		case ev := <-p.queue:
			p.publish(ev)
		default:
			return
		}
	}
}

func (p *OperationPublisher) publish(ev database.OperationEvent) {
	if err := p.Publish(ev); err != nil {
		p.loggerMu.RLock()
		logger := p.logger
		p.loggerMu.RUnlock()
		if logger != nil {
			logger.Warn("publishing database operation failed",
				"operation", ev.Operation,
				"error", err,
			)
		}
	}
}

// Publish sends one event synchronously.
func (p *OperationPublisher) Publish(ev database.OperationEvent) error {
	payload, err := json.Marshal(NewOperationMessage(ev, p.source))
	if err != nil {
		return fmt.Errorf("encoding operation event: %w", err)
	}
	return p.pub.Publish(p.topics.Operation(ev.Operation), payload, p.qos, false)
}

// SettingMessage is the retained payload announcing a setting's current value.
type SettingMessage struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SettingsNotifier publishes setting changes as retained messages so late
// subscribers see the current value.
type SettingsNotifier struct {
	pub    Publisher
	topics Topics
	qos    byte
	source string
	now    func() time.Time
}

// NewSettingsNotifier creates a notifier publishing under topics.
func NewSettingsNotifier(pub Publisher, topics Topics, qos byte, source string) *SettingsNotifier {
	return &SettingsNotifier{pub: pub, topics: topics, qos: qos, source: source, now: time.Now}
}

// SettingChanged publishes the value now in effect for key.
func (n *SettingsNotifier) SettingChanged(_ context.Context, key, value string) error {
	payload, err := json.Marshal(SettingMessage{
		Key:       key,
		Value:     value,
		Source:    n.source,
		Timestamp: n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding setting change: %w", err)
	}
	return n.pub.Publish(n.topics.SettingChanged(key), payload, n.qos, true)
}
