package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/starterkit-core/internal/infrastructure/database"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// fakePublisher records publishes instead of talking to a broker.
type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
	gate chan struct{}
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic, payload, qos, retained})
	return f.err
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func sampleEvent() database.OperationEvent {
	return database.OperationEvent{
		Operation: database.OpWithTransaction,
		Outcome:   database.OutcomeRolledBack,
		Duration:  1500 * time.Microsecond,
		Err:       errors.New("constraint failed"),
		At:        time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewOperationMessage(t *testing.T) {
	msg := NewOperationMessage(sampleEvent(), "starterkit")

	if msg.Operation != "with_transaction" || msg.Outcome != "rolled_back" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Success {
		t.Error("Success = true for failed event")
	}
	if msg.DurationMS != 1.5 {
		t.Errorf("DurationMS = %v, want 1.5", msg.DurationMS)
	}
	if msg.Error != "constraint failed" {
		t.Errorf("Error = %q", msg.Error)
	}

	ok := NewOperationMessage(database.OperationEvent{Operation: "with_connection", Outcome: "ok"}, "")
	if !ok.Success || ok.Error != "" {
		t.Errorf("successful message = %+v", ok)
	}
}

func TestOperationPublisher_Publish(t *testing.T) {
	pub := &fakePublisher{}
	p := NewOperationPublisher(pub, NewTopics("app"), 1, "svc")

	if err := p.Publish(sampleEvent()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msgs := pub.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "app/db/operations/with_transaction" {
		t.Errorf("topic = %q", msgs[0].topic)
	}
	if msgs[0].retained || msgs[0].qos != 1 {
		t.Errorf("qos/retained = %d/%v, want 1/false", msgs[0].qos, msgs[0].retained)
	}

	var decoded OperationMessage
	if err := json.Unmarshal(msgs[0].payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.Source != "svc" || decoded.Outcome != "rolled_back" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestOperationPublisher_RunFlushesOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	p := NewOperationPublisher(pub, NewTopics(""), 0, "svc")

	for i := 0; i < 5; i++ {
		p.ObserveOperation(context.Background(), database.OperationEvent{Operation: "with_connection", Outcome: "ok"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := len(pub.messages()); got != 5 {
		t.Errorf("published %d messages, want 5", got)
	}
}

func TestOperationPublisher_DropsWhenFull(t *testing.T) {
	pub := &fakePublisher{gate: make(chan struct{})}
	p := NewOperationPublisher(pub, NewTopics(""), 0, "svc")

	total := defaultEventBuffer + 10
	done := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			p.ObserveOperation(context.Background(), database.OperationEvent{Operation: "with_connection"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ObserveOperation blocked with no consumer")
	}
	if got := p.Dropped(); got != 10 {
		t.Errorf("Dropped() = %d, want 10", got)
	}
	close(pub.gate)
}

func TestOperationPublisher_LogsFailures(t *testing.T) {
	pub := &fakePublisher{err: ErrNotConnected}
	logger := &mockLogger{}
	p := NewOperationPublisher(pub, NewTopics(""), 0, "svc")
	p.SetLogger(logger)

	p.ObserveOperation(context.Background(), sampleEvent())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = p.Run(ctx)

	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one publish failure", logger.warns)
	}
}

func TestSettingsNotifier(t *testing.T) {
	pub := &fakePublisher{}
	n := NewSettingsNotifier(pub, NewTopics("app"), 1, "svc")
	n.now = func() time.Time { return time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC) }

	if err := n.SettingChanged(context.Background(), "theme", "dark"); err != nil {
		t.Fatalf("SettingChanged() error = %v", err)
	}

	msgs := pub.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "app/settings/theme" || !msgs[0].retained {
		t.Errorf("topic/retained = %q/%v", msgs[0].topic, msgs[0].retained)
	}
	want := `{"key":"theme","value":"dark","source":"svc","timestamp":"2026-01-18T12:00:00Z"}`
	if string(msgs[0].payload) != want {
		t.Errorf("payload = %s, want %s", msgs[0].payload, want)
	}
}

func TestSettingsNotifier_PublishError(t *testing.T) {
	n := NewSettingsNotifier(&fakePublisher{err: ErrNotConnected}, NewTopics(""), 0, "")

	if err := n.SettingChanged(context.Background(), "theme", "dark"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SettingChanged() error = %v, want ErrNotConnected", err)
	}
}
