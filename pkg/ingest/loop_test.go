package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/tejasgit/zero-trust-agent/pkg/audit"
	"github.com/tejasgit/zero-trust-agent/pkg/engine"
	"github.com/tejasgit/zero-trust-agent/pkg/models"
	"github.com/tejasgit/zero-trust-agent/pkg/store"
)

// scriptedConsumer replays a fixed message sequence and then reports the
// context as canceled, the way a real reader does on shutdown.
type scriptedConsumer struct {
	messages [][]byte
	errAfter error
	closed   bool
}

func (c *scriptedConsumer) ReadMessage(_ context.Context) (Message, error) {
	if len(c.messages) == 0 {
		if c.errAfter != nil {
			return Message{}, c.errAfter
		}
		return Message{}, context.Canceled
	}
	msg := c.messages[0]
	c.messages = c.messages[1:]
	return Message{Value: msg}, nil
}

func (c *scriptedConsumer) Close() error {
	c.closed = true
	return nil
}

func newIngestEngine(t *testing.T) (*engine.Engine, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	if _, err := ms.CreateMatrixEntry(context.Background(), models.DecisionMatrixEntry{
		Severity: "high", CreateIncident: true,
	}); err != nil {
		t.Fatalf("seed matrix: %v", err)
	}
	return &engine.Engine{Store: ms, Audit: audit.NewMemorySink()}, ms
}

func TestLoopEvaluatesEnvelopes(t *testing.T) {
	eng, ms := newIngestEngine(t)
	consumer := &scriptedConsumer{messages: [][]byte{
		[]byte(`{"alert":{"source":"Datadog","title":"High latency"},"classification":{"label":"high","confidence":0.4,"priority":"high"}}`),
	}}

	var seen int
	loop := &Loop{Consumer: consumer, Engine: eng, OnMessage: func() { seen++ }}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen != 1 {
		t.Fatalf("OnMessage fired %d times, want 1", seen)
	}
	// Low trust opens a suppressed incident; what matters here is that
	// the envelope reached the engine.
	incs, _ := ms.ListIncidents(context.Background())
	if len(incs) != 1 {
		t.Fatalf("engine saw %d incidents, want 1", len(incs))
	}
}

func TestLoopDropsMalformedAndEmpty(t *testing.T) {
	eng, ms := newIngestEngine(t)
	consumer := &scriptedConsumer{messages: [][]byte{
		[]byte(`{not json`),
		[]byte(`{"alert":{},"classification":{}}`),
	}}

	loop := &Loop{Consumer: consumer, Engine: eng}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if incs, _ := ms.ListIncidents(context.Background()); len(incs) != 0 {
		t.Fatalf("dropped messages must not reach the engine")
	}
}

func TestLoopStopsOnContextEnd(t *testing.T) {
	eng, _ := newIngestEngine(t)

	if err := (&Loop{Consumer: &scriptedConsumer{}, Engine: eng}).Run(context.Background()); err != nil {
		t.Fatalf("canceled context must end the loop cleanly: %v", err)
	}
	if err := (&Loop{Consumer: &scriptedConsumer{errAfter: context.DeadlineExceeded}, Engine: eng}).Run(context.Background()); err != nil {
		t.Fatalf("deadline must end the loop cleanly: %v", err)
	}
}

func TestLoopPropagatesReadErrors(t *testing.T) {
	eng, _ := newIngestEngine(t)
	readErr := errors.New("broker gone")

	err := (&Loop{Consumer: &scriptedConsumer{errAfter: readErr}, Engine: eng}).Run(context.Background())
	if !errors.Is(err, readErr) {
		t.Fatalf("want the read error back, got %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " broker-a:9092 , broker-b:9092 ,")
	t.Setenv("KAFKA_TOPIC", "")
	t.Setenv("KAFKA_GROUP_ID", "")

	cfg := ConfigFromEnv()
	if len(cfg.Brokers) != 2 || cfg.Brokers[0] != "broker-a:9092" {
		t.Fatalf("brokers = %v", cfg.Brokers)
	}
	if cfg.Topic != "triage.alerts" || cfg.GroupID != "triage-gateway" {
		t.Fatalf("defaults = %q / %q", cfg.Topic, cfg.GroupID)
	}
}

func TestNewKafkaConsumerValidation(t *testing.T) {
	if _, err := NewKafkaConsumer(KafkaConfig{Topic: "t", GroupID: "g"}); err == nil {
		t.Fatal("missing brokers must fail")
	}
	if _, err := NewKafkaConsumer(KafkaConfig{Brokers: []string{"b:9092"}, GroupID: "g"}); err == nil {
		t.Fatal("missing topic must fail")
	}
	if _, err := NewKafkaConsumer(KafkaConfig{Brokers: []string{"b:9092"}, Topic: "t"}); err == nil {
		t.Fatal("missing group id must fail")
	}

	c, err := NewKafkaConsumer(KafkaConfig{Brokers: []string{"b:9092"}, Topic: "t", GroupID: "g"})
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
