package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/tejasgit/zero-trust-agent/pkg/engine"
	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

// Envelope is the wire format on the intake topic: one alert plus the
// classifier's verdict for it.
type Envelope struct {
	Alert          models.Alert          `json:"alert"`
	Classification models.Classification `json:"classification"`
}

// Loop drains the consumer into the engine until the context ends.
// Malformed messages are logged and skipped; an evaluation error does
// not stop intake.
type Loop struct {
	Consumer  Consumer
	Engine    *engine.Engine
	Logger    *log.Logger
	OnMessage func()
}

func (l *Loop) logf(format string, args ...any) {
	if l.Logger != nil {
		l.Logger.Printf(format, args...)
	}
}

func (l *Loop) Run(ctx context.Context) error {
	for {
		msg, err := l.Consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if l.OnMessage != nil {
			l.OnMessage()
		}
		var env Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			l.logf("ingest: drop malformed message: %v", err)
			continue
		}
		if env.Alert.Title == "" && env.Alert.Source == "" {
			l.logf("ingest: drop empty alert envelope")
			continue
		}
		if _, err := l.Engine.Evaluate(ctx, env.Alert, env.Classification); err != nil {
			l.logf("ingest: evaluate %q: %v", env.Alert.Title, err)
		}
	}
}
