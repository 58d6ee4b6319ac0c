// Package matrix resolves a severity label to the set of downstream
// actions it permits.
package matrix

import (
	"errors"
	"fmt"

	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

// ErrUnknownSeverity means no matrix entry governs the severity. The
// caller must not default to any automation.
var ErrUnknownSeverity = errors.New("no decision matrix entry for severity")

// Permissions are the actions a severity level allows.
type Permissions struct {
	CreateIncident bool
	TriggerMim     bool
	PageOncall     bool
}

// Resolve looks up the severity by exact label match.
func Resolve(severity string, entries []models.DecisionMatrixEntry) (Permissions, error) {
	for _, e := range entries {
		if e.Severity == severity {
			return Permissions{
				CreateIncident: e.CreateIncident,
				TriggerMim:     e.TriggerMim,
				PageOncall:     e.PageOncall,
			}, nil
		}
	}
	return Permissions{}, fmt.Errorf("%w: %q", ErrUnknownSeverity, severity)
}
