package gate

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Approval lifecycle states.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
	StatusExpired  = "EXPIRED"
)

var (
	ErrApprovalNotFound = errors.New("approval not found")
	ErrApprovalResolved = errors.New("approval already resolved")
)

// CanResolve reports whether an approval in state from may move to state
// to. Pending is the only non-terminal state.
func CanResolve(from, to string) bool {
	if from != StatusPending {
		return false
	}
	return to == StatusApproved || to == StatusRejected || to == StatusExpired
}

// Resolution is delivered to the ledger callback exactly once per
// approval, whichever of approve, reject or timeout fires first.
type Resolution struct {
	ID             string
	IncidentID     string
	ActionType     string
	Status         string
	Approver       string
	FallbackAction string
	ResolvedAt     time.Time
}

// Approval is a snapshot of a ledger entry.
type Approval struct {
	ID             string    `json:"id"`
	IncidentID     string    `json:"incidentId"`
	ActionType     string    `json:"actionType"`
	RuleID         string    `json:"ruleId"`
	FallbackAction string    `json:"fallbackAction"`
	Status         string    `json:"status"`
	Approver       string    `json:"approver,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

type entry struct {
	Approval
	timer *time.Timer
}

// DefaultRetention is how long a resolved approval stays readable
// before the ledger drops it. Long enough for a second operator's
// resolve attempt to see "already resolved" rather than "not found".
const DefaultRetention = time.Hour

// Ledger tracks pending approvals and resolves each exactly once.
// Timeouts fire on their own goroutine via time.AfterFunc; the engine
// never blocks waiting on a human. Resolved entries linger for
// Retention and are then dropped, so the map stays bounded by the
// in-flight plus recently-resolved set.
type Ledger struct {
	mu        sync.Mutex
	entries   map[string]*entry
	resolve   func(Resolution)
	Retention time.Duration
}

// NewLedger builds a ledger that invokes resolve on every resolution,
// including timeouts. resolve must not call back into the ledger.
func NewLedger(resolve func(Resolution)) *Ledger {
	return &Ledger{entries: map[string]*entry{}, resolve: resolve, Retention: DefaultRetention}
}

// Open registers a pending approval for a gated action and arms its
// expiry timer.
func (l *Ledger) Open(incidentID, actionType string, d Decision) Approval {
	now := time.Now().UTC()
	a := Approval{
		ID:             uuid.NewString(),
		IncidentID:     incidentID,
		ActionType:     actionType,
		RuleID:         d.RuleID,
		FallbackAction: d.FallbackAction,
		Status:         StatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(d.TimeoutSeconds) * time.Second),
	}
	e := &entry{Approval: a}
	e.timer = time.AfterFunc(time.Until(a.ExpiresAt), func() { l.expire(a.ID) })

	l.mu.Lock()
	l.entries[a.ID] = e
	l.mu.Unlock()
	return a
}

// Approve resolves a pending approval in the operator's favor and
// cancels the expiry timer.
func (l *Ledger) Approve(id, approver string) error {
	return l.close(id, StatusApproved, approver)
}

// Reject resolves a pending approval against execution.
func (l *Ledger) Reject(id, approver string) error {
	return l.close(id, StatusRejected, approver)
}

// Get returns a snapshot of the entry.
func (l *Ledger) Get(id string) (Approval, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return Approval{}, ErrApprovalNotFound
	}
	return e.Approval, nil
}

// Pending lists unresolved entries, oldest first.
func (l *Ledger) Pending() []Approval {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Approval, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Status == StatusPending {
			out = append(out, e.Approval)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (l *Ledger) close(id, to, approver string) error {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		l.mu.Unlock()
		return ErrApprovalNotFound
	}
	if !CanResolve(e.Status, to) {
		l.mu.Unlock()
		return ErrApprovalResolved
	}
	e.Status = to
	e.Approver = approver
	if e.timer != nil {
		e.timer.Stop()
	}
	res := Resolution{
		ID:             e.ID,
		IncidentID:     e.IncidentID,
		ActionType:     e.ActionType,
		Status:         to,
		Approver:       approver,
		FallbackAction: e.FallbackAction,
		ResolvedAt:     time.Now().UTC(),
	}
	retention := l.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	time.AfterFunc(retention, func() { l.drop(id) })
	l.mu.Unlock()

	if l.resolve != nil {
		l.resolve(res)
	}
	return nil
}

// drop removes a resolved entry once its retention lapses. Pending
// entries are never dropped; only close schedules a drop.
func (l *Ledger) drop(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[id]; ok && e.Status != StatusPending {
		delete(l.entries, id)
	}
}

func (l *Ledger) expire(id string) {
	// Races with Approve/Reject resolve in CanResolve's favor; whoever
	// lands first wins and the loser is a no-op.
	_ = l.close(id, StatusExpired, "")
}
