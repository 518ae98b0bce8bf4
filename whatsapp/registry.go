package whatsapp

import (
	"sync"
	"time"

	"whatsapp-branch-bot/types"
)

// Record is the live state of one branch session.
type Record struct {
	Branch     types.Branch
	Status     types.Status
	QR         string
	UpdatedAt  time.Time
	Reconnects int
}

// Registry maps branch ids to session records. It is owned by the Manager;
// controllers write their own record and the dashboard reads snapshots.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	records map[string]*Record
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Reset replaces the record for branch with a fresh initializing one. The
// reconnect count survives the replacement.
func (r *Registry) Reset(branch types.Branch) Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := &Record{
		Branch:    branch,
		Status:    types.StatusInitializing,
		UpdatedAt: r.now(),
	}
	if old, ok := r.records[branch.ID]; ok {
		fresh.Reconnects = old.Reconnects
	} else {
		r.order = append(r.order, branch.ID)
	}
	r.records[branch.ID] = fresh
	return *fresh
}

// Update applies fn to the record of id and returns the result. It reports
// false if the branch has never been initiated.
func (r *Registry) Update(id string, fn func(*Record)) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	fn(rec)
	rec.UpdatedAt = r.now()
	return *rec, true
}

func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Snapshot returns every initiated branch in the order they were first started.
func (r *Registry) Snapshot() []types.SessionSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.SessionSnapshot, 0, len(r.order))
	for _, id := range r.order {
		rec := r.records[id]
		out = append(out, types.SessionSnapshot{
			Branch:     rec.Branch.ID,
			Name:       rec.Branch.DisplayName(),
			Status:     rec.Status,
			QR:         rec.QR,
			UpdatedAt:  rec.UpdatedAt,
			Reconnects: rec.Reconnects,
		})
	}
	return out
}
