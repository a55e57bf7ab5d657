package types

import "time"

type OpKind string

const (
	OpCreate OpKind = "CREATE"
	OpUpdate OpKind = "UPDATE"
	OpDelete OpKind = "DELETE"
)

func (k OpKind) Valid() bool {
	switch k {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Operation is one key mutation inside a change record. For DELETE, Value
// holds the pre-deletion value so earlier states stay reconstructable and a
// delete can be undone by replaying forward. Secret marks the value as
// envelope ciphertext rather than plaintext.
type Operation struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Kind   OpKind `json:"kind"`
	Secret bool   `json:"secret,omitempty"`
}

// ChangeRecord is one immutable entry of the scope's append-only log. All of
// its operations happened at the same instant or not at all; callers never
// observe a partial record. (id, created_at) gives the scope's total order:
// ids are UUIDv7, so sorting by (created_at, id) preserves insertion order.
type ChangeRecord struct {
	ID         string      `json:"id"`
	Scope      Scope       `json:"-"`
	ActorID    string      `json:"actor_id"`
	Message    string      `json:"message"`
	Operations []Operation `json:"operations"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Checkpoint addresses a point in a scope's history: either a change-record
// id (inclusive) or a timestamp (inclusive of records created at or before
// it). Exactly one of the two fields is set.
type Checkpoint struct {
	RecordID string
	At       *time.Time
}

func CheckpointID(id string) Checkpoint { return Checkpoint{RecordID: id} }

func CheckpointTime(at time.Time) Checkpoint { return Checkpoint{At: &at} }

func (c Checkpoint) IsZero() bool { return c.RecordID == "" && c.At == nil }

// Entry is one live-state row: the current value for a key within a scope.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Secret    bool      `json:"secret"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Diff is the three-way comparison of two reconstructed states, keyed by
// variable name. Key lists are sorted.
type Diff struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// TimelineEntry pairs one operation with the change record that carried it.
type TimelineEntry struct {
	RecordID  string    `json:"record_id"`
	ActorID   string    `json:"actor_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Operation Operation `json:"operation"`
}
