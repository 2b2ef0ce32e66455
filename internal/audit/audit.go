// Package audit keeps a bounded in-memory trail of operator actions.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the number of records kept before the oldest are dropped.
const DefaultCapacity = 500

// Outcomes of a recorded action.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Record describes one state-mutating request.
type Record struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Target     string    `json:"target,omitempty"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	Details    string    `json:"details,omitempty"`
	At         time.Time `json:"at"`
}

// Log is a fixed-capacity action trail safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	records  []Record
	capacity int
	now      func() time.Time
}

// New creates a log holding at most capacity records.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Record appends an entry. A non-nil err marks the outcome as an error and
// becomes the details.
func (l *Log) Record(action, target string, inputs interface{}, details string, err error) Record {
	r := Record{
		ID:         uuid.NewString(),
		Action:     action,
		Target:     target,
		InputsHash: hashInputs(inputs),
		Outcome:    OutcomeOK,
		Details:    details,
	}
	if err != nil {
		r.Outcome = OutcomeError
		r.Details = err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	r.At = l.now()
	l.records = append(l.records, r)
	if over := len(l.records) - l.capacity; over > 0 {
		l.records = append(l.records[:0:0], l.records[over:]...)
	}
	return r
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Action string
	Target string
	Since  time.Time
	Until  time.Time
}

func (f Filter) match(r Record) bool {
	switch {
	case f.Action != "" && r.Action != f.Action:
		return false
	case f.Target != "" && r.Target != f.Target:
		return false
	case !f.Since.IsZero() && r.At.Before(f.Since):
		return false
	case !f.Until.IsZero() && r.At.After(f.Until):
		return false
	}
	return true
}

// List returns up to limit records matching f, newest first. limit <= 0
// returns all matches.
func (l *Log) List(f Filter, limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []Record{}
	for i := len(l.records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if f.match(l.records[i]) {
			out = append(out, l.records[i])
		}
	}
	return out
}

// Len returns the number of records held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
