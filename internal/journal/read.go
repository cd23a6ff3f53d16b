package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/consent/internal/capability"
	"github.com/roach88/consent/internal/coordinator"
)

// Entry is one recorded event.
type Entry struct {
	Seq          int64                 `json:"seq"`
	Type         coordinator.EventType `json:"type"`
	Key          string                `json:"key,omitempty"`
	KeyDigest    string                `json:"key_digest,omitempty"`
	StackID      string                `json:"stack_id,omitempty"`
	RequestCode  int                   `json:"request_code,omitempty"`
	Capabilities []string              `json:"capabilities"`
	Handler      int                   `json:"handler"`
	Handlers     int                   `json:"handlers"`
	Result       map[string]bool       `json:"result,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// Stack is the recorded lifecycle of one callback stack.
type Stack struct {
	ID           string   `json:"id"`
	Key          string   `json:"key"`
	KeyDigest    string   `json:"key_digest"`
	Capabilities []string `json:"capabilities"`
	RequestCode  int      `json:"request_code"`
	Handlers     int      `json:"handlers"`
	State        string   `json:"state"`
	QueuedSeq    int64    `json:"queued_seq"`
	ResolvedSeq  int64    `json:"resolved_seq,omitempty"`
}

const entryColumns = `seq, type, key, key_digest, stack_id, request_code, capabilities, handler, handlers, result, error`

// Events returns every recorded event ordered by seq.
// Returns an empty slice (not nil) for an empty journal.
func (j *Journal) Events(ctx context.Context) ([]Entry, error) {
	return j.queryEntries(ctx, `
		SELECT `+entryColumns+`
		FROM events
		ORDER BY seq ASC
	`)
}

// EventsByKey returns the events for one capability set, in any input order.
func (j *Journal) EventsByKey(ctx context.Context, capabilities ...string) ([]Entry, error) {
	key, err := capability.Key(capabilities...)
	if err != nil {
		return nil, fmt.Errorf("events by key: %w", err)
	}
	return j.EventsByDigest(ctx, capability.KeyDigest(key))
}

// EventsByDigest returns the events whose key has the given digest.
func (j *Journal) EventsByDigest(ctx context.Context, digest string) ([]Entry, error) {
	return j.queryEntries(ctx, `
		SELECT `+entryColumns+`
		FROM events
		WHERE key_digest = ?
		ORDER BY seq ASC
	`, digest)
}

// EventsByStack returns the events of one callback stack.
func (j *Journal) EventsByStack(ctx context.Context, stackID string) ([]Entry, error) {
	return j.queryEntries(ctx, `
		SELECT `+entryColumns+`
		FROM events
		WHERE stack_id = ?
		ORDER BY seq ASC
	`, stackID)
}

// Stacks returns every recorded stack ordered by the seq it was queued at.
func (j *Journal) Stacks(ctx context.Context) ([]Stack, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, key, key_digest, capabilities, request_code, handlers, state, queued_seq, resolved_seq
		FROM stacks
		ORDER BY queued_seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query stacks: %w", err)
	}
	defer rows.Close()

	stacks := []Stack{}
	for rows.Next() {
		var st Stack
		var capsJSON string
		var resolved sql.NullInt64
		if err := rows.Scan(
			&st.ID, &st.Key, &st.KeyDigest, &capsJSON, &st.RequestCode,
			&st.Handlers, &st.State, &st.QueuedSeq, &resolved,
		); err != nil {
			return nil, fmt.Errorf("scan stack: %w", err)
		}
		if st.Capabilities, err = unmarshalCapabilities(capsJSON); err != nil {
			return nil, err
		}
		st.ResolvedSeq = resolved.Int64
		stacks = append(stacks, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stacks: %w", err)
	}
	return stacks, nil
}

// Stack retrieves one stack by id.
// Returns sql.ErrNoRows if not found.
func (j *Journal) Stack(ctx context.Context, id string) (Stack, error) {
	var st Stack
	var capsJSON string
	var resolved sql.NullInt64
	err := j.db.QueryRowContext(ctx, `
		SELECT id, key, key_digest, capabilities, request_code, handlers, state, queued_seq, resolved_seq
		FROM stacks
		WHERE id = ?
	`, id).Scan(
		&st.ID, &st.Key, &st.KeyDigest, &capsJSON, &st.RequestCode,
		&st.Handlers, &st.State, &st.QueuedSeq, &resolved,
	)
	if err != nil {
		return Stack{}, err
	}
	if st.Capabilities, err = unmarshalCapabilities(capsJSON); err != nil {
		return Stack{}, err
	}
	st.ResolvedSeq = resolved.Int64
	return st, nil
}

func (j *Journal) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var typ, capsJSON string
	var result sql.NullString

	if err := rows.Scan(
		&e.Seq, &typ, &e.Key, &e.KeyDigest, &e.StackID, &e.RequestCode,
		&capsJSON, &e.Handler, &e.Handlers, &result, &e.Error,
	); err != nil {
		return Entry{}, fmt.Errorf("scan event: %w", err)
	}
	e.Type = coordinator.EventType(typ)

	var err error
	if e.Capabilities, err = unmarshalCapabilities(capsJSON); err != nil {
		return Entry{}, err
	}
	if e.Result, err = unmarshalResult(result); err != nil {
		return Entry{}, err
	}
	return e, nil
}
