package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/consent/internal/capability"
	"github.com/roach88/consent/internal/coordinator"
)

// stackSnapshotTypes carry the stack's request code and handler count as of
// their seq. Delivery events do not.
var stackSnapshotTypes = []coordinator.EventType{
	coordinator.EventQueued,
	coordinator.EventJoined,
	coordinator.EventIssued,
	coordinator.EventDeferred,
	coordinator.EventResolved,
}

// projectStack upserts the stacks row for id from its events:
//   - key, capabilities, request code and handlers from the latest snapshot event
//   - state resolved if a resolved event exists, else executed if an issued
//     event exists, else pending
//   - queued_seq is 0 until the queued event itself is recorded
//
// No row is written until a snapshot event for the stack exists.
func projectStack(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stacks
		(id, key, key_digest, capabilities, request_code, handlers, state, queued_seq, resolved_seq)
		SELECT
			latest.stack_id,
			latest.key,
			latest.key_digest,
			latest.capabilities,
			latest.request_code,
			latest.handlers,
			CASE
				WHEN EXISTS (SELECT 1 FROM events WHERE stack_id = ? AND type = ?) THEN ?
				WHEN EXISTS (SELECT 1 FROM events WHERE stack_id = ? AND type = ?) THEN ?
				ELSE ?
			END,
			COALESCE((SELECT MIN(seq) FROM events WHERE stack_id = ? AND type = ?), 0),
			(SELECT MIN(seq) FROM events WHERE stack_id = ? AND type = ?)
		FROM (
			SELECT stack_id, key, key_digest, capabilities, request_code, handlers
			FROM events
			WHERE stack_id = ? AND type IN (?, ?, ?, ?, ?)
			ORDER BY seq DESC
			LIMIT 1
		) AS latest
		WHERE true
		ON CONFLICT(id) DO UPDATE SET
			key          = excluded.key,
			key_digest   = excluded.key_digest,
			capabilities = excluded.capabilities,
			request_code = excluded.request_code,
			handlers     = excluded.handlers,
			state        = excluded.state,
			queued_seq   = excluded.queued_seq,
			resolved_seq = excluded.resolved_seq
	`,
		id, string(coordinator.EventResolved), coordinator.StateResolved.String(),
		id, string(coordinator.EventIssued), coordinator.StateExecuted.String(),
		coordinator.StatePending.String(),
		id, string(coordinator.EventQueued),
		id, string(coordinator.EventResolved),
		id,
		string(stackSnapshotTypes[0]),
		string(stackSnapshotTypes[1]),
		string(stackSnapshotTypes[2]),
		string(stackSnapshotTypes[3]),
		string(stackSnapshotTypes[4]),
	)
	return err
}

// Record appends one coordinator event and updates the stack it belongs to.
//
// Uses ON CONFLICT(seq) DO NOTHING for idempotency: recording the same event twice
// leaves the journal unchanged, including the stack row.
//
// Observers run after the coordinator releases its lock, so events from
// different goroutines may arrive out of seq order. The stack row is therefore
// rebuilt from all of the stack's recorded events rather than patched per event.
func (j *Journal) Record(ctx context.Context, e coordinator.Event) error {
	capsJSON, err := marshalCapabilities(e.Capabilities)
	if err != nil {
		return fmt.Errorf("record event %d: %w", e.Seq, err)
	}
	result, err := marshalResult(e.Result)
	if err != nil {
		return fmt.Errorf("record event %d: %w", e.Seq, err)
	}
	var digest string
	if e.Key != "" {
		digest = capability.KeyDigest(e.Key)
	}
	var errText string
	if e.Err != nil {
		errText = e.Err.Error()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record event %d: begin: %w", e.Seq, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(seq, type, key, key_digest, stack_id, request_code, capabilities, handler, handlers, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		e.Seq,
		string(e.Type),
		e.Key,
		digest,
		e.StackID,
		e.RequestCode,
		capsJSON,
		e.Handler,
		e.Handlers,
		result,
		errText,
	)
	if err != nil {
		return fmt.Errorf("record event %d: %w", e.Seq, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("record event %d: %w", e.Seq, err)
	} else if n == 0 {
		return nil
	}

	if e.StackID != "" {
		if err := projectStack(ctx, tx, e.StackID); err != nil {
			return fmt.Errorf("record event %d: update stack %s: %w", e.Seq, e.StackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record event %d: commit: %w", e.Seq, err)
	}
	return nil
}

// Observer returns a coordinator.Observer that records every event.
// Observe cannot fail, so write errors are logged and the event is dropped.
func (j *Journal) Observer(ctx context.Context, logger *slog.Logger) coordinator.Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return coordinator.ObserverFunc(func(e coordinator.Event) {
		if err := j.Record(ctx, e); err != nil {
			logger.Error("journal write failed", "seq", e.Seq, "type", e.Type, "error", err)
		}
	})
}
