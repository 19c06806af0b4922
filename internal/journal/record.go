package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 200
)

// TransitionEntry is a recorded state machine event.
type TransitionEntry struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Device    string    `json:"device"`
	Event     string    `json:"event"`
	State     string    `json:"state"`
	Cycle     uint64    `json:"cycle"`
	Runtime   float64   `json:"runtime"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotEntry is a recorded parameter snapshot.
type SnapshotEntry struct {
	ID        int64              `json:"id"`
	RunID     string             `json:"run_id"`
	Device    string             `json:"device"`
	State     string             `json:"state"`
	Params    map[string]float64 `json:"params"`
	Cycle     uint64             `json:"cycle"`
	Runtime   float64            `json:"runtime"`
	CreatedAt time.Time          `json:"created_at"`
}

// RecordTransition enqueues a state machine event for the current run.
// Non-blocking: the entry is dropped with a warning if the writer is
// saturated.
func (j *Journal) RecordTransition(device, event, state string, cycle uint64, runtime float64) {
	j.enqueue(record{
		kind:    "transition",
		device:  device,
		event:   event,
		state:   state,
		cycle:   cycle,
		runtime: runtime,
	})
}

// RecordSnapshot enqueues a parameter snapshot for the current run.
func (j *Journal) RecordSnapshot(device, state string, params map[string]float64, cycle uint64, runtime float64) {
	payload, err := json.Marshal(params)
	if err != nil {
		j.log.Error("journal snapshot marshal failed", "device", device, "error", err)
		return
	}
	j.enqueue(record{
		kind:    "snapshot",
		device:  device,
		state:   state,
		params:  string(payload),
		cycle:   cycle,
		runtime: runtime,
	})
}

// Flush blocks until every previously enqueued record has been written.
// Intended for tests and shutdown paths.
func (j *Journal) Flush() {
	ack := make(chan struct{})
	j.queue <- record{ack: ack}
	<-ack
}

// Transitions returns recent transition entries for the current run,
// newest first. An empty device matches every device.
func (j *Journal) Transitions(ctx context.Context, device string, limit int) ([]TransitionEntry, error) {
	if j.runID == "" {
		return nil, ErrNoRun
	}
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, device, event, state, cycle, runtime, created_at
		 FROM transitions
		 WHERE run_id = ? AND (? = '' OR device = ?)
		 ORDER BY id DESC
		 LIMIT ?`,
		j.runID, device, device, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	entries := make([]TransitionEntry, 0, limit)
	for rows.Next() {
		var e TransitionEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Device, &e.Event, &e.State, &e.Cycle, &e.Runtime, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}
	return entries, nil
}

// Snapshots returns recent snapshot entries for the current run, newest
// first. An empty device matches every device.
func (j *Journal) Snapshots(ctx context.Context, device string, limit int) ([]SnapshotEntry, error) {
	if j.runID == "" {
		return nil, ErrNoRun
	}
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, device, state, params, cycle, runtime, created_at
		 FROM snapshots
		 WHERE run_id = ? AND (? = '' OR device = ?)
		 ORDER BY id DESC
		 LIMIT ?`,
		j.runID, device, device, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	entries := make([]SnapshotEntry, 0, limit)
	for rows.Next() {
		var e SnapshotEntry
		var paramsJSON string
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Device, &e.State, &paramsJSON, &e.Cycle, &e.Runtime, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(paramsJSON), &e.Params); err != nil {
			return nil, fmt.Errorf("unmarshalling snapshot params: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return entries, nil
}
