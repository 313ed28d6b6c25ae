package qcdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helios-array/quality.monitor/internal/calo"
)

// ErrCycleNotFound reports a lookup for a cycle id with no stored row.
var ErrCycleNotFound = errors.New("cycle not found")

// storedTimeLayout is fixed-width so lexicographic ORDER BY on the TEXT
// column matches chronological order. RFC3339Nano would trim trailing
// zeros and break that.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z"

// CycleRecord is the stored metadata of one archived cycle, without the
// snapshot payload.
type CycleRecord struct {
	CycleID    string    `json:"cycle_id"`
	ActivityID string    `json:"activity_id"`
	Cycle      int       `json:"cycle"`
	Mode       string    `json:"mode"`
	CreatedAt  time.Time `json:"created_at"`
	Batches    int64     `json:"batches"`
	Events     int64     `json:"events"`
	Readings   int64     `json:"readings"`
}

// SaveSnapshot archives one cycle snapshot and returns its record id.
func (db *DB) SaveSnapshot(s *calo.Snapshot) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshalling snapshot: %w", err)
	}

	id := uuid.NewString()
	err = retryOnBusy(func() error {
		_, err := db.Exec(
			`INSERT INTO qc_cycles (
				cycle_id, activity_id, cycle, mode, created_at,
				batches, events, readings, snapshot_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, s.ActivityID, s.Cycle, s.Mode, s.CreatedAt.UTC().Format(storedTimeLayout),
			int64(s.Counters.Batches), int64(s.Counters.Events), int64(s.Counters.Readings),
			string(payload),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("inserting cycle %d of activity %s: %w", s.Cycle, s.ActivityID, err)
	}
	return id, nil
}

// RecentCycles returns metadata for the most recently archived cycles,
// newest first.
func (db *DB) RecentCycles(limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT cycle_id, activity_id, cycle, mode, created_at, batches, events, readings
		 FROM qc_cycles ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent cycles: %w", err)
	}
	defer rows.Close()
	return scanCycleRecords(rows)
}

// CyclesForActivity returns metadata for every archived cycle of one
// activity, in cycle order.
func (db *DB) CyclesForActivity(activityID string) ([]CycleRecord, error) {
	rows, err := db.Query(
		`SELECT cycle_id, activity_id, cycle, mode, created_at, batches, events, readings
		 FROM qc_cycles WHERE activity_id = ? ORDER BY cycle ASC`, activityID)
	if err != nil {
		return nil, fmt.Errorf("querying cycles for activity %s: %w", activityID, err)
	}
	defer rows.Close()
	return scanCycleRecords(rows)
}

// SnapshotByID loads one archived snapshot in full.
func (db *DB) SnapshotByID(cycleID string) (*calo.Snapshot, error) {
	var payload string
	err := db.QueryRow(
		`SELECT snapshot_json FROM qc_cycles WHERE cycle_id = ?`, cycleID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCycleNotFound, cycleID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", cycleID, err)
	}

	var s calo.Snapshot
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, fmt.Errorf("unmarshalling snapshot %s: %w", cycleID, err)
	}
	return &s, nil
}

// PruneCyclesBefore deletes archived cycles created before the cutoff and
// returns how many rows went away.
func (db *DB) PruneCyclesBefore(cutoff time.Time) (int64, error) {
	var affected int64
	err := retryOnBusy(func() error {
		res, err := db.Exec(
			`DELETE FROM qc_cycles WHERE created_at < ?`,
			cutoff.UTC().Format(storedTimeLayout))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("pruning cycles before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return affected, nil
}

func scanCycleRecords(rows *sql.Rows) ([]CycleRecord, error) {
	var out []CycleRecord
	for rows.Next() {
		var r CycleRecord
		var createdAt string
		if err := rows.Scan(&r.CycleID, &r.ActivityID, &r.Cycle, &r.Mode, &createdAt,
			&r.Batches, &r.Events, &r.Readings); err != nil {
			return nil, fmt.Errorf("scanning cycle record: %w", err)
		}
		t, err := time.Parse(storedTimeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
		}
		r.CreatedAt = t
		out = append(out, r)
	}
	return out, rows.Err()
}
