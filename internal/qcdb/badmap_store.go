package qcdb

import (
	"context"
	"fmt"

	"github.com/helios-array/quality.monitor/internal/calo"
)

// BadChannelStore serves the bad-channel reference list from the local
// database. It satisfies calo.BadChannelSource, so the engine can run
// against a locally curated list when no calibration service is reachable.
type BadChannelStore struct {
	db *DB
}

// NewBadChannelStore wraps the database for bad-channel lookups.
func NewBadChannelStore(db *DB) *BadChannelStore {
	return &BadChannelStore{db: db}
}

// FetchBadChannels loads the current flagged-channel list.
func (s *BadChannelStore) FetchBadChannels(ctx context.Context) (*calo.BadChannelMap, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel FROM bad_channels ORDER BY channel`)
	if err != nil {
		return nil, fmt.Errorf("querying bad channels: %w", err)
	}
	defer rows.Close()

	var channels []uint16
	for rows.Next() {
		var ch int
		if err := rows.Scan(&ch); err != nil {
			return nil, fmt.Errorf("scanning bad channel: %w", err)
		}
		if ch < 0 || ch > calo.MaxChannelID {
			continue
		}
		channels = append(channels, uint16(ch))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return calo.NewBadChannelMap(channels), nil
}

// ReplaceBadChannels swaps the stored list for the given one in a single
// transaction.
func (s *BadChannelStore) ReplaceBadChannels(ctx context.Context, channels []uint16) error {
	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("starting bad-channel replace: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM bad_channels`); err != nil {
			return fmt.Errorf("clearing bad channels: %w", err)
		}
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO bad_channels (channel) VALUES (?)`)
		if err != nil {
			return fmt.Errorf("preparing bad-channel insert: %w", err)
		}
		defer stmt.Close()
		for _, ch := range channels {
			if _, err := stmt.Exec(int(ch)); err != nil {
				return fmt.Errorf("inserting bad channel %d: %w", ch, err)
			}
		}
		return tx.Commit()
	})
}

// CountBadChannels returns the size of the stored list.
func (s *BadChannelStore) CountBadChannels(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bad_channels`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting bad channels: %w", err)
	}
	return n, nil
}
