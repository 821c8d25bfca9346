package hub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"boorubot/internal/services"
)

// ListSnapshots returns a tag's revision history, newest first.
func (s *Store) ListSnapshots(ctx context.Context, tagName string) ([]*Snapshot, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tag_name, hash, note, editor, create_time, update_time
		 FROM snapshots WHERE tag_name = ? ORDER BY id DESC`, tagName)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// GetSnapshot loads one snapshot by id.
func (s *Store) GetSnapshot(ctx context.Context, id int64) (*Snapshot, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tag_name, hash, note, editor, create_time, update_time
		 FROM snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "hub", "get snapshot", fmt.Sprintf("id %d", id), nil)
	}
	return snap, err
}

// SnapshotContent reconstructs a snapshot's detail and key order from
// its nodes.
func (s *Store) SnapshotContent(ctx context.Context, id int64) (map[string]string, []string, error) {
	var (
		content map[string]string
		order   []string
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		content, order, err = snapshotContentTx(tx, id)
		return err
	})
	return content, order, err
}

// RevertToSnapshot restores a tag's detail to an earlier revision. The
// restore is a normal save, so the history records it with a revert
// note rather than rewriting itself.
func (s *Store) RevertToSnapshot(ctx context.Context, tagName string, snapshotID int64, editor string) error {
	snap, err := s.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}
	if snap.TagName != tagName {
		return services.Wrap(services.ErrValidation, "hub", "revert",
			fmt.Sprintf("snapshot %d belongs to %s", snapshotID, snap.TagName), nil)
	}
	tag, err := s.GetTag(ctx, tagName)
	if err != nil {
		return err
	}
	content, order, err := s.SnapshotContent(ctx, snapshotID)
	if err != nil {
		return err
	}
	tag.Detail = content
	tag.OrderOfKeys = order
	return s.SaveTag(ctx, tag, editor)
}
