package hub

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"boorubot/internal/schema"
	"boorubot/internal/services"
)

// GetTag loads one tag by name.
func (s *Store) GetTag(ctx context.Context, name string) (*Tag, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT name, type, override_name, deletion_flag, is_editable, detail, order_of_keys
		 FROM tags WHERE name = ?`, name)
	tag, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "hub", "get tag", name, nil)
	}
	return tag, err
}

// EnsureTag returns the stored tag, creating an empty one when the name
// is new. A freshly created tag gets its initial snapshot.
func (s *Store) EnsureTag(ctx context.Context, name string, typ schema.TagType) (*Tag, error) {
	tag, err := s.GetTag(ctx, name)
	if err == nil {
		if tag.Type != typ && typ != schema.TagGeneral {
			tag.Type = typ
			if err := s.SaveTag(ctx, tag, ""); err != nil {
				return nil, err
			}
		}
		return tag, nil
	}
	if !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}
	tag = NewTag(name, typ)
	if err := s.SaveTag(ctx, tag, ""); err != nil {
		return nil, err
	}
	return tag, nil
}

// ListTags returns tags of one category ordered by name. A negative
// type lists everything.
func (s *Store) ListTags(ctx context.Context, typ schema.TagType) ([]*Tag, error) {
	ctx = ensureContext(ctx)
	query := `SELECT name, type, override_name, deletion_flag, is_editable, detail, order_of_keys FROM tags`
	args := []any{}
	if typ >= 0 {
		query += ` WHERE type = ?`
		args = append(args, int(typ))
	}
	query += ` ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []*Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// SaveTag persists the tag row and records a snapshot when the ordered
// detail changed. Consecutive edits by the same editor inside the
// debounce window amend the newest snapshot instead of creating a new
// one; background edits (empty editor) always amend. An amend that
// restores the previous revision's content deletes the newest snapshot
// entirely, so an immediate undo leaves no trace in the history.
func (s *Store) SaveTag(ctx context.Context, tag *Tag, editor string) error {
	if tag == nil || tag.Name == "" {
		return services.Wrap(services.ErrValidation, "hub", "save tag", "tag name required", nil)
	}
	tag.RefreshOrder()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		detailJSON, err := json.Marshal(tag.Detail)
		if err != nil {
			return fmt.Errorf("encode detail: %w", err)
		}
		orderJSON, err := json.Marshal(tag.OrderOfKeys)
		if err != nil {
			return fmt.Errorf("encode key order: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO tags (name, type, override_name, deletion_flag, is_editable, detail, order_of_keys, update_time)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET
				type = excluded.type,
				override_name = excluded.override_name,
				deletion_flag = excluded.deletion_flag,
				is_editable = excluded.is_editable,
				detail = excluded.detail,
				order_of_keys = excluded.order_of_keys,
				update_time = excluded.update_time`,
			tag.Name, int(tag.Type), tag.OverrideName, tag.DeletionFlag, tag.IsEditable,
			string(detailJSON), string(orderJSON), formatTime(now),
		); err != nil {
			return fmt.Errorf("upsert tag %s: %w", tag.Name, err)
		}

		hash := tag.ContentHash()
		latest, err := latestSnapshotTx(tx, tag.Name, 0)
		if err != nil {
			return err
		}
		if latest != nil && latest.Hash == hash {
			return nil
		}
		return s.writeSnapshot(tx, tag, editor, hash, latest)
	})
}

func (s *Store) writeSnapshot(tx *sql.Tx, tag *Tag, editor, hash string, latest *Snapshot) error {
	now := s.now()
	if latest == nil {
		id, err := insertSnapshot(tx, tag.Name, hash, "Init", editor, now)
		if err != nil {
			return err
		}
		return s.saveSnapshotContent(tx, id, tag)
	}

	amend := (latest.Editor == editor && now.Sub(latest.CreateTime) <= s.debounce) ||
		(latest.Editor == "" && editor == "")
	if !amend {
		revertID, err := snapshotIDByHash(tx, tag.Name, hash)
		if err != nil {
			return err
		}
		oldContent, oldOrder, err := snapshotContentTx(tx, latest.ID)
		if err != nil {
			return err
		}
		note := ChangeNote(oldOrder, oldContent, tag.OrderedKeys(), tag.Detail, revertID)
		id, err := insertSnapshot(tx, tag.Name, hash, note, editor, now)
		if err != nil {
			return err
		}
		return s.saveSnapshotContent(tx, id, tag)
	}

	prev, err := latestSnapshotTx(tx, tag.Name, 1)
	if err != nil {
		return err
	}
	if prev != nil {
		if prev.Hash == hash {
			if _, err := tx.Exec(`DELETE FROM snapshots WHERE id = ?`, latest.ID); err != nil {
				return fmt.Errorf("drop undone snapshot: %w", err)
			}
			return collectOrphanNodes(tx)
		}
		revertID, err := snapshotIDByHash(tx, tag.Name, hash)
		if err != nil {
			return err
		}
		prevContent, prevOrder, err := snapshotContentTx(tx, prev.ID)
		if err != nil {
			return err
		}
		note := ChangeNote(prevOrder, prevContent, tag.OrderedKeys(), tag.Detail, revertID)
		if _, err := tx.Exec(
			`UPDATE snapshots SET hash = ?, note = ?, update_time = ? WHERE id = ?`,
			hash, note, formatTime(now), latest.ID,
		); err != nil {
			return fmt.Errorf("amend snapshot: %w", err)
		}
		return s.saveSnapshotContent(tx, latest.ID, tag)
	}

	if _, err := tx.Exec(
		`UPDATE snapshots SET hash = ?, update_time = ? WHERE id = ?`,
		hash, formatTime(now), latest.ID,
	); err != nil {
		return fmt.Errorf("amend snapshot: %w", err)
	}
	return s.saveSnapshotContent(tx, latest.ID, tag)
}

// saveSnapshotContent attaches the tag's ordered detail to a snapshot.
// Values deduplicate into nodes keyed by attribute, hash, and length;
// joins no longer present are removed and nodes referenced by no
// snapshot are collected.
func (s *Store) saveSnapshotContent(tx *sql.Tx, snapshotID int64, tag *Tag) error {
	keys := tag.OrderedKeys()
	nodeIDs := make([]int64, 0, len(keys))
	for i, key := range keys {
		if _, ok := s.registry.Get(key); !ok {
			return services.Wrap(services.ErrValidation, "hub", "snapshot",
				fmt.Sprintf("attribute %q does not exist", key), nil)
		}
		value := tag.Detail[key]
		sum := md5.Sum([]byte(value))
		valueHash := hex.EncodeToString(sum[:])

		if _, err := tx.Exec(
			`INSERT INTO nodes (attribute, value, hash, length) VALUES (?, ?, ?, ?)
			 ON CONFLICT(attribute, hash, length) DO NOTHING`,
			key, value, valueHash, len(value),
		); err != nil {
			return fmt.Errorf("store node %s: %w", key, err)
		}
		var nodeID int64
		if err := tx.QueryRow(
			`SELECT id FROM nodes WHERE attribute = ? AND hash = ? AND length = ?`,
			key, valueHash, len(value),
		).Scan(&nodeID); err != nil {
			return fmt.Errorf("resolve node %s: %w", key, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO snapshot_nodes (snapshot_id, node_id, position) VALUES (?, ?, ?)
			 ON CONFLICT(snapshot_id, node_id) DO UPDATE SET position = excluded.position`,
			snapshotID, nodeID, i,
		); err != nil {
			return fmt.Errorf("link node %s: %w", key, err)
		}
		nodeIDs = append(nodeIDs, nodeID)
	}

	query := `DELETE FROM snapshot_nodes WHERE snapshot_id = ?`
	args := []any{snapshotID}
	if len(nodeIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(nodeIDs)), ",")
		query += ` AND node_id NOT IN (` + placeholders + `)`
		for _, id := range nodeIDs {
			args = append(args, id)
		}
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("prune snapshot links: %w", err)
	}
	return collectOrphanNodes(tx)
}

func collectOrphanNodes(tx *sql.Tx) error {
	if _, err := tx.Exec(
		`DELETE FROM nodes WHERE id NOT IN (SELECT node_id FROM snapshot_nodes)`,
	); err != nil {
		return fmt.Errorf("collect orphan nodes: %w", err)
	}
	return nil
}

func insertSnapshot(tx *sql.Tx, tagName, hash, note, editor string, now time.Time) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO snapshots (tag_name, hash, note, editor, create_time, update_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tagName, hash, note, editor, formatTime(now), formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("snapshot id: %w", err)
	}
	return id, nil
}

// latestSnapshotTx returns the newest snapshot for a tag, skipping the
// given number of newer entries.
func latestSnapshotTx(tx *sql.Tx, tagName string, skip int) (*Snapshot, error) {
	row := tx.QueryRow(
		`SELECT id, tag_name, hash, note, editor, create_time, update_time
		 FROM snapshots WHERE tag_name = ? ORDER BY id DESC LIMIT 1 OFFSET ?`,
		tagName, skip)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return snap, err
}

func snapshotIDByHash(tx *sql.Tx, tagName, hash string) (int64, error) {
	var id int64
	err := tx.QueryRow(
		`SELECT id FROM snapshots WHERE tag_name = ? AND hash = ? ORDER BY id DESC LIMIT 1`,
		tagName, hash,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find snapshot by hash: %w", err)
	}
	return id, nil
}

func snapshotContentTx(tx *sql.Tx, snapshotID int64) (map[string]string, []string, error) {
	rows, err := tx.Query(
		`SELECT n.attribute, n.value
		 FROM snapshot_nodes sn JOIN nodes n ON n.id = sn.node_id
		 WHERE sn.snapshot_id = ? ORDER BY sn.position`,
		snapshotID)
	if err != nil {
		return nil, nil, fmt.Errorf("load snapshot content: %w", err)
	}
	defer rows.Close()

	content := make(map[string]string)
	order := make([]string, 0, 8)
	for rows.Next() {
		var attribute, value string
		if err := rows.Scan(&attribute, &value); err != nil {
			return nil, nil, err
		}
		content[attribute] = value
		order = append(order, attribute)
	}
	return content, order, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTag(row rowScanner) (*Tag, error) {
	var (
		tag        Tag
		typ        int
		detailJSON string
		orderJSON  string
	)
	if err := row.Scan(&tag.Name, &typ, &tag.OverrideName, &tag.DeletionFlag,
		&tag.IsEditable, &detailJSON, &orderJSON); err != nil {
		return nil, err
	}
	tag.Type = schema.TagType(typ)
	if err := json.Unmarshal([]byte(detailJSON), &tag.Detail); err != nil {
		return nil, fmt.Errorf("decode detail for %s: %w", tag.Name, err)
	}
	if err := json.Unmarshal([]byte(orderJSON), &tag.OrderOfKeys); err != nil {
		return nil, fmt.Errorf("decode key order for %s: %w", tag.Name, err)
	}
	if tag.Detail == nil {
		tag.Detail = make(map[string]string)
	}
	return &tag, nil
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var (
		snap       Snapshot
		createTime string
		updateTime string
	)
	if err := row.Scan(&snap.ID, &snap.TagName, &snap.Hash, &snap.Note,
		&snap.Editor, &createTime, &updateTime); err != nil {
		return nil, err
	}
	snap.CreateTime = parseTime(createTime)
	snap.UpdateTime = parseTime(updateTime)
	return &snap, nil
}
