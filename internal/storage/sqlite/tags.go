package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

// InternValue inserts value at level if absent and returns its registry id.
func (s *Store) InternValue(ctx context.Context, level types.Level, value string) (int64, error) {
	if !level.IsValid() {
		return 0, fmt.Errorf("%w: unknown tag level %q", storage.ErrInvalidInput, level)
	}
	value = types.NormalizeTagValue(value)
	if value == "" {
		return 0, fmt.Errorf("%w: tag value is empty", storage.ErrInvalidInput)
	}

	var id int64
	err := s.run(ctx, "intern tag", func() error {
		var err error
		id, err = s.intern(ctx, s.db, level, value)
		return err
	})
	return id, err
}

// intern is safe under concurrent writers: the insert is a no-op when the
// key already exists and the id is read back afterwards.
func (s *Store) intern(ctx context.Context, q querier, level types.Level, value string) (int64, error) {
	key := types.TagKey(value)
	_, err := q.ExecContext(ctx, `
		INSERT INTO tag_registry (level, value, value_key, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (level, value_key) DO NOTHING
	`, string(level), value, key, s.now())
	if err != nil {
		return 0, fmt.Errorf("insert registry value: %w", err)
	}

	var id int64
	err = q.QueryRowContext(ctx,
		"SELECT id FROM tag_registry WHERE level = ? AND value_key = ?",
		string(level), key,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("read registry id: %w", err)
	}
	return id, nil
}

// AvailableTags returns the registry contents per level, sorted case-insensitively.
func (s *Store) AvailableTags(ctx context.Context) (*types.AvailableTags, error) {
	var out *types.AvailableTags
	err := s.run(ctx, "available tags", func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT level, value FROM tag_registry ORDER BY level, value COLLATE NOCASE, id")
		if err != nil {
			return err
		}
		defer rows.Close()

		tags := &types.AvailableTags{Groups: []string{}, Subgroups: []string{}, Tags: []string{}}
		for rows.Next() {
			var level, value string
			if err := rows.Scan(&level, &value); err != nil {
				return err
			}
			switch types.Level(level) {
			case types.LevelGroup:
				tags.Groups = append(tags.Groups, value)
			case types.LevelSubgroup:
				tags.Subgroups = append(tags.Subgroups, value)
			case types.LevelTag:
				tags.Tags = append(tags.Tags, value)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}
		out = tags
		return nil
	})
	return out, err
}

// TagsForPost returns a post's assignments grouped by level, in assignment order.
func (s *Store) TagsForPost(ctx context.Context, postID string) (*types.TagSet, error) {
	var out *types.TagSet
	err := s.run(ctx, "tags for post", func() error {
		set, err := tagsForPost(ctx, s.db, postID)
		if err != nil {
			return err
		}
		out = set
		return nil
	})
	return out, err
}

func tagsForPost(ctx context.Context, q querier, postID string) (*types.TagSet, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.level, r.value, a.source
		FROM tag_assignments a
		JOIN tag_registry r ON r.id = a.tag_id
		WHERE a.post_id = ?
		ORDER BY a.id
	`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := types.EmptyTagSet()
	for rows.Next() {
		var level, value, source string
		if err := rows.Scan(&level, &value, &source); err != nil {
			return nil, err
		}
		set.Append(types.Level(level), types.TagValue{Value: value, Source: types.Source(source)})
	}
	return &set, rows.Err()
}

// ReplaceTags replaces, for every non-nil level of set, the post's
// assignments at that level. New values are interned first. The whole save
// is one transaction.
func (s *Store) ReplaceTags(ctx context.Context, postID string, set types.TagSet, source types.Source) error {
	if postID == "" {
		return fmt.Errorf("%w: post id is required", storage.ErrInvalidInput)
	}
	if !source.IsValid() {
		return fmt.Errorf("%w: unknown tag source %q", storage.ErrInvalidInput, source)
	}
	if err := set.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	return s.inTx(ctx, "replace tags", func(tx *sql.Tx) error {
		if err := requirePost(ctx, tx, postID); err != nil {
			return err
		}

		for _, level := range types.Levels {
			values := set.ForLevel(level)
			if values == nil {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM tag_assignments WHERE post_id = ? AND level = ?",
				postID, string(level),
			); err != nil {
				return fmt.Errorf("clear %s: %w", level.Plural(), err)
			}
			for _, v := range values {
				src := v.Source
				if src == "" {
					src = source
				}
				if err := s.assign(ctx, tx, postID, level, v.Value, src); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Store) assign(ctx context.Context, q querier, postID string, level types.Level, value string, source types.Source) error {
	tagID, err := s.intern(ctx, q, level, value)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO tag_assignments (post_id, tag_id, level, source, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (post_id, tag_id) DO NOTHING
	`, postID, tagID, string(level), string(source), s.now())
	if err != nil {
		return fmt.Errorf("assign %s %q: %w", level, value, err)
	}
	return nil
}
