// Package attribution provides the SQL-backed implementation of the
// attribution store, usable with both local SQLite files and Turso.
//
// Tables:
// - touchpoints      → append-only touchpoint log
// - conversions      → append-only conversion log with frozen attribution
// - content_revenue  → linear-credit aggregates, updated in the same
//   transaction that appends the conversion
package attribution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/domain/attribution"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/persistence/database"
)

// SQLStore persists touchpoints, conversions and revenue aggregates.
type SQLStore struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLStore creates a new instance of the store.
func NewSQLStore(db *database.DB, logger *logging.ChanneledLogger) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: logger,
	}
}

// AppendTouchpoint inserts tp and returns a copy carrying its sequence id.
func (s *SQLStore) AppendTouchpoint(ctx context.Context, tp *attribution.Touchpoint) (*attribution.Touchpoint, error) {
	const query = `
		INSERT INTO touchpoints (user_id, content_id, session_id, occurred_at, metadata)
		VALUES (?, ?, ?, ?, ?)`

	metadata, err := database.EncodeJSON(tp.Metadata)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		tp.UserID,
		tp.ContentID,
		tp.SessionID,
		database.FormatTimestamp(tp.Timestamp),
		metadata,
	)
	if err != nil {
		s.logger.Database().Error("Touchpoint insert failed",
			"error", err.Error(),
			"userId", tp.UserID,
			"contentId", tp.ContentID)
		return nil, fmt.Errorf("failed to store touchpoint: %w", err)
	}

	sequenceID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read touchpoint sequence id: %w", err)
	}

	s.logger.Database().Debug("Touchpoint insert completed",
		"sequenceId", sequenceID,
		"userId", tp.UserID,
		"contentId", tp.ContentID,
		"duration", time.Since(start))
	s.db.ObserveQuery(query, start)

	stored := *tp
	stored.SequenceID = sequenceID
	return &stored, nil
}

// FindUserTouchpoints loads a user's touchpoints within [from, to].
func (s *SQLStore) FindUserTouchpoints(ctx context.Context, userID string, from, to time.Time) ([]*attribution.Touchpoint, error) {
	const query = `
		SELECT sequence_id, user_id, content_id, session_id, occurred_at, metadata
		FROM touchpoints
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at, sequence_id`

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, userID, database.FormatTimestamp(from), database.FormatTimestamp(to))
	if err != nil {
		s.logger.Database().Error("Failed to query user touchpoints", "error", err.Error(), "userId", userID)
		return nil, fmt.Errorf("failed to query touchpoints: %w", err)
	}
	defer rows.Close()

	touchpoints := []*attribution.Touchpoint{}
	for rows.Next() {
		var (
			tp          attribution.Touchpoint
			occurredAt  string
			rawMetadata string
		)
		if err := rows.Scan(&tp.SequenceID, &tp.UserID, &tp.ContentID, &tp.SessionID, &occurredAt, &rawMetadata); err != nil {
			return nil, fmt.Errorf("failed to scan touchpoint: %w", err)
		}
		if tp.Timestamp, err = database.ParseTimestamp(occurredAt); err != nil {
			return nil, err
		}
		if err := database.DecodeJSON(rawMetadata, &tp.Metadata); err != nil {
			return nil, err
		}
		touchpoints = append(touchpoints, &tp)
	}
	if err := rows.Err(); err != nil {
		s.logger.Database().Error("Row iteration error for touchpoints", "error", err.Error())
		return nil, err
	}

	s.logger.Database().Debug("User touchpoints loaded",
		"userId", userID,
		"count", len(touchpoints),
		"duration", time.Since(start))
	s.db.ObserveQuery(query, start)
	return touchpoints, nil
}

// CountTouchpoints returns the size of the touchpoint log.
func (s *SQLStore) CountTouchpoints(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM touchpoints`

	start := time.Now()
	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count touchpoints: %w", err)
	}
	s.db.ObserveQuery(query, start)
	return count, nil
}

// ListTouchpointUsers returns the distinct user ids in the touchpoint log.
func (s *SQLStore) ListTouchpointUsers(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT user_id FROM touchpoints ORDER BY user_id`

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query touchpoint users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan touchpoint user: %w", err)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.db.ObserveQuery(query, start)
	return users, nil
}

// AppendConversion inserts c and applies deltas in one transaction.
func (s *SQLStore) AppendConversion(ctx context.Context, c *attribution.Conversion, deltas []attribution.RevenueDelta) error {
	const insertConversion = `
		INSERT INTO conversions (conversion_id, user_id, conversion_type, revenue, occurred_at, touchpoint_count, attribution, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	const upsertRevenue = `
		INSERT INTO content_revenue (content_id, total_revenue, conversions, first_touch_conversions, last_touch_conversions, assisted_conversions)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_id) DO UPDATE SET
			total_revenue = total_revenue + excluded.total_revenue,
			conversions = conversions + excluded.conversions,
			first_touch_conversions = first_touch_conversions + excluded.first_touch_conversions,
			last_touch_conversions = last_touch_conversions + excluded.last_touch_conversions,
			assisted_conversions = assisted_conversions + excluded.assisted_conversions`

	snapshot, err := database.EncodeJSON(c.Attribution)
	if err != nil {
		return err
	}
	metadata, err := database.EncodeJSON(c.Metadata)
	if err != nil {
		return err
	}

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin conversion transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertConversion,
		c.ConversionID,
		c.UserID,
		c.ConversionType,
		c.Revenue,
		database.FormatTimestamp(c.Timestamp),
		c.TouchpointCount,
		snapshot,
		metadata,
	); err != nil {
		s.logger.Database().Error("Conversion insert failed",
			"error", err.Error(),
			"conversionId", c.ConversionID,
			"userId", c.UserID)
		return fmt.Errorf("failed to store conversion: %w", err)
	}

	for _, d := range deltas {
		if _, err := tx.ExecContext(ctx, upsertRevenue,
			d.ContentID, d.Revenue, d.Conversions, d.FirstTouch, d.LastTouch, d.Assisted,
		); err != nil {
			s.logger.Database().Error("Content revenue upsert failed",
				"error", err.Error(),
				"conversionId", c.ConversionID,
				"contentId", d.ContentID)
			return fmt.Errorf("failed to update content revenue for %s: %w", d.ContentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conversion: %w", err)
	}

	s.logger.Database().Info("Conversion insert completed",
		"conversionId", c.ConversionID,
		"userId", c.UserID,
		"revenue", c.Revenue,
		"contentUpdates", len(deltas),
		"duration", time.Since(start))
	s.db.ObserveQuery(insertConversion, start)
	return nil
}

// FindConversions loads conversions matching filter in timestamp order.
func (s *SQLStore) FindConversions(ctx context.Context, filter attribution.ConversionFilter) ([]*attribution.Conversion, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Start != nil {
		clauses = append(clauses, "occurred_at >= ?")
		args = append(args, database.FormatTimestamp(*filter.Start))
	}
	if filter.End != nil {
		clauses = append(clauses, "occurred_at <= ?")
		args = append(args, database.FormatTimestamp(*filter.End))
	}

	query := `
		SELECT conversion_id, user_id, conversion_type, revenue, occurred_at, touchpoint_count, attribution, metadata
		FROM conversions`
	if len(clauses) > 0 {
		query += "\n\t\tWHERE " + strings.Join(clauses, " AND ")
	}
	query += "\n\t\tORDER BY occurred_at, conversion_id"

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Database().Error("Failed to query conversions", "error", err.Error(), "userId", filter.UserID)
		return nil, fmt.Errorf("failed to query conversions: %w", err)
	}
	defer rows.Close()

	conversions := []*attribution.Conversion{}
	for rows.Next() {
		var (
			c           attribution.Conversion
			occurredAt  string
			rawSnapshot string
			rawMetadata string
		)
		if err := rows.Scan(&c.ConversionID, &c.UserID, &c.ConversionType, &c.Revenue,
			&occurredAt, &c.TouchpointCount, &rawSnapshot, &rawMetadata); err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		if c.Timestamp, err = database.ParseTimestamp(occurredAt); err != nil {
			return nil, err
		}
		c.Attribution = attribution.Snapshot{}
		if err := database.DecodeJSON(rawSnapshot, &c.Attribution); err != nil {
			return nil, err
		}
		if err := database.DecodeJSON(rawMetadata, &c.Metadata); err != nil {
			return nil, err
		}
		conversions = append(conversions, &c)
	}
	if err := rows.Err(); err != nil {
		s.logger.Database().Error("Row iteration error for conversions", "error", err.Error())
		return nil, err
	}

	s.logger.Database().Debug("Conversions loaded",
		"userId", filter.UserID,
		"count", len(conversions),
		"duration", time.Since(start))
	s.db.ObserveQuery(query, start)
	return conversions, nil
}

// GetContentRevenue returns the aggregate for contentID, zero if absent.
func (s *SQLStore) GetContentRevenue(ctx context.Context, contentID string) (attribution.ContentRevenue, error) {
	const query = `
		SELECT content_id, total_revenue, conversions, first_touch_conversions, last_touch_conversions, assisted_conversions
		FROM content_revenue
		WHERE content_id = ?`

	start := time.Now()
	agg, err := scanContentRevenue(s.db.QueryRowContext(ctx, query, contentID))
	if errors.Is(err, sql.ErrNoRows) {
		return attribution.ContentRevenue{ContentID: contentID}, nil
	}
	if err != nil {
		return attribution.ContentRevenue{}, fmt.Errorf("failed to load content revenue for %s: %w", contentID, err)
	}
	s.db.ObserveQuery(query, start)
	return agg, nil
}

// ListContentRevenue returns every aggregate ordered by content id.
func (s *SQLStore) ListContentRevenue(ctx context.Context) ([]attribution.ContentRevenue, error) {
	const query = `
		SELECT content_id, total_revenue, conversions, first_touch_conversions, last_touch_conversions, assisted_conversions
		FROM content_revenue
		ORDER BY content_id`

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query content revenue: %w", err)
	}
	defer rows.Close()

	aggregates := []attribution.ContentRevenue{}
	for rows.Next() {
		agg, err := scanContentRevenue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content revenue: %w", err)
		}
		aggregates = append(aggregates, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.db.ObserveQuery(query, start)
	return aggregates, nil
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContentRevenue(row rowScanner) (attribution.ContentRevenue, error) {
	var agg attribution.ContentRevenue
	err := row.Scan(
		&agg.ContentID,
		&agg.TotalRevenue,
		&agg.Conversions,
		&agg.FirstTouchConversions,
		&agg.LastTouchConversions,
		&agg.AssistedConversions,
	)
	return agg, err
}

var _ attribution.Store = (*SQLStore)(nil)
