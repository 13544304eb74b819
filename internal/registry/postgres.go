package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/dxfdiff/internal/db"
	"github.com/rpattn/dxfdiff/internal/domain"
)

// PostgresRepository keeps the registry and the comparison history in Postgres.
type PostgresRepository struct {
	conn *db.Connection
}

// NewPostgresRepository wires a repository backed by the connection pool.
func NewPostgresRepository(conn *db.Connection) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

func (r *PostgresRepository) ready() error {
	if r == nil || r.conn == nil || r.conn.Pool == nil {
		return fmt.Errorf("registry repository not initialized")
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]domain.Relationship, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT parent, child, recorded_on, function FROM relationships ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	var out []domain.Relationship
	for rows.Next() {
		var rel domain.Relationship
		if err := rows.Scan(&rel.Parent, &rel.Child, &rel.Date, &rel.Function); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate relationships: %w", err)
	}
	return out, nil
}

// Add inserts the relationships in one transaction, skipping pairs that already exist.
func (r *PostgresRepository) Add(ctx context.Context, rels []domain.Relationship) (int, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	added := 0
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		for _, rel := range rels {
			k := keyOf(rel)
			if !k.valid() {
				continue
			}
			date := rel.Date
			if date.IsZero() {
				date = time.Now()
			}
			tag, err := tx.Exec(ctx,
				`INSERT INTO relationships (parent, child, recorded_on, function)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (parent, child) DO NOTHING`,
				k.parent, k.child, date, rel.Function,
			)
			if err != nil {
				return fmt.Errorf("failed to insert relationship %s -> %s: %w", k.parent, k.child, err)
			}
			added += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// RecordResult stores the counts and outcome of one comparison.
func (r *PostgresRepository) RecordResult(ctx context.Context, result domain.ComparisonResult) error {
	if err := r.ready(); err != nil {
		return err
	}
	_, err := r.conn.Pool.Exec(ctx,
		`INSERT INTO comparison_results (
			id, new_drawing, source_drawing, relation, success, error_message,
			deleted, added, unchanged, total, changed_labels, tolerance, output_location, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`,
		result.ID,
		result.NewID,
		result.SourceID,
		string(result.Relation),
		result.Success,
		result.Error,
		result.Counts.Deleted,
		result.Counts.Added,
		result.Counts.Unchanged,
		result.Counts.Total,
		len(result.ChangedLabels),
		result.Tolerance,
		result.OutputLocation,
		result.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record comparison %s: %w", result.PairName(), err)
	}
	return nil
}
