package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kd17290/workflow-automation/internal/models"
)

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan functions.
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresStorage persists one table per entity type with JSONB columns for
// nested documents. Each operation uses its own short statement; on
// concurrent updates the last writer wins (whole-record replacement).
type PostgresStorage[T Entity] struct {
	db      *sql.DB
	table   string
	columns []string // columns[0] is uuid
	values  func(T) ([]any, error)
	scan    func(rowScanner) (T, error)
}

func (s *PostgresStorage[T]) columnList() string {
	return strings.Join(s.columns, ", ")
}

func (s *PostgresStorage[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE uuid = $1`, s.columnList(), s.table)
	item, err := s.scan(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return zero, nil
		}
		return zero, fmt.Errorf("get %s %s: %w", s.table, id, err)
	}
	return item, nil
}

func (s *PostgresStorage[T]) Create(ctx context.Context, item T) (string, error) {
	item.SetEntityUUID(uuid.NewString())
	args, err := s.values(item)
	if err != nil {
		return "", err
	}
	placeholders := make([]string, len(s.columns))
	for i := range s.columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		s.table, s.columnList(), strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("create %s: %w", s.table, err)
	}
	return item.EntityUUID(), nil
}

func (s *PostgresStorage[T]) Update(ctx context.Context, item T) (bool, error) {
	args, err := s.values(item)
	if err != nil {
		return false, err
	}
	assignments := make([]string, 0, len(s.columns)-1)
	for i, col := range s.columns[1:] {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", col, i+2))
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE uuid = $1`,
		s.table, strings.Join(assignments, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update %s %s: %w", s.table, item.EntityUUID(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s %s: %w", s.table, item.EntityUUID(), err)
	}
	return affected > 0, nil
}

func (s *PostgresStorage[T]) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE uuid = $1`, s.table), id)
	if err != nil {
		return false, fmt.Errorf("delete %s %s: %w", s.table, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s %s: %w", s.table, id, err)
	}
	return affected > 0, nil
}

func (s *PostgresStorage[T]) ListAll(ctx context.Context) ([]T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY uuid ASC`, s.columnList(), s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.table, err)
	}
	defer rows.Close()
	return s.collect(rows)
}

// ListPaginated uses keyset pagination: one extra row is fetched to decide
// whether a next cursor exists; ties cannot occur because uuid is unique.
func (s *PostgresStorage[T]) ListPaginated(ctx context.Context, limit int, cursor string) ([]T, string, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE uuid > $1 ORDER BY uuid ASC LIMIT $2`,
		s.columnList(), s.table)
	rows, err := s.db.QueryContext(ctx, query, cursor, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("list %s page: %w", s.table, err)
	}
	defer rows.Close()

	items, err := s.collect(rows)
	if err != nil {
		return nil, "", err
	}
	if len(items) <= limit {
		return items, "", nil
	}
	items = items[:limit]
	return items, items[len(items)-1].EntityUUID(), nil
}

func (s *PostgresStorage[T]) collect(rows *sql.Rows) ([]T, error) {
	items := make([]T, 0)
	for rows.Next() {
		item, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", s.table, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", s.table, err)
	}
	return items, nil
}

// nullable converts empty strings to NULL so partially-filled optional
// columns stay queryable with IS NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// NewPostgresWorkflowStorage returns workflow-definition storage backed by
// the workflow_definitions table.
func NewPostgresWorkflowStorage(db *sql.DB) *PostgresStorage[*models.WorkflowDefinition] {
	return &PostgresStorage[*models.WorkflowDefinition]{
		db:      db,
		table:   "workflow_definitions",
		columns: []string{"uuid", "id", "name", "description", "steps"},
		values: func(w *models.WorkflowDefinition) ([]any, error) {
			steps, err := json.Marshal(w.Steps)
			if err != nil {
				return nil, fmt.Errorf("marshal steps: %w", err)
			}
			return []any{w.UUID, nullable(w.ID), w.Name, nullable(w.Description), steps}, nil
		},
		scan: func(row rowScanner) (*models.WorkflowDefinition, error) {
			var w models.WorkflowDefinition
			var id, description sql.NullString
			var steps []byte
			if err := row.Scan(&w.UUID, &id, &w.Name, &description, &steps); err != nil {
				return nil, err
			}
			w.ID = id.String
			w.Description = description.String
			if err := json.Unmarshal(steps, &w.Steps); err != nil {
				return nil, fmt.Errorf("decode steps: %w", err)
			}
			return &w, nil
		},
	}
}

// NewPostgresRunStorage returns workflow-run storage backed by the
// workflow_runs table.
func NewPostgresRunStorage(db *sql.DB) *PostgresStorage[*models.WorkflowRun] {
	return &PostgresStorage[*models.WorkflowRun]{
		db:    db,
		table: "workflow_runs",
		columns: []string{
			"uuid", "workflow_id", "status", "payload",
			"started_at", "completed_at", "error", "step_results",
		},
		values: func(r *models.WorkflowRun) ([]any, error) {
			payload, err := json.Marshal(r.Payload)
			if err != nil {
				return nil, fmt.Errorf("marshal payload: %w", err)
			}
			results, err := json.Marshal(r.StepResults)
			if err != nil {
				return nil, fmt.Errorf("marshal step_results: %w", err)
			}
			return []any{
				r.UUID, r.WorkflowID, string(r.Status), payload,
				r.StartedAt, nullable(r.CompletedAt), nullable(r.Error), results,
			}, nil
		},
		scan: func(row rowScanner) (*models.WorkflowRun, error) {
			var r models.WorkflowRun
			var status string
			var completedAt, errMsg sql.NullString
			var payload, results []byte
			if err := row.Scan(&r.UUID, &r.WorkflowID, &status, &payload,
				&r.StartedAt, &completedAt, &errMsg, &results); err != nil {
				return nil, err
			}
			r.Status = models.WorkflowStatus(status)
			r.CompletedAt = completedAt.String
			r.Error = errMsg.String
			if err := json.Unmarshal(payload, &r.Payload); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
			if err := json.Unmarshal(results, &r.StepResults); err != nil {
				return nil, fmt.Errorf("decode step_results: %w", err)
			}
			return &r, nil
		},
	}
}

var _ Storage[*models.WorkflowRun] = (*PostgresStorage[*models.WorkflowRun])(nil)
