package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"compliancelab/internal/decision"
	"compliancelab/internal/submission/models"
	"compliancelab/pkg/platform/sentinel"
	"compliancelab/pkg/platform/tx"
	"compliancelab/pkg/requestcontext"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

const submissionColumns = `id, csf_type, tenant, status, priority, created_at, updated_at,
	title, subtitle, summary, trace_id, payload, decision_status, risk_level`

// PostgresStore persists submissions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed submission store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the submissions table and indexes when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure submission schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, sub *models.Submission) error {
	// TIMESTAMPTZ keeps microseconds; truncate so callers see what was stored.
	sub.PrepareForInsert(requestcontext.Now(ctx).Truncate(time.Microsecond))

	query := `INSERT INTO submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, query,
		sub.ID,
		string(sub.CSFType),
		sub.Tenant,
		string(sub.Status),
		string(sub.Priority),
		sub.CreatedAt,
		sub.UpdatedAt,
		sub.Title,
		sub.Subtitle,
		sub.Summary,
		sub.TraceID,
		nullJSON(sub.Payload),
		string(sub.DecisionStatus),
		string(sub.RiskLevel),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("submission %s: %w", sub.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	row := tx.Conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find submission by id: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Submission, int, error) {
	where, args := listWhere(filter)
	conn := tx.Conn(ctx, s.db)

	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions` + where + ` ORDER BY created_at DESC, seq DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	items := make([]*models.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan submission: %w", err)
		}
		items = append(items, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate submissions: %w", err)
	}
	return items, total, nil
}

// UpdateStatus locks the row with SELECT ... FOR UPDATE so the guard and the
// write see the same committed state. A transaction already carried by ctx
// is joined instead of opening a new one.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, next models.Status, guard models.StatusGuard) (*models.Submission, error) {
	now := requestcontext.Now(ctx).Truncate(time.Microsecond)

	var updated *models.Submission
	err := tx.Run(ctx, s.db, func(ctx context.Context, t *sql.Tx) error {
		row := t.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id)
		sub, err := scanSubmission(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock submission: %w", err)
		}
		if guard != nil {
			if err := guard(sub.Clone(), next); err != nil {
				return err
			}
		}
		sub.ApplyStatus(next, now)

		if _, err := t.ExecContext(ctx,
			`UPDATE submissions SET status = $1, updated_at = $2 WHERE id = $3`,
			string(sub.Status), sub.UpdatedAt, sub.ID,
		); err != nil {
			return fmt.Errorf("update submission status: %w", err)
		}
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*models.Statistics, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT status, priority, COUNT(*) FROM submissions GROUP BY status, priority`)
	if err != nil {
		return nil, fmt.Errorf("submission stats: %w", err)
	}
	defer rows.Close()

	st := models.NewStatistics()
	for rows.Next() {
		var (
			status, priority string
			n                int
		)
		if err := rows.Scan(&status, &priority, &n); err != nil {
			return nil, fmt.Errorf("scan submission stats: %w", err)
		}
		st.Total += n
		st.ByStatus[models.Status(status)] += n
		st.ByPriority[models.Priority(priority)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission stats: %w", err)
	}
	return st, nil
}

func listWhere(filter models.ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.Tenant != "" {
		args = append(args, filter.Tenant)
		clauses = append(clauses, fmt.Sprintf("tenant = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var (
		sub                                           models.Submission
		csfType, status, priority, decStatus, riskLvl string
		payload                                       []byte
	)
	err := row.Scan(
		&sub.ID,
		&csfType,
		&sub.Tenant,
		&status,
		&priority,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&sub.Title,
		&sub.Subtitle,
		&sub.Summary,
		&sub.TraceID,
		&payload,
		&decStatus,
		&riskLvl,
	)
	if err != nil {
		return nil, err
	}
	sub.CSFType = models.CSFType(csfType)
	sub.Status = models.Status(status)
	sub.Priority = models.Priority(priority)
	sub.DecisionStatus = decision.DecisionStatus(decStatus)
	sub.RiskLevel = decision.RiskLevel(riskLvl)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	if len(payload) > 0 {
		sub.Payload = payload
	}
	return &sub, nil
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
