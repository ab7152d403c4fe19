package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads the audit_logs table written by shared.AuditLogger.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL audit repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window returns entries matching filters, newest first.
func (r *PGRepository) Window(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filters.Actor > 0 {
		add(`actor_id = ?`, filters.Actor)
	}
	if filters.Entity != "" {
		add(`entity = ?`, filters.Entity)
	}
	if filters.Action != "" {
		add(`action = ?`, filters.Action)
	}
	if !filters.From.IsZero() {
		add(`occurred_at >= ?`, filters.From)
	}
	if !filters.To.IsZero() {
		add(`occurred_at <= ?`, filters.To)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id, actor_id, actor_email, actor_name, action, entity, entity_id, meta, occurred_at
		 FROM audit_logs` + where +
		` ORDER BY occurred_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1) +
		` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: window: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var meta []byte
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.ActorEmail, &entry.ActorName,
			&entry.Action, &entry.Entity, &entry.EntityID, &meta, &entry.At); err != nil {
			return nil, fmt.Errorf("audit: window scan: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Meta); err != nil {
				return nil, fmt.Errorf("audit: window meta: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: window rows: %w", err)
	}
	return entries, nil
}

// DeleteBefore removes entries older than cutoff.
func (r *PGRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: delete before: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
