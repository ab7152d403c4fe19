package bugs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bugtrail/bugtrail/internal/shared"
)

// Repository defines persistence operations for bugs and their sub-resources.
type Repository interface {
	Create(ctx context.Context, bug Bug) (Bug, error)
	FindByID(ctx context.Context, id int64) (Bug, error)
	List(ctx context.Context, filters ListFilters, page shared.Pagination) ([]Bug, int, error)
	Update(ctx context.Context, bug Bug) (Bug, error)
	Delete(ctx context.Context, id int64) error

	CreateComment(ctx context.Context, comment Comment) (Comment, error)
	FindComment(ctx context.Context, bugID, commentID int64) (Comment, error)
	ListComments(ctx context.Context, bugID int64) ([]Comment, error)

	CreateTestCase(ctx context.Context, tc TestCase) (TestCase, error)
	FindTestCase(ctx context.Context, bugID, testID int64) (TestCase, error)
	ListTestCases(ctx context.Context, bugID int64) ([]TestCase, error)
	UpdateTestCase(ctx context.Context, tc TestCase) (TestCase, error)
	DeleteTestCase(ctx context.Context, bugID, testID int64) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const bugColumns = `id, title, description, steps_to_reproduce, severity, classification, status, author_id, assignee_id, created_at, updated_at, closed_at`

// Create inserts a new bug.
func (r *PGRepository) Create(ctx context.Context, bug Bug) (Bug, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO bugs (title, description, steps_to_reproduce, severity, classification, status, author_id, assignee_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		 RETURNING `+bugColumns,
		bug.Title, bug.Description, bug.StepsToRepro, bug.Severity,
		bug.Classification, bug.Status, bug.AuthorID, bug.AssigneeID)
	created, err := scanBug(row)
	if err != nil {
		return Bug{}, fmt.Errorf("bugs: create: %w", err)
	}
	return created, nil
}

// FindByID fetches a bug by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (Bug, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bugColumns+` FROM bugs WHERE id = $1`, id)
	bug, err := scanBug(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bug{}, shared.ErrNotFound
		}
		return Bug{}, fmt.Errorf("bugs: find by id: %w", err)
	}
	return bug, nil
}

// List returns one page of bugs matching filters plus the total match count.
func (r *PGRepository) List(ctx context.Context, filters ListFilters, page shared.Pagination) ([]Bug, int, error) {
	where, args := buildFilters(filters)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bugs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("bugs: count: %w", err)
	}

	query := `SELECT ` + bugColumns + ` FROM bugs` + where + orderClause(filters.SortBy) +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, page.Limit, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("bugs: list: %w", err)
	}
	defer rows.Close()

	var list []Bug
	for rows.Next() {
		bug, err := scanBug(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("bugs: list scan: %w", err)
		}
		list = append(list, bug)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("bugs: list rows: %w", err)
	}
	return list, total, nil
}

// Update overwrites the mutable bug columns. Concurrent writers race; the
// last committed write wins.
func (r *PGRepository) Update(ctx context.Context, bug Bug) (Bug, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE bugs SET
		   title = $2, description = $3, steps_to_reproduce = $4, severity = $5,
		   classification = $6, status = $7, assignee_id = $8, closed_at = $9,
		   updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+bugColumns,
		bug.ID, bug.Title, bug.Description, bug.StepsToRepro, bug.Severity,
		bug.Classification, bug.Status, bug.AssigneeID, bug.ClosedAt)
	updated, err := scanBug(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bug{}, shared.ErrNotFound
		}
		return Bug{}, fmt.Errorf("bugs: update: %w", err)
	}
	return updated, nil
}

// Delete removes a bug and, via FK cascade, its comments and test cases.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM bugs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("bugs: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateComment appends a comment to a bug.
func (r *PGRepository) CreateComment(ctx context.Context, comment Comment) (Comment, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO bug_comments (bug_id, author_id, body, created_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING id, bug_id, author_id, body, created_at`,
		comment.BugID, comment.AuthorID, comment.Body)
	var created Comment
	if err := row.Scan(&created.ID, &created.BugID, &created.AuthorID, &created.Body, &created.CreatedAt); err != nil {
		return Comment{}, fmt.Errorf("bugs: create comment: %w", err)
	}
	return created, nil
}

// FindComment fetches one comment scoped to its bug.
func (r *PGRepository) FindComment(ctx context.Context, bugID, commentID int64) (Comment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, bug_id, author_id, body, created_at FROM bug_comments WHERE id = $1 AND bug_id = $2`,
		commentID, bugID)
	var comment Comment
	if err := row.Scan(&comment.ID, &comment.BugID, &comment.AuthorID, &comment.Body, &comment.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Comment{}, shared.ErrNotFound
		}
		return Comment{}, fmt.Errorf("bugs: find comment: %w", err)
	}
	return comment, nil
}

// ListComments returns a bug's comments oldest first.
func (r *PGRepository) ListComments(ctx context.Context, bugID int64) ([]Comment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, bug_id, author_id, body, created_at FROM bug_comments WHERE bug_id = $1 ORDER BY id`,
		bugID)
	if err != nil {
		return nil, fmt.Errorf("bugs: list comments: %w", err)
	}
	defer rows.Close()
	var list []Comment
	for rows.Next() {
		var comment Comment
		if err := rows.Scan(&comment.ID, &comment.BugID, &comment.AuthorID, &comment.Body, &comment.CreatedAt); err != nil {
			return nil, fmt.Errorf("bugs: list comments scan: %w", err)
		}
		list = append(list, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bugs: list comments rows: %w", err)
	}
	return list, nil
}

const testCaseColumns = `id, bug_id, author_id, title, steps, expected, created_at, updated_at`

// CreateTestCase attaches a test case to a bug.
func (r *PGRepository) CreateTestCase(ctx context.Context, tc TestCase) (TestCase, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO bug_test_cases (bug_id, author_id, title, steps, expected, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 RETURNING `+testCaseColumns,
		tc.BugID, tc.AuthorID, tc.Title, tc.Steps, tc.Expected)
	created, err := scanTestCase(row)
	if err != nil {
		return TestCase{}, fmt.Errorf("bugs: create test case: %w", err)
	}
	return created, nil
}

// FindTestCase fetches one test case scoped to its bug.
func (r *PGRepository) FindTestCase(ctx context.Context, bugID, testID int64) (TestCase, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+testCaseColumns+` FROM bug_test_cases WHERE id = $1 AND bug_id = $2`,
		testID, bugID)
	tc, err := scanTestCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TestCase{}, shared.ErrNotFound
		}
		return TestCase{}, fmt.Errorf("bugs: find test case: %w", err)
	}
	return tc, nil
}

// ListTestCases returns a bug's test cases oldest first.
func (r *PGRepository) ListTestCases(ctx context.Context, bugID int64) ([]TestCase, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+testCaseColumns+` FROM bug_test_cases WHERE bug_id = $1 ORDER BY id`, bugID)
	if err != nil {
		return nil, fmt.Errorf("bugs: list test cases: %w", err)
	}
	defer rows.Close()
	var list []TestCase
	for rows.Next() {
		tc, err := scanTestCase(rows)
		if err != nil {
			return nil, fmt.Errorf("bugs: list test cases scan: %w", err)
		}
		list = append(list, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bugs: list test cases rows: %w", err)
	}
	return list, nil
}

// UpdateTestCase overwrites the mutable test-case columns.
func (r *PGRepository) UpdateTestCase(ctx context.Context, tc TestCase) (TestCase, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE bug_test_cases SET title = $3, steps = $4, expected = $5, updated_at = NOW()
		 WHERE id = $1 AND bug_id = $2
		 RETURNING `+testCaseColumns,
		tc.ID, tc.BugID, tc.Title, tc.Steps, tc.Expected)
	updated, err := scanTestCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TestCase{}, shared.ErrNotFound
		}
		return TestCase{}, fmt.Errorf("bugs: update test case: %w", err)
	}
	return updated, nil
}

// DeleteTestCase removes one test case scoped to its bug.
func (r *PGRepository) DeleteTestCase(ctx context.Context, bugID, testID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM bug_test_cases WHERE id = $1 AND bug_id = $2`, testID, bugID)
	if err != nil {
		return fmt.Errorf("bugs: delete test case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// buildFilters assembles the WHERE clause with positional args.
func buildFilters(f ListFilters) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.Keyword != "" {
		// One argument serves both columns.
		add(`(title ILIKE ? OR description ILIKE ?)`, "%"+f.Keyword+"%")
	}
	if f.Classification != "" {
		add(`classification = ?`, f.Classification)
	}
	if f.Status != "" {
		add(`status = ?`, f.Status)
	}
	if f.MinSeverity > 0 {
		add(`severity >= ?`, f.MinSeverity)
	}
	if f.MaxSeverity > 0 {
		add(`severity <= ?`, f.MaxSeverity)
	}
	if f.AssignedTo > 0 {
		add(`assignee_id = ?`, f.AssignedTo)
	}
	if f.Author > 0 {
		add(`author_id = ?`, f.Author)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func orderClause(sortBy string) string {
	switch NormalizeSort(sortBy) {
	case SortOldest:
		return ` ORDER BY created_at ASC, id ASC`
	case SortTitle:
		return ` ORDER BY title ASC, id DESC`
	case SortClassification:
		return ` ORDER BY classification ASC, id DESC`
	case SortSeverity:
		return ` ORDER BY severity DESC, id DESC`
	case SortAssignedTo:
		return ` ORDER BY assignee_id ASC NULLS LAST, id DESC`
	default:
		return ` ORDER BY created_at DESC, id DESC`
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBug(row rowScanner) (Bug, error) {
	var bug Bug
	if err := row.Scan(&bug.ID, &bug.Title, &bug.Description, &bug.StepsToRepro,
		&bug.Severity, &bug.Classification, &bug.Status, &bug.AuthorID,
		&bug.AssigneeID, &bug.CreatedAt, &bug.UpdatedAt, &bug.ClosedAt); err != nil {
		return Bug{}, err
	}
	return bug, nil
}

func scanTestCase(row rowScanner) (TestCase, error) {
	var tc TestCase
	if err := row.Scan(&tc.ID, &tc.BugID, &tc.AuthorID, &tc.Title, &tc.Steps,
		&tc.Expected, &tc.CreatedAt, &tc.UpdatedAt); err != nil {
		return TestCase{}, err
	}
	return tc, nil
}

var _ Repository = (*PGRepository)(nil)
