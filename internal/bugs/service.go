package bugs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bugtrail/bugtrail/internal/shared"
	"github.com/bugtrail/bugtrail/internal/users"
)

// Auditor records mutation trail entries. Satisfied by shared.AuditLogger.
type Auditor interface {
	Record(ctx context.Context, entry shared.AuditEntry) error
}

// IdempotencyGuard deduplicates retried creates. Satisfied by
// shared.IdempotencyStore.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key string) error
}

// Enqueuer hands assignment notifications to the background worker.
type Enqueuer interface {
	EnqueueAssignmentNotification(ctx context.Context, bugID, assigneeID int64) error
}

// AccountLookup resolves user ids when validating an assignee.
type AccountLookup interface {
	FindByID(ctx context.Context, id int64) (users.User, error)
}

// ErrUnknownAssignee reports a reassignment target with no matching account.
var ErrUnknownAssignee = errors.New("bugs: unknown assignee")

// Service wraps bug business rules: server-side stamping, audit trail,
// idempotent creates and reassignment notifications.
type Service struct {
	repo     Repository
	accounts AccountLookup
	audit    Auditor
	idem     IdempotencyGuard
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewService constructs a Service. audit, idem and enqueuer may be nil in
// tests; the corresponding side effects are skipped.
func NewService(repo Repository, accounts AccountLookup, audit Auditor, idem IdempotencyGuard, enqueuer Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, accounts: accounts, audit: audit, idem: idem, enqueuer: enqueuer, logger: logger}
}

// CreateInput carries the client-supplied bug fields; everything else is
// stamped server-side.
type CreateInput struct {
	Title        string
	Description  string
	StepsToRepro string
	Severity     int
}

// Create stores a new bug authored by actor. A non-empty idempotencyKey that
// was already consumed yields shared.ErrIdempotencyConflict without creating
// anything.
func (s *Service) Create(ctx context.Context, actor *shared.Identity, input CreateInput, idempotencyKey string) (Bug, error) {
	if idempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idempotencyKey, "bugs:create"); err != nil {
			return Bug{}, err
		}
	}
	bug := Bug{
		Title:          input.Title,
		Description:    input.Description,
		StepsToRepro:   input.StepsToRepro,
		Severity:       input.Severity,
		Classification: ClassificationUnclassified,
		Status:         StatusOpen,
		AuthorID:       actor.ID,
	}
	created, err := s.repo.Create(ctx, bug)
	if err != nil {
		if idempotencyKey != "" && s.idem != nil {
			// Roll the key back so the client may retry.
			if delErr := s.idem.Delete(ctx, idempotencyKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return Bug{}, err
	}
	s.recordAudit(ctx, actor, "bug.create", created.ID, map[string]any{"title": created.Title})
	return created, nil
}

// Get fetches one bug.
func (s *Service) Get(ctx context.Context, id int64) (Bug, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns a filtered page of bugs.
func (s *Service) List(ctx context.Context, filters ListFilters, page, limit int) ([]Bug, shared.Pagination, error) {
	filters.SortBy = NormalizeSort(filters.SortBy)
	pagination := shared.NewPagination(page, limit, 0)
	list, total, err := s.repo.List(ctx, filters, pagination)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(page, limit, total), nil
}

// EditInput carries the editable bug fields. Nil pointers leave the current
// value untouched.
type EditInput struct {
	Title        *string
	Description  *string
	StepsToRepro *string
	Severity     *int
}

// Edit applies a partial update. Ownership has already been decided by the
// caller against the same fetched snapshot.
func (s *Service) Edit(ctx context.Context, actor *shared.Identity, bug Bug, input EditInput) (Bug, error) {
	changes := map[string]any{}
	if input.Title != nil {
		bug.Title = *input.Title
		changes["title"] = *input.Title
	}
	if input.Description != nil {
		bug.Description = *input.Description
		changes["description"] = true
	}
	if input.StepsToRepro != nil {
		bug.StepsToRepro = *input.StepsToRepro
		changes["stepsToReproduce"] = true
	}
	if input.Severity != nil {
		bug.Severity = *input.Severity
		changes["severity"] = *input.Severity
	}
	updated, err := s.repo.Update(ctx, bug)
	if err != nil {
		return Bug{}, err
	}
	s.recordAudit(ctx, actor, "bug.edit", updated.ID, changes)
	return updated, nil
}

// Reassign changes the assignee. Assigning the current assignee again is a
// no-op success, so a retried request converges on the same state. A nil
// assigneeID clears the assignment.
func (s *Service) Reassign(ctx context.Context, actor *shared.Identity, bug Bug, assigneeID *int64) (Bug, error) {
	if sameAssignee(bug.AssigneeID, assigneeID) {
		return bug, nil
	}
	if assigneeID != nil {
		account, err := s.accounts.FindByID(ctx, *assigneeID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return Bug{}, fmt.Errorf("%w: %d", ErrUnknownAssignee, *assigneeID)
			}
			return Bug{}, err
		}
		if !account.IsActive {
			return Bug{}, fmt.Errorf("%w: %d", ErrUnknownAssignee, *assigneeID)
		}
	}
	previous := bug.AssigneeID
	bug.AssigneeID = assigneeID
	updated, err := s.repo.Update(ctx, bug)
	if err != nil {
		return Bug{}, err
	}
	s.recordAudit(ctx, actor, "bug.reassign", updated.ID, map[string]any{
		"from": assigneeValue(previous),
		"to":   assigneeValue(assigneeID),
	})
	if assigneeID != nil && s.enqueuer != nil {
		if err := s.enqueuer.EnqueueAssignmentNotification(ctx, updated.ID, *assigneeID); err != nil {
			s.logger.Warn("enqueue assignment notification", slog.Any("error", err))
		}
	}
	return updated, nil
}

// Classify sets the classification label.
func (s *Service) Classify(ctx context.Context, actor *shared.Identity, bug Bug, classification string) (Bug, error) {
	if bug.Classification == classification {
		return bug, nil
	}
	previous := bug.Classification
	bug.Classification = classification
	updated, err := s.repo.Update(ctx, bug)
	if err != nil {
		return Bug{}, err
	}
	s.recordAudit(ctx, actor, "bug.classify", updated.ID, map[string]any{
		"from": previous,
		"to":   classification,
	})
	return updated, nil
}

// Close marks the bug closed. Closing a closed bug is a no-op success.
func (s *Service) Close(ctx context.Context, actor *shared.Identity, bug Bug) (Bug, error) {
	if bug.Status == StatusClosed {
		return bug, nil
	}
	now := time.Now().UTC()
	bug.Status = StatusClosed
	bug.ClosedAt = &now
	updated, err := s.repo.Update(ctx, bug)
	if err != nil {
		return Bug{}, err
	}
	s.recordAudit(ctx, actor, "bug.close", updated.ID, nil)
	return updated, nil
}

// Delete removes the bug and its sub-resources.
func (s *Service) Delete(ctx context.Context, actor *shared.Identity, bug Bug) error {
	if err := s.repo.Delete(ctx, bug.ID); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "bug.delete", bug.ID, map[string]any{"title": bug.Title})
	return nil
}

// AddComment appends a comment authored by actor.
func (s *Service) AddComment(ctx context.Context, actor *shared.Identity, bugID int64, body string) (Comment, error) {
	created, err := s.repo.CreateComment(ctx, Comment{BugID: bugID, AuthorID: actor.ID, Body: body})
	if err != nil {
		return Comment{}, err
	}
	s.recordAudit(ctx, actor, "bug.comment.create", bugID, map[string]any{"commentId": created.ID})
	return created, nil
}

// GetComment fetches one comment scoped to the bug.
func (s *Service) GetComment(ctx context.Context, bugID, commentID int64) (Comment, error) {
	return s.repo.FindComment(ctx, bugID, commentID)
}

// ListComments returns the bug's comments.
func (s *Service) ListComments(ctx context.Context, bugID int64) ([]Comment, error) {
	return s.repo.ListComments(ctx, bugID)
}

// TestCaseInput carries client-supplied test-case fields.
type TestCaseInput struct {
	Title    string
	Steps    string
	Expected string
}

// AddTestCase attaches a test case authored by actor.
func (s *Service) AddTestCase(ctx context.Context, actor *shared.Identity, bugID int64, input TestCaseInput) (TestCase, error) {
	created, err := s.repo.CreateTestCase(ctx, TestCase{
		BugID:    bugID,
		AuthorID: actor.ID,
		Title:    input.Title,
		Steps:    input.Steps,
		Expected: input.Expected,
	})
	if err != nil {
		return TestCase{}, err
	}
	s.recordAudit(ctx, actor, "bug.test.create", bugID, map[string]any{"testId": created.ID})
	return created, nil
}

// ListTestCases returns the bug's test cases.
func (s *Service) ListTestCases(ctx context.Context, bugID int64) ([]TestCase, error) {
	return s.repo.ListTestCases(ctx, bugID)
}

// UpdateTestCase applies a partial update to an existing test case.
func (s *Service) UpdateTestCase(ctx context.Context, actor *shared.Identity, bugID, testID int64, input TestCaseInput) (TestCase, error) {
	tc, err := s.repo.FindTestCase(ctx, bugID, testID)
	if err != nil {
		return TestCase{}, err
	}
	if input.Title != "" {
		tc.Title = input.Title
	}
	if input.Steps != "" {
		tc.Steps = input.Steps
	}
	if input.Expected != "" {
		tc.Expected = input.Expected
	}
	updated, err := s.repo.UpdateTestCase(ctx, tc)
	if err != nil {
		return TestCase{}, err
	}
	s.recordAudit(ctx, actor, "bug.test.update", bugID, map[string]any{"testId": testID})
	return updated, nil
}

// DeleteTestCase removes one test case.
func (s *Service) DeleteTestCase(ctx context.Context, actor *shared.Identity, bugID, testID int64) error {
	if err := s.repo.DeleteTestCase(ctx, bugID, testID); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "bug.test.delete", bugID, map[string]any{"testId": testID})
	return nil
}

// recordAudit persists the trail entry with a point-in-time actor snapshot.
// A failed audit write is logged, not surfaced; the mutation has already
// committed.
func (s *Service) recordAudit(ctx context.Context, actor *shared.Identity, action string, bugID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditEntry{
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		ActorName:  actor.Name,
		Action:     action,
		Entity:     "bug",
		EntityID:   strconv.FormatInt(bugID, 10),
		Meta:       meta,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func sameAssignee(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func assigneeValue(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
