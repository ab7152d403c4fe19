package bugs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bugtrail/bugtrail/internal/shared"
	"github.com/bugtrail/bugtrail/internal/users"
)

type mockRepository struct {
	bugs      map[int64]Bug
	comments  map[int64]Comment
	tests     map[int64]TestCase
	nextID    int64
	createErr error
	updateErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		bugs:     make(map[int64]Bug),
		comments: make(map[int64]Comment),
		tests:    make(map[int64]TestCase),
	}
}

func (m *mockRepository) Create(_ context.Context, bug Bug) (Bug, error) {
	if m.createErr != nil {
		return Bug{}, m.createErr
	}
	m.nextID++
	bug.ID = m.nextID
	m.bugs[bug.ID] = bug
	return bug, nil
}

func (m *mockRepository) FindByID(_ context.Context, id int64) (Bug, error) {
	bug, ok := m.bugs[id]
	if !ok {
		return Bug{}, shared.ErrNotFound
	}
	return bug, nil
}

func (m *mockRepository) List(_ context.Context, _ ListFilters, _ shared.Pagination) ([]Bug, int, error) {
	var list []Bug
	for _, bug := range m.bugs {
		list = append(list, bug)
	}
	return list, len(list), nil
}

func (m *mockRepository) Update(_ context.Context, bug Bug) (Bug, error) {
	if m.updateErr != nil {
		return Bug{}, m.updateErr
	}
	if _, ok := m.bugs[bug.ID]; !ok {
		return Bug{}, shared.ErrNotFound
	}
	m.bugs[bug.ID] = bug
	return bug, nil
}

func (m *mockRepository) Delete(_ context.Context, id int64) error {
	if _, ok := m.bugs[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.bugs, id)
	return nil
}

func (m *mockRepository) CreateComment(_ context.Context, comment Comment) (Comment, error) {
	m.nextID++
	comment.ID = m.nextID
	m.comments[comment.ID] = comment
	return comment, nil
}

func (m *mockRepository) FindComment(_ context.Context, bugID, commentID int64) (Comment, error) {
	comment, ok := m.comments[commentID]
	if !ok || comment.BugID != bugID {
		return Comment{}, shared.ErrNotFound
	}
	return comment, nil
}

func (m *mockRepository) ListComments(_ context.Context, bugID int64) ([]Comment, error) {
	var list []Comment
	for _, comment := range m.comments {
		if comment.BugID == bugID {
			list = append(list, comment)
		}
	}
	return list, nil
}

func (m *mockRepository) CreateTestCase(_ context.Context, tc TestCase) (TestCase, error) {
	m.nextID++
	tc.ID = m.nextID
	m.tests[tc.ID] = tc
	return tc, nil
}

func (m *mockRepository) FindTestCase(_ context.Context, bugID, testID int64) (TestCase, error) {
	tc, ok := m.tests[testID]
	if !ok || tc.BugID != bugID {
		return TestCase{}, shared.ErrNotFound
	}
	return tc, nil
}

func (m *mockRepository) ListTestCases(_ context.Context, bugID int64) ([]TestCase, error) {
	var list []TestCase
	for _, tc := range m.tests {
		if tc.BugID == bugID {
			list = append(list, tc)
		}
	}
	return list, nil
}

func (m *mockRepository) UpdateTestCase(_ context.Context, tc TestCase) (TestCase, error) {
	if _, ok := m.tests[tc.ID]; !ok {
		return TestCase{}, shared.ErrNotFound
	}
	m.tests[tc.ID] = tc
	return tc, nil
}

func (m *mockRepository) DeleteTestCase(_ context.Context, bugID, testID int64) error {
	tc, ok := m.tests[testID]
	if !ok || tc.BugID != bugID {
		return shared.ErrNotFound
	}
	delete(m.tests, testID)
	return nil
}

type mockAuditor struct {
	entries []shared.AuditEntry
	err     error
}

func (m *mockAuditor) Record(_ context.Context, entry shared.AuditEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

type mockIdem struct {
	keys     map[string]bool
	checkErr error
}

func (m *mockIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.checkErr != nil {
		return m.checkErr
	}
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *mockIdem) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type mockEnqueuer struct {
	enqueued [][2]int64
	err      error
}

func (m *mockEnqueuer) EnqueueAssignmentNotification(_ context.Context, bugID, assigneeID int64) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, [2]int64{bugID, assigneeID})
	return nil
}

type mockAccounts struct {
	users map[int64]users.User
}

func (m *mockAccounts) FindByID(_ context.Context, id int64) (users.User, error) {
	user, ok := m.users[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return user, nil
}

func testActor() *shared.Identity {
	return &shared.Identity{ID: 9, Email: "dev@bugtrail.local", Name: "Dev", Roles: []string{"developer"}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateStampsServerSideFields(t *testing.T) {
	repo := newMockRepository()
	audit := &mockAuditor{}
	svc := NewService(repo, nil, audit, nil, nil, quietLogger())

	bug, err := svc.Create(context.Background(), testActor(), CreateInput{Title: "crash on save", Severity: 4}, "")
	require.NoError(t, err)

	assert.Equal(t, StatusOpen, bug.Status)
	assert.Equal(t, ClassificationUnclassified, bug.Classification)
	assert.Equal(t, int64(9), bug.AuthorID)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "bug.create", audit.entries[0].Action)
	assert.Equal(t, "dev@bugtrail.local", audit.entries[0].ActorEmail)
}

func TestCreateDuplicateIdempotencyKeyConflicts(t *testing.T) {
	repo := newMockRepository()
	idem := &mockIdem{}
	svc := NewService(repo, nil, nil, idem, nil, quietLogger())

	_, err := svc.Create(context.Background(), testActor(), CreateInput{Title: "once"}, "key-1")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), testActor(), CreateInput{Title: "twice"}, "key-1")
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	assert.Len(t, repo.bugs, 1)
}

func TestCreateReleasesKeyWhenInsertFails(t *testing.T) {
	repo := newMockRepository()
	repo.createErr = assert.AnError
	idem := &mockIdem{}
	svc := NewService(repo, nil, nil, idem, nil, quietLogger())

	_, err := svc.Create(context.Background(), testActor(), CreateInput{Title: "doomed"}, "key-1")
	require.Error(t, err)
	assert.False(t, idem.keys["key-1"], "a failed create must release the key for retry")
}

func TestReassignSameAssigneeIsNoOp(t *testing.T) {
	repo := newMockRepository()
	assignee := int64(12)
	repo.bugs[1] = Bug{ID: 1, Title: "x", AssigneeID: &assignee}
	audit := &mockAuditor{}
	enq := &mockEnqueuer{}
	svc := NewService(repo, &mockAccounts{}, audit, nil, enq, quietLogger())

	bug, err := svc.Reassign(context.Background(), testActor(), repo.bugs[1], &assignee)
	require.NoError(t, err)
	assert.Equal(t, &assignee, bug.AssigneeID)
	assert.Empty(t, audit.entries)
	assert.Empty(t, enq.enqueued)
}

func TestClassifyTwiceConvergesOnSameState(t *testing.T) {
	repo := newMockRepository()
	repo.bugs[1] = Bug{ID: 1, Title: "x", Classification: ClassificationUnclassified}
	audit := &mockAuditor{}
	svc := NewService(repo, nil, audit, nil, nil, quietLogger())

	first, err := svc.Classify(context.Background(), testActor(), repo.bugs[1], ClassificationApproved)
	require.NoError(t, err)
	assert.Equal(t, ClassificationApproved, first.Classification)

	second, err := svc.Classify(context.Background(), testActor(), first, ClassificationApproved)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, audit.entries, 1)
}

func TestReassignRejectsUnknownOrInactiveAssignee(t *testing.T) {
	repo := newMockRepository()
	repo.bugs[1] = Bug{ID: 1, Title: "x"}
	accounts := &mockAccounts{users: map[int64]users.User{
		30: {ID: 30, IsActive: false},
	}}
	svc := NewService(repo, accounts, nil, nil, nil, quietLogger())

	unknown := int64(99)
	_, err := svc.Reassign(context.Background(), testActor(), repo.bugs[1], &unknown)
	assert.ErrorIs(t, err, ErrUnknownAssignee)

	inactive := int64(30)
	_, err = svc.Reassign(context.Background(), testActor(), repo.bugs[1], &inactive)
	assert.ErrorIs(t, err, ErrUnknownAssignee)
}

func TestReassignNotifiesNewAssignee(t *testing.T) {
	repo := newMockRepository()
	repo.bugs[1] = Bug{ID: 1, Title: "x"}
	accounts := &mockAccounts{users: map[int64]users.User{12: {ID: 12, IsActive: true}}}
	audit := &mockAuditor{}
	enq := &mockEnqueuer{}
	svc := NewService(repo, accounts, audit, nil, enq, quietLogger())

	target := int64(12)
	bug, err := svc.Reassign(context.Background(), testActor(), repo.bugs[1], &target)
	require.NoError(t, err)
	require.NotNil(t, bug.AssigneeID)
	assert.Equal(t, int64(12), *bug.AssigneeID)
	assert.Equal(t, [][2]int64{{1, 12}}, enq.enqueued)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "bug.reassign", audit.entries[0].Action)
}

func TestReassignClearingSkipsNotification(t *testing.T) {
	repo := newMockRepository()
	assignee := int64(12)
	repo.bugs[1] = Bug{ID: 1, Title: "x", AssigneeID: &assignee}
	enq := &mockEnqueuer{}
	svc := NewService(repo, &mockAccounts{}, nil, nil, enq, quietLogger())

	bug, err := svc.Reassign(context.Background(), testActor(), repo.bugs[1], nil)
	require.NoError(t, err)
	assert.Nil(t, bug.AssigneeID)
	assert.Empty(t, enq.enqueued)
}

func TestReassignSurvivesEnqueueFailure(t *testing.T) {
	repo := newMockRepository()
	repo.bugs[1] = Bug{ID: 1, Title: "x"}
	accounts := &mockAccounts{users: map[int64]users.User{12: {ID: 12, IsActive: true}}}
	svc := NewService(repo, accounts, nil, nil, &mockEnqueuer{err: assert.AnError}, quietLogger())

	target := int64(12)
	_, err := svc.Reassign(context.Background(), testActor(), repo.bugs[1], &target)
	assert.NoError(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	repo.bugs[1] = Bug{ID: 1, Title: "x", Status: StatusOpen}
	audit := &mockAuditor{}
	svc := NewService(repo, nil, audit, nil, nil, quietLogger())

	closed, err := svc.Close(context.Background(), testActor(), repo.bugs[1])
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	again, err := svc.Close(context.Background(), testActor(), closed)
	require.NoError(t, err)
	assert.Equal(t, closed.ClosedAt, again.ClosedAt)
	assert.Len(t, audit.entries, 1)
}

func TestEditAppliesOnlyProvidedFields(t *testing.T) {
	repo := newMockRepository()
	repo.bugs[1] = Bug{ID: 1, Title: "old title", Description: "old desc", Severity: 2}
	svc := NewService(repo, nil, nil, nil, nil, quietLogger())

	title := "new title"
	severity := 5
	updated, err := svc.Edit(context.Background(), testActor(), repo.bugs[1], EditInput{Title: &title, Severity: &severity})
	require.NoError(t, err)
	assert.Equal(t, "new title", updated.Title)
	assert.Equal(t, "old desc", updated.Description)
	assert.Equal(t, 5, updated.Severity)
}

func TestMutationsSurviveAuditFailure(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, &mockAuditor{err: assert.AnError}, nil, nil, quietLogger())

	_, err := svc.Create(context.Background(), testActor(), CreateInput{Title: "x"}, "")
	assert.NoError(t, err)
}

func TestUpdateTestCaseOverwritesNonEmptyFields(t *testing.T) {
	repo := newMockRepository()
	repo.tests[5] = TestCase{ID: 5, BugID: 1, Title: "old", Steps: "step", Expected: "green"}
	svc := NewService(repo, nil, nil, nil, nil, quietLogger())

	updated, err := svc.UpdateTestCase(context.Background(), testActor(), 1, 5, TestCaseInput{Title: "new"})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Title)
	assert.Equal(t, "step", updated.Steps)
	assert.Equal(t, "green", updated.Expected)
}

var _ Repository = (*mockRepository)(nil)
