package bugs

import (
	"time"
)

// Bug statuses.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Bug classifications form a closed set; anything else is rejected at the
// validation gate.
const (
	ClassificationUnclassified = "unclassified"
	ClassificationApproved     = "approved"
	ClassificationUnapproved   = "unapproved"
	ClassificationDuplicate    = "duplicate"
)

// KnownClassification reports whether value belongs to the closed set.
func KnownClassification(value string) bool {
	switch value {
	case ClassificationUnclassified, ClassificationApproved, ClassificationUnapproved, ClassificationDuplicate:
		return true
	}
	return false
}

// Severity bounds. 1 is cosmetic, 5 is critical.
const (
	MinSeverity = 1
	MaxSeverity = 5
)

// Bug is a reported defect. AuthorID and the timestamps are server-stamped;
// clients never supply them.
type Bug struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	StepsToRepro   string     `json:"stepsToReproduce"`
	Severity       int        `json:"severity"`
	Classification string     `json:"classification"`
	Status         string     `json:"status"`
	AuthorID       int64      `json:"authorId"`
	AssigneeID     *int64     `json:"assigneeId"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	ClosedAt       *time.Time `json:"closedAt,omitempty"`
}

// ResourceAuthorID implements the ownership contract.
func (b Bug) ResourceAuthorID() int64 {
	return b.AuthorID
}

// ResourceAssigneeID implements the ownership contract.
func (b Bug) ResourceAssigneeID() (int64, bool) {
	if b.AssigneeID == nil {
		return 0, false
	}
	return *b.AssigneeID, true
}

// Comment is a discussion entry attached to a bug.
type Comment struct {
	ID        int64     `json:"id"`
	BugID     int64     `json:"bugId"`
	AuthorID  int64     `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// TestCase describes how to verify a bug, attached to the bug it verifies.
type TestCase struct {
	ID        int64     `json:"id"`
	BugID     int64     `json:"bugId"`
	AuthorID  int64     `json:"authorId"`
	Title     string    `json:"title"`
	Steps     string    `json:"steps"`
	Expected  string    `json:"expected"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sort keys accepted by the listing endpoint. Unknown values fall back to
// SortNewest rather than erroring.
const (
	SortNewest         = "newest"
	SortOldest         = "oldest"
	SortTitle          = "title"
	SortClassification = "classification"
	SortSeverity       = "severity"
	SortAssignedTo     = "assignedTo"
)

// NormalizeSort maps a requested sort key onto the allow-list.
func NormalizeSort(value string) string {
	switch value {
	case SortNewest, SortOldest, SortTitle, SortClassification, SortSeverity, SortAssignedTo:
		return value
	}
	return SortNewest
}

// ListFilters narrows the bug listing. Zero values mean "no filter".
type ListFilters struct {
	Keyword        string
	Classification string
	Status         string
	MinSeverity    int
	MaxSeverity    int
	AssignedTo     int64
	Author         int64
	SortBy         string
}
