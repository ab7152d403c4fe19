package audit

import (
	"context"
	"fmt"
	"time"
)

// Filters narrows the audit timeline. Zero values mean "no filter".
type Filters struct {
	From     time.Time
	To       time.Time
	Actor    int64
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// Entry is one audit row as served to clients. Actor fields are the snapshot
// captured when the action happened, not the actor's current profile.
type Entry struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actorId"`
	ActorEmail string         `json:"actorEmail"`
	ActorName  string         `json:"actorName"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entityId"`
	Meta       map[string]any `json:"meta,omitempty"`
	At         time.Time      `json:"at"`
}

// PagingInfo reports cursor-less paging state. HasNext comes from fetching
// one row beyond the page.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
}

// Result bundles one page of entries with its paging info.
type Result struct {
	Entries []Entry    `json:"entries"`
	Paging  PagingInfo `json:"paging"`
}

// Repository provides read access to the audit trail.
type Repository interface {
	Window(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService builds an audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Timeline returns one page of audit entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	entries, err := s.repo.Window(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Result{
		Entries: entries,
		Paging:  PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext},
	}, nil
}

// Prune removes entries older than retention. Run from the background worker.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if s.repo == nil {
		return 0, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.DeleteBefore(ctx, time.Now().Add(-retention))
}
