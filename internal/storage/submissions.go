package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// ErrSubmissionNotFound is returned when updating an unknown request id.
var ErrSubmissionNotFound = errors.New("submission not found")

// Submission is one notarization upload.
type Submission struct {
	RequestID   string
	Platform    string
	Config      string
	Artifact    string
	Status      string
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// RecordSubmission stores a freshly submitted request.
func (l *Ledger) RecordSubmission(s Submission) error {
	now := l.timestamp()
	_, err := sq.Insert("submissions").
		Columns("request_id", "platform", "config", "artifact", "status", "submitted_at", "updated_at").
		Values(s.RequestID, s.Platform, s.Config, s.Artifact, s.Status, now, now).
		RunWith(l.db).
		Exec()
	if err != nil {
		return fmt.Errorf("record submission %s: %w", s.RequestID, err)
	}
	return nil
}

// UpdateSubmission sets the latest known status of a request.
func (l *Ledger) UpdateSubmission(requestID, status string) error {
	res, err := sq.Update("submissions").
		Set("status", status).
		Set("updated_at", l.timestamp()).
		Where(sq.Eq{"request_id": requestID}).
		RunWith(l.db).
		Exec()
	if err != nil {
		return fmt.Errorf("update submission %s: %w", requestID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update submission %s: %w", requestID, ErrSubmissionNotFound)
	}
	return nil
}

// LatestSubmission returns the most recent submission for platform/config,
// or nil when there is none.
func (l *Ledger) LatestSubmission(platform, config string) (*Submission, error) {
	var s Submission
	var submitted, updated string
	err := sq.Select("request_id", "platform", "config", "artifact", "status", "submitted_at", "updated_at").
		From("submissions").
		Where(sq.Eq{"platform": platform, "config": config}).
		OrderBy("submitted_at DESC", "rowid DESC").
		Limit(1).
		RunWith(l.db).
		QueryRow().
		Scan(&s.RequestID, &s.Platform, &s.Config, &s.Artifact, &s.Status, &submitted, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest submission for %s: %w", platform, err)
	}

	s.SubmittedAt, _ = time.Parse(time.RFC3339, submitted)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &s, nil
}
