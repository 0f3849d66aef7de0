package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// ArtifactState is a step of the build → sign → notarize progression.
type ArtifactState string

const (
	StateUnbuilt   ArtifactState = "unbuilt"
	StateBuilt     ArtifactState = "built"
	StateSigned    ArtifactState = "signed"
	StateNotarized ArtifactState = "notarized"
)

var stateRank = map[ArtifactState]int{
	StateUnbuilt:   0,
	StateBuilt:     1,
	StateSigned:    2,
	StateNotarized: 3,
}

// AtLeast reports whether s has reached other.
func (s ArtifactState) AtLeast(other ArtifactState) bool {
	return stateRank[s] >= stateRank[other]
}

// SetState records the state of a platform/config artifact.
func (l *Ledger) SetState(platform, config string, state ArtifactState, path string) error {
	if _, ok := stateRank[state]; !ok {
		return fmt.Errorf("unknown artifact state %q", state)
	}

	_, err := sq.Insert("artifacts").
		Columns("platform", "config", "state", "path", "updated_at").
		Values(platform, config, string(state), path, l.timestamp()).
		Suffix("ON CONFLICT (platform, config) DO UPDATE SET state = excluded.state, path = excluded.path, updated_at = excluded.updated_at").
		RunWith(l.db).
		Exec()
	if err != nil {
		return fmt.Errorf("record %s state for %s: %w", state, platform, err)
	}
	return nil
}

// State returns the recorded state, StateUnbuilt when nothing is recorded.
func (l *Ledger) State(platform, config string) (ArtifactState, error) {
	var state string
	err := sq.Select("state").
		From("artifacts").
		Where(sq.Eq{"platform": platform, "config": config}).
		RunWith(l.db).
		QueryRow().
		Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return StateUnbuilt, nil
	}
	if err != nil {
		return "", fmt.Errorf("query state for %s: %w", platform, err)
	}
	return ArtifactState(state), nil
}

// ResetState forgets recorded artifact states. An empty platform clears
// every artifact; otherwise only the given platform/config pair is reset.
// Submissions are kept.
func (l *Ledger) ResetState(platform, config string) (int64, error) {
	del := sq.Delete("artifacts")
	if platform != "" {
		del = del.Where(sq.Eq{"platform": platform, "config": config})
	}
	res, err := del.RunWith(l.db).Exec()
	if err != nil {
		return 0, fmt.Errorf("reset artifact state: %w", err)
	}
	return res.RowsAffected()
}

// Artifact is one recorded platform/config build.
type Artifact struct {
	Platform  string
	Config    string
	State     ArtifactState
	Path      string
	UpdatedAt time.Time
}

// Artifacts lists every recorded artifact ordered by platform and config.
func (l *Ledger) Artifacts() ([]Artifact, error) {
	rows, err := sq.Select("platform", "config", "state", "path", "updated_at").
		From("artifacts").
		OrderBy("platform", "config").
		RunWith(l.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		var state, updated string
		if err := rows.Scan(&a.Platform, &a.Config, &state, &a.Path, &updated); err != nil {
			return nil, err
		}
		a.State = ArtifactState(state)
		a.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, a)
	}
	return out, rows.Err()
}
