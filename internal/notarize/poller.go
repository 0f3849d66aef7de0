// Package notarize uploads a signed artifact to Apple's notary service and
// polls it to a terminal status.
//
// Two loops are involved. The outer loop polls the status on a fixed
// interval until the service reports Accepted, Invalid or Rejected, or the
// wall-clock budget runs out. The inner retry tolerates a status-check
// command that itself fails (network hiccups, service errors) up to
// MaxStatusRetries consecutive times before giving up.
package notarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/mvp-joe/pew/internal/runner"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Status is a notarytool submission status.
type Status string

const (
	StatusInProgress Status = "In Progress"
	StatusAccepted   Status = "Accepted"
	StatusInvalid    Status = "Invalid"
	StatusRejected   Status = "Rejected"
)

// Terminal reports whether polling can stop at s.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusInvalid || s == StatusRejected
}

const (
	DefaultInterval         = 30 * time.Second
	DefaultTimeout          = time.Hour
	DefaultMaxStatusRetries = 3
)

// ErrRejected is returned when the service reports Invalid or Rejected.
var ErrRejected = errors.New("notarization rejected")

// Credentials authenticate notarytool.
type Credentials struct {
	AppleID  string
	Password string
	TeamID   string
}

// CredentialsFromEnv reads MAC_DEV_ID_EMAIL, MAC_APP_PASSWORD and the
// optional MAC_NOTARIZATION_PROVIDER team id through getenv.
func CredentialsFromEnv(getenv func(string) string) (Credentials, error) {
	c := Credentials{
		AppleID:  getenv("MAC_DEV_ID_EMAIL"),
		Password: getenv("MAC_APP_PASSWORD"),
		TeamID:   getenv("MAC_NOTARIZATION_PROVIDER"),
	}
	var missing []string
	if c.AppleID == "" {
		missing = append(missing, "MAC_DEV_ID_EMAIL")
	}
	if c.Password == "" {
		missing = append(missing, "MAC_APP_PASSWORD")
	}
	if len(missing) > 0 {
		return c, pewerr.Preconditionf("notarization credentials missing: set %s", strings.Join(missing, " and "))
	}
	return c, nil
}

func (c Credentials) args() []string {
	args := []string{"--apple-id", c.AppleID, "--password", c.Password}
	if c.TeamID != "" {
		args = append(args, "--team-id", c.TeamID)
	}
	return args
}

// Poller submits artifacts and waits for their verdict.
type Poller struct {
	Runner           runner.Runner
	Log              logrus.FieldLogger
	Creds            Credentials
	Interval         time.Duration
	Timeout          time.Duration
	MaxStatusRetries int

	// Sleep and Now are replaceable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// NewPoller returns a Poller with the default interval, timeout and retry cap.
func NewPoller(r runner.Runner, log logrus.FieldLogger, creds Credentials) *Poller {
	return &Poller{
		Runner:           r,
		Log:              log,
		Creds:            creds,
		Interval:         DefaultInterval,
		Timeout:          DefaultTimeout,
		MaxStatusRetries: DefaultMaxStatusRetries,
		Sleep:            sleep,
		Now:              time.Now,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Submit uploads artifact (a zip, dmg or pkg) and returns the request id.
func (p *Poller) Submit(ctx context.Context, artifact string) (string, error) {
	args := append([]string{"notarytool", "submit", artifact}, p.Creds.args()...)
	args = append(args, "--output-format", "json")

	p.Log.WithField("artifact", artifact).Info("Uploading for notarization")
	out, err := p.Runner.Output(ctx, runner.Command{Name: "xcrun", Args: args})
	if err != nil {
		return "", fmt.Errorf("notarization upload failed: %w", err)
	}

	id := gjson.GetBytes(out, "id").String()
	if id == "" {
		return "", fmt.Errorf("notarization upload returned no request id: %s", strings.TrimSpace(string(out)))
	}
	p.Log.WithField("request_id", id).Info("Notarization request submitted")
	return id, nil
}

// Status runs one status check for a request.
func (p *Poller) Status(ctx context.Context, requestID string) (Status, error) {
	args := append([]string{"notarytool", "info", requestID}, p.Creds.args()...)
	args = append(args, "--output-format", "json")

	out, err := p.Runner.Output(ctx, runner.Command{Name: "xcrun", Args: args})
	if err != nil {
		return "", err
	}
	status := gjson.GetBytes(out, "status")
	if !status.Exists() {
		return "", fmt.Errorf("status check for %s returned no status: %s", requestID, strings.TrimSpace(string(out)))
	}
	return Status(status.String()), nil
}

// Wait polls requestID until a terminal status. It returns nil for
// Accepted, an error wrapping ErrRejected for Invalid/Rejected and a
// *pewerr.TimeoutError when Timeout elapses first.
func (p *Poller) Wait(ctx context.Context, requestID string) (Status, error) {
	log := p.Log.WithField("request_id", requestID)
	deadline := p.Now().Add(p.Timeout)
	failures := 0

	for {
		status, err := p.Status(ctx, requestID)
		switch {
		case err != nil:
			var toolErr *pewerr.ExternalToolError
			if !errors.As(err, &toolErr) {
				return "", err
			}
			failures++
			if failures > p.MaxStatusRetries {
				return "", fmt.Errorf("notarization status check failed %d times in a row: %w", failures, err)
			}
			log.WithError(err).Warnf("Status check failed (attempt %d of %d), retrying", failures, p.MaxStatusRetries+1)

		case status == StatusAccepted:
			log.Info("Notarization accepted")
			return status, nil

		case status.Terminal():
			return status, fmt.Errorf("%w: request %s finished with status %q (see `xcrun notarytool log %s`)", ErrRejected, requestID, status, requestID)

		default:
			failures = 0
			log.WithField("status", status).Debug("Notarization still in progress")
		}

		if !p.Now().Before(deadline) {
			return status, &pewerr.TimeoutError{Operation: "notarization of " + requestID, After: p.Timeout}
		}
		if err := p.Sleep(ctx, p.Interval); err != nil {
			return status, err
		}
	}
}

// Staple attaches the notarization ticket to path.
func (p *Poller) Staple(ctx context.Context, path string) error {
	if err := p.Runner.Run(ctx, runner.Command{Name: "xcrun", Args: []string{"stapler", "staple", path}}); err != nil {
		return fmt.Errorf("stapling failed for %s: %w", path, err)
	}
	return nil
}
