package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded build state of every platform",
	Long: `Status lists each platform and config pew has built in this project,
how far it got (built, signed or notarized), where the artifact is and the
latest notarization request.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := workingDir()
		if err != nil {
			return err
		}
		s, err := openSession(dir, sessionOptions{})
		if err != nil {
			return err
		}
		defer s.Close()
		return executeStatus(os.Stdout, s, statusJSON, time.Now())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

type artifactStatus struct {
	Platform     string    `json:"platform"`
	Config       string    `json:"config,omitempty"`
	State        string    `json:"state"`
	Path         string    `json:"path,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	Notarization string    `json:"notarization,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
}

func executeStatus(w io.Writer, s *session, asJSON bool, now time.Time) error {
	artifacts, err := s.ledger.Artifacts()
	if err != nil {
		return err
	}

	rows := make([]artifactStatus, 0, len(artifacts))
	for _, a := range artifacts {
		row := artifactStatus{
			Platform:  a.Platform,
			Config:    a.Config,
			State:     string(a.State),
			Path:      a.Path,
			UpdatedAt: a.UpdatedAt,
		}
		sub, err := s.ledger.LatestSubmission(a.Platform, a.Config)
		if err != nil {
			return err
		}
		if sub != nil {
			row.Notarization = sub.Status
			row.RequestID = sub.RequestID
		}
		rows = append(rows, row)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintf(w, "Nothing built yet for %s\n", s.project().Name())
		return nil
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{BetweenColumns: tw.On},
			},
		})),
	)
	table.Header([]string{"Platform", "Config", "State", "Updated", "Notarization", "Artifact"})
	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		config := r.Config
		if config == "" {
			config = "-"
		}
		notarization := "-"
		if r.RequestID != "" {
			notarization = fmt.Sprintf("%s (%s)", r.Notarization, r.RequestID)
		}
		data = append(data, []any{r.Platform, config, r.State, formatTimeSince(r.UpdatedAt, now), notarization, r.Path})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// formatTimeSince formats t relative to now.
// Examples: "5m ago", "2h 10m ago", "3d ago"
func formatTimeSince(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	since := now.Sub(t)
	if since < 0 {
		since = 0
	}

	days := int(since.Hours() / 24)
	hours := int(since.Hours()) % 24
	minutes := int(since.Minutes()) % 60

	if days > 0 {
		if hours > 0 {
			return fmt.Sprintf("%dd %dh ago", days, hours)
		}
		return fmt.Sprintf("%dd ago", days)
	}
	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm ago", hours, minutes)
		}
		return fmt.Sprintf("%dh ago", hours)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm ago", minutes)
	}
	return fmt.Sprintf("%ds ago", int(since.Seconds()))
}
