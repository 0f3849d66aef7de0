package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	cleanQuietFlag  bool
	cleanAllFlag    bool
	cleanConfigFlag string
)

// outputKinds are the per-platform trees a build writes.
var outputKinds = []string{"build", "dist", "package"}

var cleanCmd = &cobra.Command{
	Use:   "clean [platform]",
	Short: "Remove build outputs to force a fresh build",
	Long: `Clean removes the build, dist and package directories of one platform
(and config, with --config) and forgets its recorded build state, so the next
'pew build' starts from scratch and 'pew package' refuses to run until it does.

Use --all to remove the outputs of every platform. Notarization history is
preserved.

Examples:
  # Clean the host platform
  pew clean

  # Clean the beta config of the Android build
  pew clean android --config beta

  # Clean everything, quietly
  pew clean --all --quiet
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withExclusiveSession(args, func(s *session, platform string) error {
			return executeClean(s, platform, cleanConfigFlag, cleanAllFlag, cleanQuietFlag)
		})
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().BoolVarP(&cleanQuietFlag, "quiet", "q", false, "Suppress output messages")
	cleanCmd.Flags().BoolVarP(&cleanAllFlag, "all", "a", false, "Remove outputs of every platform")
	cleanCmd.Flags().StringVar(&cleanConfigFlag, "config", "", "Only clean the outputs of this config")
}

func executeClean(s *session, platform, configName string, all, quiet bool) error {
	var targets []string
	label := "all platforms"
	if all {
		for _, kind := range outputKinds {
			targets = append(targets, filepath.Join(s.root, kind))
		}
		platform, configName = "", ""
	} else {
		// Validates the platform name and resolves aliases.
		ctrl, err := s.controller(platform, configName, nil)
		if err != nil {
			return err
		}
		platform = ctrl.Platform()
		label = platform
		if configName != "" {
			label += " (" + configName + ")"
		}
		for _, kind := range outputKinds {
			dir := filepath.Join(s.root, kind, platform)
			if configName != "" {
				dir = filepath.Join(dir, configName)
			}
			targets = append(targets, dir)
		}
	}

	var removed int
	var sizeMB float64
	for _, dir := range targets {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		// Size is informational only.
		size, _ := dirSizeMB(dir)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		removed++
		sizeMB += size
	}

	if _, err := s.ledger.ResetState(platform, configName); err != nil {
		return err
	}

	if quiet {
		return nil
	}
	switch {
	case removed == 0:
		fmt.Printf("No build outputs found for %s\n", label)
	case sizeMB > 0:
		fmt.Printf("✓ Cleaned %s (%d directories, ~%.1f MB)\n", label, removed, sizeMB)
	default:
		fmt.Printf("✓ Cleaned %s\n", label)
	}
	return nil
}

// dirSizeMB returns the total size of the regular files under dir.
func dirSizeMB(dir string) (float64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return float64(total) / (1024 * 1024), err
}
