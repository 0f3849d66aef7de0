package cli

import (
	"context"
	"fmt"

	"github.com/mvp-joe/pew/internal/deps"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update [platform]",
	Short: "Download the platform's support files into the project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withExclusiveSession(args, func(s *session, platform string) error {
			return executeUpdate(cmd.Context(), s, platform, deps.NewFetcher(log))
		})
	},
}

var initCmd = &cobra.Command{
	Use:   "init [platform]",
	Short: "Download support files and prepare the platform toolchain",
	Long: `Init runs 'pew update' and then the platform's one-time setup, such
as creating the python-for-android distribution.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withExclusiveSession(args, func(s *session, platform string) error {
			return executeInit(cmd.Context(), s, platform, deps.NewFetcher(log))
		})
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(initCmd)
}

func withExclusiveSession(args []string, fn func(s *session, platform string) error) error {
	dir, err := workingDir()
	if err != nil {
		return err
	}
	s, err := openSession(dir, sessionOptions{Exclusive: true})
	if err != nil {
		return err
	}
	defer s.Close()

	platform, _ := splitPlatform(args)
	return fn(s, platform)
}

func executeUpdate(ctx context.Context, s *session, platform string, fetcher *deps.Fetcher) error {
	fmt.Println("Copying latest dependencies into project...")
	if fetcher.OnProgress == nil {
		fetcher.OnProgress = downloadProgress(false)
	}
	if err := fetcher.Ensure(ctx, platform, map[string]string{"PROJECT_DIR": s.root}); err != nil {
		return err
	}
	fmt.Printf("✓ Dependencies for %s are up to date\n", platform)
	return nil
}

func executeInit(ctx context.Context, s *session, platform string, fetcher *deps.Fetcher) error {
	if err := executeUpdate(ctx, s, platform, fetcher); err != nil {
		return err
	}
	ctrl, err := s.controller(platform, "", nil)
	if err != nil {
		return err
	}
	return ctrl.Init(ctx)
}
