package cli

import (
	"context"
	"fmt"

	"github.com/mvp-joe/pew/internal/controller"
	"github.com/spf13/cobra"
)

var (
	buildRelease bool
	buildConfig  string
	buildSign    bool
)

var buildCmd = &cobra.Command{
	Use:   "build [platform] [extra args...]",
	Short: "Build the app for a platform",
	Long: `Build stages the project and runs the platform's packaging backend.

The platform defaults to the machine pew runs on. Extra arguments are
handed to the controller; "64bit" selects arm64 on Android.

Examples:
  pew build
  pew build android --release
  pew build osx --config beta --sign`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().BoolVar(&buildRelease, "release", false, "Build the app in release mode")
	buildCmd.Flags().StringVar(&buildConfig, "config", "", "Python config file from configs/ to install as src/local_config.py")
	buildCmd.Flags().BoolVar(&buildSign, "sign", false, "Sign the app after building (macOS)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	dir, err := workingDir()
	if err != nil {
		return err
	}
	s, err := openSession(dir, sessionOptions{Exclusive: true})
	if err != nil {
		return err
	}
	defer s.Close()

	platform, extra := splitPlatform(args)
	return executeBuild(cmd.Context(), s, platform, buildConfig, buildRelease, buildSign, extra)
}

func executeBuild(ctx context.Context, s *session, platform, configName string, release, sign bool, extra []string) error {
	if err := copyConfigFile(s.root, configName); err != nil {
		return err
	}
	ctrl, err := s.controller(platform, configName, extra)
	if err != nil {
		return err
	}

	plan := controller.NewBuildPlan(s.project(), ctrl.Platform(), configName, release, sign, extra)
	if len(plan.IgnorePaths) > 0 {
		s.log.WithField("paths", plan.IgnorePaths).Info("Ignore dirs specified")
	}
	if err := ctrl.Build(ctx, plan); err != nil {
		return err
	}

	app, err := ctrl.AppPath()
	if err != nil {
		return err
	}
	fmt.Printf("✓ Built %s for %s: %s\n", s.project().Name(), ctrl.Platform(), app)
	return nil
}
