package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/mvp-joe/pew/internal/pyenv"
	"github.com/spf13/cobra"
)

var runConfig string

var runCmd = &cobra.Command{
	Use:   "run [platform] [args...]",
	Short: "Run the app",
	Long: `Run starts the app on a platform.

Desktop platforms run src/main.py with the project's Python. Android
installs and launches the built APK on the attached device; iOS regenerates
and opens the Xcode project. The "browser" platform serves the web UI
locally and opens it in the default browser; arguments become the page's
query string.

Arguments after the platform are passed to the app unchanged.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runConfig, "config", "", "Python config file from configs/ to install as src/local_config.py")
	// Flags after the platform belong to the app.
	runCmd.Flags().SetInterspersed(false)
}

func runRun(cmd *cobra.Command, args []string) error {
	dir, err := workingDir()
	if err != nil {
		return err
	}
	s, err := openSession(dir, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	platform, rest := splitPlatform(args)
	return executeRun(ctx, s, platform, runConfig, rest)
}

func executeRun(ctx context.Context, s *session, platform, configName string, args []string) error {
	if err := copyConfigFile(s.root, configName); err != nil {
		return err
	}
	if platform == "browser" {
		return serveBrowser(ctx, s, args, openInBrowser)
	}
	ctrl, err := s.controller(platform, configName, nil)
	if err != nil {
		return err
	}
	return ctrl.Run(ctx, args)
}

var testNoFunctional bool

var testCmd = &cobra.Command{
	Use:   "test [platform]",
	Short: "Run the project's tests",
	Long: `Test runs src/main.py --test, which starts the app's unit tests and,
unless --no-functional is given, its functional GUI tests.`,
	Args: cobra.MaximumNArgs(1),
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
		return executeTest(cmd.Context(), s, testNoFunctional)
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
	testCmd.Flags().BoolVar(&testNoFunctional, "no-functional", false, "Only run unit tests, skip the GUI functional tests")
}

func executeTest(ctx context.Context, s *session, noFunctional bool) error {
	args := []string{"src/main.py", "--test"}
	if noFunctional {
		args = append(args, "--no-functional")
	}
	interp := pyenv.SystemInterpreter{Path: s.project().String("python")}
	cmd, err := interp.Command(args...)
	if err != nil {
		return err
	}
	cmd.Dir = s.root
	return s.runner.Run(ctx, cmd)
}
