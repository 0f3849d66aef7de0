package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var packageConfig string

var packageCmd = &cobra.Command{
	Use:   "package [platform]",
	Short: "Create a distributable package for the built app",
	Long: `Package wraps the built app in the platform's distribution format:
an APK copy on Android, a disk image on macOS, an Inno Setup installer on
Windows and a tarball on Linux. Run 'pew build' first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPackage,
}

func init() {
	rootCmd.AddCommand(packageCmd)
	packageCmd.Flags().StringVar(&packageConfig, "config", "", "Config name the app was built with")
}

func runPackage(cmd *cobra.Command, args []string) error {
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
	return executePackage(cmd.Context(), s, platform, packageConfig)
}

func executePackage(ctx context.Context, s *session, platform, configName string) error {
	ctrl, err := s.controller(platform, configName, nil)
	if err != nil {
		return err
	}
	if err := ctrl.Dist(ctx); err != nil {
		return err
	}
	pkg, err := ctrl.PackageDir()
	if err != nil {
		return err
	}
	fmt.Printf("✓ Packaged %s for %s in %s\n", s.project().Name(), ctrl.Platform(), pkg)
	return nil
}
