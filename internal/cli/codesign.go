package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var codesignConfig string

var codesignCmd = &cobra.Command{
	Use:   "codesign [platform]",
	Short: "Sign the built app",
	Long: `Codesign signs every binary in the built bundle from the inside out
and verifies the result.

The identity comes from MAC_CODESIGN_IDENTITY or codesign.osx.identity in
project_info.json; codesign.osx.entitlements is optional.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCodesign,
}

func init() {
	rootCmd.AddCommand(codesignCmd)
	codesignCmd.Flags().StringVar(&codesignConfig, "config", "", "Config name the app was built with")
}

func runCodesign(cmd *cobra.Command, args []string) error {
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
	return executeCodesign(cmd.Context(), s, platform, codesignConfig)
}

func executeCodesign(ctx context.Context, s *session, platform, configName string) error {
	ctrl, err := s.controller(platform, configName, nil)
	if err != nil {
		return err
	}
	if err := ctrl.Codesign(ctx); err != nil {
		return err
	}
	fmt.Printf("✓ Signed %s\n", s.project().Name())
	return nil
}
