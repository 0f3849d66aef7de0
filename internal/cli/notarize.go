package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/mvp-joe/pew/internal/controller"
	"github.com/mvp-joe/pew/internal/notarize"
	"github.com/spf13/cobra"
)

var (
	notarizeConfig   string
	notarizeWait     bool
	notarizeTimeout  time.Duration
	notarizeInterval time.Duration
	notarizeStatus   bool
)

var notarizeCmd = &cobra.Command{
	Use:   "notarize [platform]",
	Short: "Submit the signed app to Apple's notary service",
	Long: `Notarize uploads the signed app with notarytool using the
MAC_DEV_ID_EMAIL, MAC_APP_PASSWORD and optional MAC_NOTARIZATION_PROVIDER
credentials.

With --wait the command polls until the service accepts or rejects the
upload, then staples the ticket to the app. --status prints the last
recorded submission instead of uploading.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNotarize,
}

func init() {
	rootCmd.AddCommand(notarizeCmd)
	notarizeCmd.Flags().StringVar(&notarizeConfig, "config", "", "Config name the app was built with")
	notarizeCmd.Flags().BoolVar(&notarizeWait, "wait", false, "Wait for the verdict and staple the ticket")
	notarizeCmd.Flags().DurationVar(&notarizeTimeout, "timeout", notarize.DefaultTimeout, "Maximum time to wait for a verdict")
	notarizeCmd.Flags().DurationVar(&notarizeInterval, "interval", notarize.DefaultInterval, "Time between status checks")
	notarizeCmd.Flags().BoolVar(&notarizeStatus, "status", false, "Show the last recorded submission")
}

func runNotarize(cmd *cobra.Command, args []string) error {
	dir, err := workingDir()
	if err != nil {
		return err
	}
	s, err := openSession(dir, sessionOptions{Exclusive: !notarizeStatus})
	if err != nil {
		return err
	}
	defer s.Close()

	platform, _ := splitPlatform(args)
	if notarizeStatus {
		return showSubmission(s, controller.Normalize(platform), notarizeConfig)
	}
	return executeNotarize(cmd.Context(), s, platform, notarizeConfig, controller.NotarizeOptions{
		Wait:     notarizeWait,
		Timeout:  notarizeTimeout,
		Interval: notarizeInterval,
	})
}

func executeNotarize(ctx context.Context, s *session, platform, configName string, opts controller.NotarizeOptions) error {
	ctrl, err := s.controller(platform, configName, nil)
	if err != nil {
		return err
	}
	if err := ctrl.Notarize(ctx, opts); err != nil {
		return err
	}
	if opts.Wait {
		fmt.Printf("✓ Notarized and stapled %s\n", s.project().Name())
	}
	return nil
}

func showSubmission(s *session, platform, configName string) error {
	sub, err := s.ledger.LatestSubmission(platform, configName)
	if err != nil {
		return err
	}
	if sub == nil {
		fmt.Println("No notarization submissions recorded")
		return nil
	}
	fmt.Printf("Request:   %s\n", sub.RequestID)
	fmt.Printf("Status:    %s\n", sub.Status)
	fmt.Printf("Artifact:  %s\n", sub.Artifact)
	fmt.Printf("Submitted: %s\n", sub.SubmittedAt.Format(time.RFC3339))
	fmt.Printf("Updated:   %s\n", sub.UpdatedAt.Format(time.RFC3339))
	return nil
}
