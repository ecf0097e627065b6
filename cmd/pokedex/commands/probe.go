package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check whether the remote API is reachable",
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.service.ProbeConnectivity(ctx) {
		fmt.Printf("online: %s\n", cfg.APIBaseURL)
	} else {
		fmt.Printf("offline: %s unreachable within %s\n", cfg.APIBaseURL, cfg.ProbeTimeout)
	}
	return nil
}
