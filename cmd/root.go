package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "referral",
	Short: "Referral tracking microservice",
	Long:  `A referral tracking microservice providing signup with referral codes, token authentication, and referral code management via HTTP, with gRPC health checks.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
