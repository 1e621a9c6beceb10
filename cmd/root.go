package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "filedrop",
	Short: "Ephemeral file drop service",
	Long:  `A file drop service with user accounts. Uploads are exchanged for a 6 digit code that stays valid for seven days.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
