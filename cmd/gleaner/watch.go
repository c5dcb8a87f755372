package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrelworks/gleaner/internal/watch"
)

var watchAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard over the admin API",
	Long:  "Terminal dashboard showing governor health, the current session, and the quality report. The daemon must be running.",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "admin API address (default: from config)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	addr := watchAddr
	if addr == "" {
		cfg, err := loadConfig(cfgPath)
		if err != nil {
			setupLogger(debug).Error("failed to load config", "error", err)
			os.Exit(1)
		}
		addr = cfg.AdminAddr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	if !strings.HasPrefix(addr, "http") {
		addr = "http://" + addr
	}

	return watch.Run(addr)
}
