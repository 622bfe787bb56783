package main

import (
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	datadir   = btcutil.AppDataDir("hwsign-cli", false)
	statePath = filepath.Join(datadir, "state.json")

	rootCmd = &cobra.Command{
		Use:   "hwsign",
		Short: "CLI for hwsign daemon",
		Long: "This CLI lets you drive signing flows on a hardware device through " +
			"a running hwsign daemon",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if _, err := os.Stat(datadir); os.IsNotExist(err) {
				os.MkdirAll(datadir, os.ModeDir|0755)
			}
		},
		SilenceUsage: true,
		Version:      formatVersion(),
	}
)

func init() {
	rootCmd.AddCommand(configCmd, signCmd, watchCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printErr(err)
		os.Exit(1)
	}
}
