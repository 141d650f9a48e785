package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "pocore-workload",
	Short: "Exercise PoCore's memory subsystem",
	Long:  `pocore-workload drives mem.Context, mem.Pool, and mem.Error through configurable allocation workloads, for manual testing and benchmarking outside the package's own test suite.`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr at debug level")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	rootCmd.AddCommand(runCmd)
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
