package main

import (
	"fmt"
	"os"

	"github.com/cuemby/jobflow/pkg/jobstore"
	_ "github.com/cuemby/jobflow/pkg/jobstore/local"
	_ "github.com/cuemby/jobflow/pkg/jobstore/objectstore"
	"github.com/cuemby/jobflow/pkg/log"
	"github.com/cuemby/jobflow/pkg/worker"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "jobflow",
	Short:   "jobflow - crash-consistent job store and worker execution loop",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"jobflow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(storeCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

var workerCmd = &cobra.Command{
	Use:   "worker <moduleSearchDir> <jobStoreEndpoint> <jobStoreID>",
	Short: "Run the worker execution loop once against a single job",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		moduleSearchDir, endpoint, jobStoreID := args[0], args[1], args[2]
		return worker.Run(cmd.Context(), moduleSearchDir, endpoint, jobStoreID)
	},
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Administrative operations against a job store",
}

var storeInitCmd = &cobra.Command{
	Use:   "init <endpoint>",
	Short: "Create a fresh backing store at endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := jobstore.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return store.Close()
	},
}

var storeRecoverCmd = &cobra.Command{
	Use:   "recover <endpoint>",
	Short: "Run the recovery sweep standalone against an existing store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := jobstore.Open(ctx, args[0])
		if err != nil {
			return err
		}
		defer store.Close()
		// jobstore.Open already ran a sweep to reach this point; run a
		// second one so `store recover` also reports a confirmed
		// fixed point when invoked standalone after a crash.
		return jobstore.Sweep(ctx, store)
	},
}

var storeJobsCmd = &cobra.Command{
	Use:   "jobs <endpoint>",
	Short: "Enumerate job records for inspection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := jobstore.Open(ctx, args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.Jobs(ctx)
		if err != nil {
			return err
		}
		for _, r := range records {
			command := "<none>"
			if r.Command != nil {
				command = *r.Command
			}
			fmt.Printf("%s\tcommand=%s\tstack=%d\tpredecessorsFinished=%d/%d\n",
				r.JobStoreID, command, len(r.Stack), len(r.PredecessorsFinished), r.PredecessorNumber)
		}
		return nil
	},
}

func init() {
	storeCmd.AddCommand(storeInitCmd)
	storeCmd.AddCommand(storeRecoverCmd)
	storeCmd.AddCommand(storeJobsCmd)
}
