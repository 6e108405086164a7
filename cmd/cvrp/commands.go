package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cvrpsolver/internal/buildinfo"
)

// solveOptions holds the flags of the solve command.
type solveOptions struct {
	instance  string
	config    string
	timeLimit float64
	seed      int64
	noSave    bool
	outDir    string
	dbPath    string
	progress  bool
	dataDir   string
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cvrp",
		Short: "Solve Capacitated Vehicle Routing Problem instances",
		Long: `cvrp builds a nearest-neighbor solution for a VRPLIB instance and
improves it with variable neighborhood descent and tabu-filtered simulated annealing.`,
		SilenceUsage: true,
	}

	opts := &solveOptions{}
	solveCmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve one instance and report its cost and routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, opts)
		},
	}
	f := solveCmd.Flags()
	f.StringVarP(&opts.instance, "instance", "i", "", "instance file (.vrp or Solomon .txt); prompts when empty")
	f.StringVarP(&opts.config, "config", "c", "config.yaml", "solver configuration file")
	f.Float64Var(&opts.timeLimit, "time-limit", 0, "wall-clock limit in seconds, overrides the config")
	f.Int64Var(&opts.seed, "seed", 0, "random seed, overrides the config")
	f.BoolVar(&opts.noSave, "no-save", false, "do not write the computed solution")
	f.StringVarP(&opts.outDir, "out", "o", "solutions", "directory for computed .sol files")
	f.StringVar(&opts.dbPath, "db", "", "SQLite database to record the run in")
	f.BoolVar(&opts.progress, "progress", false, "show a progress spinner on stderr")
	f.StringVar(&opts.dataDir, "data", "data", "directory searched for instances when --instance is empty")

	var listDir string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the .vrp instances under a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, listDir)
		},
	}
	listCmd.Flags().StringVar(&listDir, "data", "data", "instance directory")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}

	rootCmd.AddCommand(solveCmd, listCmd, versionCmd)
	return rootCmd
}
