package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"cvrpsolver/internal/config"
	"cvrpsolver/internal/opt"
	"cvrpsolver/internal/store"
	"cvrpsolver/internal/vrplib"
)

func runSolve(cmd *cobra.Command, opts *solveOptions) error {
	out := cmd.OutOrStdout()

	path := opts.instance
	if path == "" {
		paths, err := vrplib.ListInstances(opts.dataDir)
		if err != nil {
			return err
		}
		if path, err = selectInstance(cmd.InOrStdin(), out, paths); err != nil {
			return err
		}
	}

	cfg, err := loadConfig(opts.config, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		cfg.General.RandomSeed = opts.seed
	}
	if cmd.Flags().Changed("time-limit") {
		if opts.timeLimit < 0 {
			return fmt.Errorf("--time-limit must be >= 0")
		}
		cfg.General.TimeLimitSeconds = opts.timeLimit
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}

	inst, err := vrplib.ReadInstance(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Instance %s: %d customers, capacity %d\n", inst.Name, inst.NumCustomers(), inst.Capacity)

	var obs opt.Observer
	if opts.progress {
		bar := newSpinner(cmd.ErrOrStderr(), inst.Name)
		obs = opt.ObserverFunc(func(iteration int, cost float64) {
			bar.Describe(fmt.Sprintf("%s: best %.2f at iteration %d", inst.Name, cost, iteration))
			_ = bar.Add(1)
		})
		defer func() { _ = bar.Finish() }()
	}

	res, err := opt.Solve(inst, params, obs)
	if err != nil {
		return err
	}
	report(out, res)

	var gap *float64
	ref, err := vrplib.ReadSolution(vrplib.ReferencePath(path))
	if err != nil {
		log.Printf("[SOLVE] no reference solution for %s: %v", inst.Name, err)
	} else if g, ok := opt.GapPercent(res.Best.Cost, ref.Cost); ok {
		gap = &g
		verdict := "within"
		if g > cfg.Quality.TargetGapPercentage {
			verdict = "above"
		}
		fmt.Fprintf(out, "Reference cost %.2f, gap %.2f%% (%s target %.2f%%)\n", ref.Cost, g, verdict, cfg.Quality.TargetGapPercentage)
	}

	if !opts.noSave {
		saved, err := vrplib.SaveSolution(opts.outDir, path, res.Best.Routes, res.Best.Cost)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Solution saved to %s\n", saved)
	}
	if opts.dbPath != "" {
		id, err := recordRun(opts.dbPath, inst.Name, params.Seed, res, ref.Cost, gap)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Run recorded as %s\n", id)
	}
	return nil
}

// loadConfig reads path, falling back to the built-in defaults when the
// default file is absent.
func loadConfig(path string, explicit bool) (config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		log.Printf("[SOLVE] %s not found, using built-in defaults", path)
		return config.Default(), nil
	}
	return config.Config{}, err
}

func newSpinner(w io.Writer, name string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(name+": solving"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func report(out io.Writer, res opt.Result) {
	fmt.Fprintf(out, "Initial cost:   %.2f (%d routes)\n", res.Initial.Cost, len(res.Initial.Routes))
	fmt.Fprintf(out, "After VND:      %.2f\n", res.AfterVND.Cost)
	fmt.Fprintf(out, "Final cost:     %.2f (%d routes)\n", res.Best.Cost, len(res.Best.Routes))
	fmt.Fprintf(out, "Stopped by %s after %d iterations in %v\n", res.Stop, res.Metrics.Iterations, res.Elapsed.Round(time.Millisecond))
	for i, r := range res.Best.Routes {
		fmt.Fprintf(out, "Route #%d:", i+1)
		for _, c := range r {
			fmt.Fprintf(out, " %d", c)
		}
		fmt.Fprintln(out)
	}
}

func recordRun(dbPath, name string, seed int64, res opt.Result, refCost float64, gap *float64) (string, error) {
	db, err := store.NewSQLite(dbPath)
	if err != nil {
		return "", err
	}
	defer db.Close()
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		return "", err
	}
	finished := time.Now().UTC()
	run := store.Run{
		InstanceName: name,
		Status:       store.StatusSucceeded,
		Seed:         seed,
		Cost:         res.Best.Cost,
		InitialCost:  res.Initial.Cost,
		Routes:       res.Best.Routes,
		BestTrace:    res.BestTrace,
		IterTrace:    res.IterTrace,
		GapPercent:   gap,
		StopReason:   string(res.Stop),
		FinishedAt:   &finished,
	}
	if gap != nil {
		run.OptimalCost = &refCost
	}
	if b, err := json.Marshal(res.Metrics); err == nil {
		run.Metrics = b
	}
	created, err := db.CreateRun(ctx, run)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}
