package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jwtly10/trixplateau/internal/backtest"
	"github.com/jwtly10/trixplateau/internal/config"
	"github.com/jwtly10/trixplateau/internal/export"
	"github.com/jwtly10/trixplateau/internal/grid"
	"github.com/jwtly10/trixplateau/internal/montecarlo"
	"github.com/jwtly10/trixplateau/internal/multiasset"
	"github.com/jwtly10/trixplateau/internal/oanda"
	"github.com/jwtly10/trixplateau/internal/pipeline"
	"github.com/jwtly10/trixplateau/internal/plateau"
	"github.com/jwtly10/trixplateau/internal/prices"
	"github.com/jwtly10/trixplateau/internal/strategy"
	"github.com/jwtly10/trixplateau/internal/tradingview"
)

func (a *app) outputDir(name string) (*export.Dir, error) {
	return export.NewDir(filepath.Join(a.cfg.Run.OutputDir, name))
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [prices.csv]",
		Short: "Grid, plateau ranking, walk-forward, stress test and verdict for one symbol",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			symbol, bars, err := loadBars(ctx, a.cfg, args)
			if err != nil {
				return err
			}

			rep, err := pipeline.Run(ctx, a.cfg, symbol, bars)
			if err != nil {
				return err
			}
			dir, err := a.outputDir(symbol)
			if err != nil {
				return err
			}
			if err := rep.Export(dir); err != nil {
				return err
			}
			if err := tradingview.DumpPineScript(os.Stdout, symbol, rep.Selection.Triple, rep.Base.Trades); err != nil {
				return err
			}

			fmt.Println(renderReport(rep, dir.RunID))
			return nil
		},
	}
}

func (a *app) gridCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grid [prices.csv]",
		Short: "Evaluate the full parameter grid and rank plateaus",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			symbol, bars, err := loadBars(ctx, a.cfg, args)
			if err != nil {
				return err
			}

			g, err := grid.Evaluate(ctx, bars, a.cfg.Grid, a.cfg.Backtest(), grid.Options{Workers: a.cfg.Run.Workers, Symbol: symbol})
			if err != nil {
				return err
			}
			ranked, err := plateau.Score(g, a.cfg.Plateau)
			if err != nil {
				return err
			}

			dir, err := a.outputDir(symbol)
			if err != nil {
				return err
			}
			if err := dir.Write("grid.csv", func(w io.Writer) error { return export.WriteGrid(w, dir.RunID, symbol, g) }); err != nil {
				return err
			}
			if err := dir.Write("plateaus.csv", func(w io.Writer) error { return export.WritePlateaus(w, dir.RunID, symbol, ranked) }); err != nil {
				return err
			}

			fmt.Println(renderGrid(symbol, g, ranked))
			return nil
		},
	}
}

func (a *app) stressCmd() *cobra.Command {
	var tripleFlag string
	cmd := &cobra.Command{
		Use:   "stress [prices.csv]",
		Short: "Monte Carlo stress test and trade bootstrap of one triple",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := strategy.ParseTriple(tripleFlag)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			symbol, bars, err := loadBars(ctx, a.cfg, args)
			if err != nil {
				return err
			}

			bt := a.cfg.Backtest()
			base, err := backtest.NewEngine(bars, bt).Run(t, backtest.Perturbation{})
			if err != nil {
				return fmt.Errorf("simulating %s: %w", t, err)
			}
			rep, err := montecarlo.StressTest(ctx, bars, t, bt, a.cfg.MonteCarlo, montecarlo.Options{Workers: a.cfg.Run.Workers, Symbol: symbol})
			if err != nil {
				return err
			}
			var boot *montecarlo.Bootstrap
			if b, err := montecarlo.BootstrapTrades(base.TradeReturns(), a.cfg.MonteCarlo.BootstrapRuns, a.cfg.MonteCarlo.Seed); err == nil {
				boot = &b
			}

			dir, err := a.outputDir(symbol)
			if err != nil {
				return err
			}
			if err := dir.Write("stress_runs.csv", func(w io.Writer) error { return export.WriteStressRuns(w, dir.RunID, symbol, rep.Runs) }); err != nil {
				return err
			}
			if err := dir.Write("stress_summary.csv", func(w io.Writer) error {
				return export.WriteStressSummary(w, dir.RunID, symbol, rep.Summary)
			}); err != nil {
				return err
			}
			if err := tradingview.DumpPineScript(os.Stdout, symbol, t, base.Trades); err != nil {
				return err
			}

			fmt.Println(renderStress(symbol, base.Metrics, rep, boot))
			return nil
		},
	}
	cmd.Flags().StringVarP(&tripleFlag, "triple", "t", "", "Triple to stress as trigger/trend/shift, e.g. 5/21/7")
	_ = cmd.MarkFlagRequired("triple")
	return cmd
}

func (a *app) multiAssetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "multi-asset [glob]",
		Short: "Grid and plateau search on every price file matching a glob",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := a.cfg.Data.Glob
			if len(args) > 0 {
				pattern = args[0]
			}
			if pattern == "" {
				return fmt.Errorf("no glob: pass one or set data.glob")
			}
			assets, err := loadAssets(a.cfg, pattern)
			if err != nil {
				return err
			}

			rep, err := multiasset.Evaluate(cmd.Context(), assets, multiasset.Config{
				Ranges:   a.cfg.Grid,
				Plateau:  a.cfg.Plateau,
				Backtest: a.cfg.Backtest(),
				Workers:  a.cfg.Run.Workers,
			})
			if err != nil {
				return err
			}

			dir, err := a.outputDir("multi_asset")
			if err != nil {
				return err
			}
			if err := dir.Write("multi_asset.csv", func(w io.Writer) error { return export.WriteMultiAsset(w, dir.RunID, rep) }); err != nil {
				return err
			}

			fmt.Println(renderMultiAsset(rep))
			return nil
		},
	}
}

func (a *app) fetchCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download OANDA candles for data.symbol into a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			cfg.Data.Source = config.SourceOanda
			symbol, bars, err := loadBars(cmd.Context(), &cfg, nil)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join("data", fmt.Sprintf("%s_%s.csv", symbol, cfg.Data.Granularity))
			}
			if err := prices.Save(out, bars); err != nil {
				return err
			}

			fmt.Printf("Saved %d bars of %s to %s\n", len(bars), symbol, out)
			if ppy, err := oanda.CandlestickGranularity(cfg.Data.Granularity).PeriodsPerYear(); err == nil && ppy != cfg.PeriodsPerYear {
				fmt.Printf("Note: %s bars annualise with periods_per_year: %g (configured %g)\n", cfg.Data.Granularity, ppy, cfg.PeriodsPerYear)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "file", "", "Destination CSV (default data/<symbol>_<granularity>.csv)")
	return cmd
}
