package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"soma/internal/app"
	"soma/internal/domain"
	"soma/internal/plot"
)

func parseMetrics(raw string) ([]domain.Metric, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []domain.Metric
	for _, part := range strings.Split(raw, ",") {
		m, err := domain.ParseMetric(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func newListCmd(e *env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "history"},
		Short:   "Show measurements with changes against the previous entry",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := e.store()
			if err != nil {
				return err
			}
			rows, err := app.NewProgressService(store).History(cmd.Context())
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(e.out, "no measurements yet; add one with `somactl add`")
				return nil
			}
			if limit > 0 && len(rows) > limit {
				rows = rows[:limit]
			}
			renderHistory(e.out, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n entries (0 for all)")
	return cmd
}

func newChartCmd(e *env) *cobra.Command {
	var (
		rangeFlag     string
		unit          string
		metricsFlag   string
		pngPath       string
		width, height int
	)
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Show the measurements inside a time range, oldest first",
		Example: `  somactl chart --range 1Y --unit lb
  somactl chart --range ALL --metrics weight,waist --png progress.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tr, err := domain.ParseTimeRange(rangeFlag)
			if err != nil {
				return err
			}
			metrics, err := parseMetrics(metricsFlag)
			if err != nil {
				return err
			}
			store, err := e.store()
			if err != nil {
				return err
			}
			data, err := app.NewProgressService(store).Chart(cmd.Context(), tr, unit)
			if err != nil {
				return err
			}

			if pngPath == "" {
				if len(data.Points) == 0 {
					fmt.Fprintf(e.out, "no measurements in range %s\n", tr)
					return nil
				}
				if len(metrics) == 0 {
					metrics = domain.Metrics
				}
				renderSeries(e.out, data.Points, metrics, data.Unit)
				return nil
			}

			var buf bytes.Buffer
			if err := plot.RenderPNG(&buf, data.Points, plot.Options{
				Title:   fmt.Sprintf("Progress (%s)", tr),
				Width:   width,
				Height:  height,
				Metrics: metrics,
				Unit:    data.Unit,
			}); err != nil {
				return err
			}
			if err := os.WriteFile(pngPath, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "wrote %s (%s, %d points)\n", pngPath, humanize.Bytes(uint64(buf.Len())), len(data.Points))
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&rangeFlag, "range", "r", string(domain.DefaultTimeRange), "time range: 1M, 3M, 6M, 1Y or ALL")
	fs.StringVar(&unit, "unit", domain.UnitKg, "weight unit: kg or lb")
	fs.StringVar(&metricsFlag, "metrics", "", "comma separated metrics to show (default all)")
	fs.StringVar(&pngPath, "png", "", "write a PNG line chart to this file instead of printing")
	fs.IntVar(&width, "width", 960, "PNG width in pixels")
	fs.IntVar(&height, "height", 480, "PNG height in pixels")
	return cmd
}

func newSummaryCmd(e *env) *cobra.Command {
	var metricsFlag string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the total change since the first measurement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			metrics, err := parseMetrics(metricsFlag)
			if err != nil {
				return err
			}
			store, err := e.store()
			if err != nil {
				return err
			}
			sum, err := app.NewProgressService(store).Summary(cmd.Context(), metrics...)
			if err != nil {
				return err
			}
			if sum == nil {
				fmt.Fprintln(e.out, "a summary needs at least two measurements")
				return nil
			}
			renderSummary(e.out, sum)
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsFlag, "metrics", "", "comma separated metrics (default weight,waist)")
	return cmd
}
