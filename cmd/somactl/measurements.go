package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"soma/internal/app"
	"soma/internal/domain"
)

// addMetricFlags binds one float flag per metric onto m.
func addMetricFlags(fs *pflag.FlagSet, m *domain.Measurement) {
	fs.Float64Var(&m.Weight, "weight", 0, "weight in kg")
	fs.Float64Var(&m.Chest, "chest", 0, "chest in cm")
	fs.Float64Var(&m.Waist, "waist", 0, "waist in cm")
	fs.Float64Var(&m.Arm, "arm", 0, "arm in cm")
	fs.Float64Var(&m.Leg, "leg", 0, "leg in cm")
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func newAddCmd(e *env) *cobra.Command {
	var m domain.Measurement
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a measurement",
		Example: `  somactl add --weight 80 --chest 100 --waist 90 --arm 30 --leg 55
  somactl add --date 2024-01-01 --weight 80`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := e.store()
			if err != nil {
				return err
			}
			created, err := app.NewMeasurementService(store).Add(cmd.Context(), m)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "added #%d (%s)\n", created.ID, created.Date)
			return nil
		},
	}
	cmd.Flags().StringVar(&m.Date, "date", time.Now().Format(domain.DateLayout), "measurement date (YYYY-MM-DD)")
	addMetricFlags(cmd.Flags(), &m)
	return cmd
}

func newEditCmd(e *env) *cobra.Command {
	var patch domain.Measurement
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a measurement",
		Long:  "Change fields of a measurement. Fields without a flag keep their stored value.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			store, err := e.store()
			if err != nil {
				return err
			}
			svc := app.NewMeasurementService(store)
			items, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}

			var current *domain.Measurement
			for i := range items {
				if items[i].ID == id {
					current = &items[i]
					break
				}
			}
			if current == nil {
				return fmt.Errorf("#%d: %w", id, domain.ErrMeasurementNotFound)
			}

			fs := cmd.Flags()
			if fs.Changed("date") {
				current.Date = patch.Date
			}
			for _, metric := range []struct {
				name string
				dst  *float64
				src  float64
			}{
				{"weight", &current.Weight, patch.Weight},
				{"chest", &current.Chest, patch.Chest},
				{"waist", &current.Waist, patch.Waist},
				{"arm", &current.Arm, patch.Arm},
				{"leg", &current.Leg, patch.Leg},
			} {
				if fs.Changed(metric.name) {
					*metric.dst = metric.src
				}
			}

			if err := svc.Update(cmd.Context(), *current); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "updated #%d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&patch.Date, "date", "", "measurement date (YYYY-MM-DD)")
	addMetricFlags(cmd.Flags(), &patch)
	return cmd
}

func newRmCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"remove"},
		Short:   "Delete measurements",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := parseID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			store, err := e.store()
			if err != nil {
				return err
			}
			svc := app.NewMeasurementService(store)
			var errs []error
			for _, id := range ids {
				if err := svc.Remove(cmd.Context(), id); err != nil {
					errs = append(errs, fmt.Errorf("#%d: %w", id, err))
					continue
				}
				fmt.Fprintf(e.out, "removed #%d\n", id)
			}
			return errors.Join(errs...)
		},
	}
}
