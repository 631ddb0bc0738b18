package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"soma/internal/adapter/remote"
	"soma/internal/adapter/snapshot"
)

func newResetCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every local measurement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.isRemote() {
				return fmt.Errorf("reset: %w", errLocalOnly)
			}
			if !yes {
				return errors.New("reset deletes all local measurements; pass --yes to confirm")
			}
			store, err := e.snapshot()
			if err != nil {
				return err
			}
			if err := store.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(e.out, "local store reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all local data")
	return cmd
}

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which store is in use and its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if e.isRemote() {
				c, err := e.remote()
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "store:   remote %s\n", e.remoteURL)
				me, err := c.Me(ctx)
				switch {
				case errors.Is(err, remote.ErrUnauthorized):
					fmt.Fprintln(e.out, "user:    not logged in")
					return nil
				case err != nil:
					return err
				}
				fmt.Fprintf(e.out, "user:    %s\n", me.Username)
				items, err := c.List(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "entries: %d\n", len(items))
				return nil
			}

			store, err := e.snapshot()
			if err != nil {
				return err
			}
			items, err := store.List(ctx)
			if err != nil {
				return err
			}
			raw, _, err := e.slot.Get(ctx, snapshot.DefaultKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "store:    local %s\n", e.slot.Dir())
			fmt.Fprintf(e.out, "state:    %s\n", store.State())
			fmt.Fprintf(e.out, "entries:  %d\n", len(items))
			fmt.Fprintf(e.out, "snapshot: %s\n", humanize.Bytes(uint64(len(raw))))
			return nil
		},
	}
}
