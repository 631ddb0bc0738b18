package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"soma/internal/adapter/remote"
	"soma/internal/adapter/snapshot"
	"soma/internal/domain"
)

const sessionFile = "session"

var errLocalOnly = errors.New("only available without --remote")

// env is the state shared by all subcommands of one invocation.
type env struct {
	out, errOut io.Writer

	dataDir        string
	remoteURL      string
	verbose        bool
	recoverCorrupt bool

	logger *zap.Logger
	local  *snapshot.Store
	slot   *snapshot.FileSlot
	client *remote.Client
}

func defaultDataDir() string {
	if v := os.Getenv("SOMA_DATA_DIR"); v != "" {
		return v
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "soma")
	}
	return ".soma"
}

// execute runs one somactl invocation and releases the store afterwards,
// whether or not the command failed.
func execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	e := &env{out: out, errOut: errOut, logger: zap.NewNop()}
	root := newRootCmd(e)
	root.SetArgs(args)
	root.SetIn(in)

	err := root.ExecuteContext(ctx)
	if cerr := e.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "somactl",
		Short:         "Track body measurements",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if e.verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				e.logger = l
			}
			return nil
		},
	}
	root.SetOut(e.out)
	root.SetErr(e.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&e.dataDir, "data-dir", defaultDataDir(), "directory for the local snapshot and session token (env SOMA_DATA_DIR)")
	pf.StringVar(&e.remoteURL, "remote", os.Getenv("SOMA_REMOTE"), "soma server URL; empty uses the local store (env SOMA_REMOTE)")
	pf.BoolVarP(&e.verbose, "verbose", "v", false, "log diagnostics to stderr")
	pf.BoolVar(&e.recoverCorrupt, "recover-corrupt", false, "start empty when the local snapshot cannot be read")

	root.AddCommand(
		newAddCmd(e),
		newEditCmd(e),
		newRmCmd(e),
		newListCmd(e),
		newChartCmd(e),
		newSummaryCmd(e),
		newResetCmd(e),
		newStatusCmd(e),
		newRegisterCmd(e),
		newLoginCmd(e),
		newLogoutCmd(e),
		newWhoamiCmd(e),
	)
	return root
}

func (e *env) isRemote() bool { return e.remoteURL != "" }

// store opens the backend selected by --remote.
func (e *env) store() (domain.MeasurementStore, error) {
	if e.isRemote() {
		return e.remote()
	}
	return e.snapshot()
}

func (e *env) snapshot() (*snapshot.Store, error) {
	if e.local != nil {
		return e.local, nil
	}
	slot, err := snapshot.NewFileSlot(e.dataDir)
	if err != nil {
		return nil, err
	}
	e.slot = slot
	e.local = snapshot.New(slot,
		snapshot.WithLogger(e.logger.Named("snapshot")),
		snapshot.WithRecoverCorrupt(e.recoverCorrupt),
	)
	return e.local, nil
}

func (e *env) remote() (*remote.Client, error) {
	if e.client != nil {
		return e.client, nil
	}
	if !e.isRemote() {
		return nil, errors.New("requires --remote")
	}
	token, err := e.readToken()
	if err != nil {
		return nil, err
	}
	c, err := remote.New(e.remoteURL,
		remote.WithLogger(e.logger.Named("remote")),
		remote.WithSession(token),
	)
	if err != nil {
		return nil, err
	}
	e.client = c
	return c, nil
}

func (e *env) tokenPath() string { return filepath.Join(e.dataDir, sessionFile) }

func (e *env) readToken() (string, error) {
	b, err := os.ReadFile(e.tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (e *env) writeToken(token string) error {
	if err := os.MkdirAll(e.dataDir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(e.tokenPath(), []byte(token+"\n"), 0o600)
}

func (e *env) clearToken() error {
	err := os.Remove(e.tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (e *env) close() error {
	var err error
	if e.local != nil {
		if perr := e.local.LastPersistError(); perr != nil {
			fmt.Fprintln(e.errOut, "warning: changes were not saved:", perr)
		}
		err = e.local.Close()
		e.local = nil
	}
	_ = e.logger.Sync()
	return err
}
