// Package snapshot is a single-user measurement store backed by an in-memory
// SQLite database. After every mutation the whole database image is
// serialized, base64 encoded and written to a Slot; on first use the image is
// restored from that slot.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	sqlite "modernc.org/sqlite"

	"soma/internal/domain"
)

// DefaultKey is the slot key holding the encoded database image.
const DefaultKey = "body_track_sqlite_db_v1"

const schema = `CREATE TABLE IF NOT EXISTS measurements (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	date   TEXT NOT NULL,
	weight REAL,
	waist  REAL,
	chest  REAL,
	arm    REAL,
	leg    REAL
);`

var (
	// ErrEngineUnavailable means the SQL engine could not be started.
	ErrEngineUnavailable = errors.New("snapshot: sql engine unavailable")
	// ErrCorruptSnapshot means the slot holds a value that is not a
	// loadable database image.
	ErrCorruptSnapshot = errors.New("snapshot: stored snapshot is corrupt")
)

// State is the lifecycle state of a Store.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithLogger sets the logger used for persistence diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRecoverCorrupt makes Initialize start from an empty database when the
// stored image cannot be loaded, instead of returning ErrCorruptSnapshot.
func WithRecoverCorrupt(enabled bool) Option {
	return func(s *Store) { s.recoverCorrupt = enabled }
}

// WithEngine replaces the function that opens the in-memory database.
func WithEngine(open func() (*sql.DB, error)) Option {
	return func(s *Store) { s.openEngine = open }
}

// Store implements domain.MeasurementStore. All operations initialize the
// store lazily; concurrent first calls share one initialization.
type Store struct {
	slot           Slot
	key            string
	logger         *zap.Logger
	recoverCorrupt bool
	openEngine     func() (*sql.DB, error)

	group singleflight.Group
	state atomic.Int32

	mu             sync.Mutex // guards db and lastPersistErr, serializes mutations
	db             *sql.DB
	lastPersistErr error
}

var _ domain.MeasurementStore = (*Store)(nil)

// New returns an uninitialized Store persisting to slot.
func New(slot Slot, opts ...Option) *Store {
	s := &Store{
		slot:       slot,
		key:        DefaultKey,
		logger:     zap.NewNop(),
		openEngine: OpenMemoryEngine,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OpenMemoryEngine opens a private in-memory SQLite database. The pool is
// pinned to a single connection; a second connection would see a different
// empty database.
func OpenMemoryEngine() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// State reports the current lifecycle state.
func (s *Store) State() State { return State(s.state.Load()) }

// LastPersistError returns the error of the most recent failed snapshot
// write, or nil if the last write succeeded. A non-nil value means the
// in-memory data has diverged from the slot.
func (s *Store) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPersistErr
}

// Initialize loads the stored image or creates an empty database. It is safe
// to call repeatedly and concurrently.
func (s *Store) Initialize(ctx context.Context) error {
	if s.State() == StateReady {
		return nil
	}
	// Initialization outlives the caller that starts it; every waiter shares
	// its result.
	_, err, _ := s.group.Do("init", func() (any, error) {
		return nil, s.initialize(context.WithoutCancel(ctx))
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (s *Store) initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateReady {
		return nil
	}
	s.state.Store(int32(StateInitializing))

	db, outcome, err := s.load(ctx)
	if err != nil {
		s.state.Store(int32(StateUninitialized))
		initTotal.WithLabelValues("failed").Inc()
		return err
	}
	s.db = db
	s.state.Store(int32(StateReady))
	initTotal.WithLabelValues(outcome).Inc()
	s.logger.Debug("snapshot store ready", zap.String("key", s.key), zap.String("outcome", outcome))
	return nil
}

func (s *Store) load(ctx context.Context) (*sql.DB, string, error) {
	db, err := s.startEngine(ctx)
	if err != nil {
		return nil, "", err
	}

	encoded, found, err := s.slot.Get(ctx, s.key)
	if err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("snapshot: read slot: %w", err)
	}

	if found {
		err := restore(ctx, db, encoded)
		if err == nil {
			return db, "restored", nil
		}
		_ = db.Close()
		if !errors.Is(err, ErrCorruptSnapshot) || !s.recoverCorrupt {
			return nil, "", err
		}
		s.logger.Warn("discarding unreadable snapshot", zap.String("key", s.key), zap.Error(err))
		if db, err = s.startEngine(ctx); err != nil {
			return nil, "", err
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("snapshot: create schema: %w", err)
	}
	s.persistLocked(ctx, db)
	if found {
		return db, "recovered", nil
	}
	return db, "fresh", nil
}

func (s *Store) startEngine(ctx context.Context) (*sql.DB, error) {
	db, err := s.openEngine()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	// The image is moved in and out through the driver connection, so a
	// driver without that capability is as good as no engine.
	if err := withImageConn(ctx, db, func(imageConn) error { return nil }); err != nil {
		_ = db.Close()
		if errors.Is(err, ErrEngineUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	return db, nil
}

// restore loads an encoded image into db. The image is staged in a temporary
// file and copied page by page with the online backup API, so the engine owns
// every page it ends up with.
func restore(ctx context.Context, db *sql.DB, encoded string) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: decode: %w", ErrCorruptSnapshot, err)
	}
	path, err := stageImage(raw)
	if err != nil {
		return fmt.Errorf("snapshot: stage image: %w", err)
	}
	defer os.Remove(path) //nolint:errcheck

	err = withImageConn(ctx, db, func(c imageConn) error { return copyFrom(c, path) })
	if errors.Is(err, ErrEngineUnavailable) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: restore: %w", ErrCorruptSnapshot, err)
	}
	// An image from an older build may predate the table; one that is not a
	// database at all fails here.
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements;`).Scan(&n); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	return nil
}

func stageImage(raw []byte) (string, error) {
	f, err := os.CreateTemp("", "soma-snapshot-*.db")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func copyFrom(c imageConn, path string) error {
	b, err := c.NewRestore(path)
	if err != nil {
		return err
	}
	for more := true; more; {
		if more, err = b.Step(-1); err != nil {
			_ = b.Finish()
			return err
		}
	}
	return b.Finish()
}

// imageConn is the part of the sqlite driver connection used to move whole
// database images. Serialize copies the pages out; restores go through the
// backup API.
type imageConn interface {
	Serialize() ([]byte, error)
	NewRestore(srcURI string) (*sqlite.Backup, error)
}

func withImageConn(ctx context.Context, db *sql.DB, fn func(imageConn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	return conn.Raw(func(dc any) error {
		c, ok := dc.(imageConn)
		if !ok {
			return fmt.Errorf("%w: driver connection %T cannot copy images", ErrEngineUnavailable, dc)
		}
		return fn(c)
	})
}

// persistLocked writes the current image to the slot. Failures are logged and
// recorded but never returned: the mutation already happened in memory.
func (s *Store) persistLocked(ctx context.Context, db *sql.DB) {
	var raw []byte
	err := withImageConn(ctx, db, func(c imageConn) error {
		var err error
		raw, err = c.Serialize()
		return err
	})
	if err == nil {
		err = s.slot.Set(ctx, s.key, base64.StdEncoding.EncodeToString(raw))
	}
	s.lastPersistErr = err
	if err != nil {
		persistTotal.WithLabelValues("error").Inc()
		s.logger.Error("snapshot persist failed",
			zap.String("key", s.key),
			zap.String("size", humanize.Bytes(uint64(len(raw)))),
			zap.Error(err),
		)
		return
	}
	persistTotal.WithLabelValues("ok").Inc()
	snapshotBytes.Set(float64(len(raw)))
	s.logger.Debug("snapshot persisted", zap.String("key", s.key), zap.String("size", humanize.Bytes(uint64(len(raw)))))
}

// acquire initializes the store if needed and returns holding mu.
func (s *Store) acquire(ctx context.Context) error {
	for {
		if err := s.Initialize(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		if s.db != nil {
			return nil
		}
		// Reset or Close ran between Initialize and Lock.
		s.mu.Unlock()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// List returns every measurement, newest date first. Rows sharing a date are
// ordered by descending id.
func (s *Store) List(ctx context.Context) ([]domain.Measurement, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, weight, waist, chest, arm, leg FROM measurements ORDER BY date DESC, id DESC;`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.Measurement, 0)
	for rows.Next() {
		var (
			m                              domain.Measurement
			weight, waist, chest, arm, leg sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &m.Date, &weight, &waist, &chest, &arm, &leg); err != nil {
			return nil, fmt.Errorf("snapshot: scan: %w", err)
		}
		m.Weight = weight.Float64
		m.Waist = waist.Float64
		m.Chest = chest.Float64
		m.Arm = arm.Float64
		m.Leg = leg.Float64
		out = append(out, m)
	}
	return out, rows.Err()
}

// Add inserts m, ignoring m.ID, and returns the assigned id.
func (s *Store) Add(ctx context.Context, m domain.Measurement) (int64, error) {
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO measurements (date, weight, waist, chest, arm, leg) VALUES (?, ?, ?, ?, ?, ?);`,
		m.Date, m.Weight, m.Waist, m.Chest, m.Arm, m.Leg)
	if err != nil {
		return 0, fmt.Errorf("snapshot: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("snapshot: insert id: %w", err)
	}
	s.persistLocked(ctx, s.db)
	return id, nil
}

// Update overwrites every field of the measurement with id m.ID.
func (s *Store) Update(ctx context.Context, m domain.Measurement) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE measurements SET date = ?, weight = ?, waist = ?, chest = ?, arm = ?, leg = ? WHERE id = ?;`,
		m.Date, m.Weight, m.Waist, m.Chest, m.Arm, m.Leg, m.ID)
	if err != nil {
		return fmt.Errorf("snapshot: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("snapshot: update: %w", err)
	}
	if n == 0 {
		return domain.ErrMeasurementNotFound
	}
	s.persistLocked(ctx, s.db)
	return nil
}

// Remove deletes the measurement with the given id. Removing an id that does
// not exist succeeds.
func (s *Store) Remove(ctx context.Context, id int64) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM measurements WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("snapshot: delete: %w", err)
	}
	s.persistLocked(ctx, s.db)
	return nil
}

// Reset deletes the stored image, discards the open database and
// initializes a fresh, empty one.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	if err := s.slot.Remove(ctx, s.key); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("snapshot: reset: %w", err)
	}
	s.closeLocked()
	s.mu.Unlock()

	s.logger.Info("snapshot store reset", zap.String("key", s.key))
	return s.Initialize(ctx)
}

// Close releases the database. A later call re-initializes from the slot.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Store) closeLocked() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	s.lastPersistErr = nil
	s.state.Store(int32(StateUninitialized))
	return err
}
