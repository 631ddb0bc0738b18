package snapshot_test

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"soma/internal/adapter/snapshot"
	"soma/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStore(t *testing.T, slot snapshot.Slot, opts ...snapshot.Option) *snapshot.Store {
	t.Helper()
	s := snapshot.New(slot, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// reload opens a second store over the same slot and lists its contents.
func reload(t *testing.T, slot snapshot.Slot) []domain.Measurement {
	t.Helper()
	s := snapshot.New(slot)
	defer s.Close() //nolint:errcheck
	got, err := s.List(context.Background())
	require.NoError(t, err)
	return got
}

func TestStore_LazyInitialize(t *testing.T) {
	ctx := context.Background()
	slot := snapshot.NewMemorySlot()
	s := newStore(t, slot)

	require.Equal(t, snapshot.StateUninitialized, s.State())
	got, err := s.List(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
	require.Equal(t, snapshot.StateReady, s.State())

	// A fresh store writes its empty image right away.
	_, found, err := slot.Get(ctx, snapshot.DefaultKey)
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, s.Initialize(ctx))
}

func TestStore_AddListOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, snapshot.NewMemorySlot())

	id1, err := s.Add(ctx, domain.Measurement{Date: "2024-01-01", Weight: 80, Waist: 90})
	require.NoError(t, err)
	id2, err := s.Add(ctx, domain.Measurement{Date: "2024-02-01", Weight: 78, Waist: 88})
	require.NoError(t, err)
	id3, err := s.Add(ctx, domain.Measurement{Date: "2024-01-01", Weight: 79})
	require.NoError(t, err)
	require.Less(t, id1, id2)
	require.Less(t, id2, id3)

	got, err := s.List(ctx)
	require.NoError(t, err)
	want := []domain.Measurement{
		{ID: id2, Date: "2024-02-01", Weight: 78, Waist: 88},
		{ID: id3, Date: "2024-01-01", Weight: 79},
		{ID: id1, Date: "2024-01-01", Weight: 80, Waist: 90},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_Durability(t *testing.T) {
	ctx := context.Background()
	slot := snapshot.NewMemorySlot()
	s := newStore(t, slot)

	id, err := s.Add(ctx, domain.Measurement{Date: "2024-01-01", Weight: 80, Chest: 100, Waist: 90, Arm: 30, Leg: 55})
	require.NoError(t, err)
	mem, err := s.List(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(mem, reload(t, slot)); diff != "" {
		t.Errorf("after add (-mem +reloaded):\n%s", diff)
	}

	require.NoError(t, s.Update(ctx, domain.Measurement{ID: id, Date: "2024-01-02", Weight: 79.5}))
	mem, err = s.List(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(mem, reload(t, slot)); diff != "" {
		t.Errorf("after update (-mem +reloaded):\n%s", diff)
	}
	require.Equal(t, 0.0, mem[0].Chest)

	require.NoError(t, s.Remove(ctx, id))
	require.Empty(t, reload(t, slot))
}

func TestStore_WeightLossScenario(t *testing.T) {
	ctx := context.Background()
	slot := snapshot.NewMemorySlot()
	s := newStore(t, slot)

	_, err := s.Add(ctx, domain.Measurement{Date: "2024-01-01", Weight: 80, Waist: 90})
	require.NoError(t, err)
	_, err = s.Add(ctx, domain.Measurement{Date: "2024-02-01", Weight: 78, Waist: 88})
	require.NoError(t, err)

	series := reload(t, slot)
	require.Len(t, series, 2)
	require.Equal(t, "2024-02-01", series[0].Date)

	d := domain.ComputeDelta(series[0].Weight, &series[1].Weight)
	require.True(t, d.Valid)
	require.InDelta(t, -2.0, d.Value, 1e-9)
	require.Equal(t, domain.TrendImprovement, d.Trend(domain.MetricWeight))
}

func TestStore_IDsNotReused(t *testing.T) {
	ctx := context.Background()
	slot := snapshot.NewMemorySlot()
	s := newStore(t, slot)

	_, err := s.Add(ctx, domain.Measurement{Date: "2024-01-01"})
	require.NoError(t, err)
	id2, err := s.Add(ctx, domain.Measurement{Date: "2024-01-02"})
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, id2))
	require.NoError(t, s.Close())

	s2 := newStore(t, slot)
	id3, err := s2.Add(ctx, domain.Measurement{Date: "2024-01-03"})
	require.NoError(t, err)
	require.Greater(t, id3, id2)
}

func TestStore_UpdateMissing(t *testing.T) {
	s := newStore(t, snapshot.NewMemorySlot())
	err := s.Update(context.Background(), domain.Measurement{ID: 42, Date: "2024-01-01"})
	require.ErrorIs(t, err, domain.ErrMeasurementNotFound)
}

func TestStore_RemoveMissing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, snapshot.NewMemorySlot())
	_, err := s.Add(ctx, domain.Measurement{Date: "2024-01-01"})
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, 999))
	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	slot := snapshot.NewMemorySlot()
	s := newStore(t, slot)

	_, err := s.Add(ctx, domain.Measurement{Date: "2024-01-01", Weight: 80})
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx))
	require.Equal(t, snapshot.StateReady, s.State())

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, reload(t, slot))

	id, err := s.Add(ctx, domain.Measurement{Date: "2024-01-05"})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
}

func TestStore_CorruptSnapshot(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not base64", "%%% definitely not base64 %%%"},
		{"not a database", base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 1024)))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			slot := snapshot.NewMemorySlot()
			require.NoError(t, slot.Set(ctx, snapshot.DefaultKey, tc.value))

			s := newStore(t, slot)
			_, err := s.List(ctx)
			require.ErrorIs(t, err, snapshot.ErrCorruptSnapshot)
			require.Equal(t, snapshot.StateUninitialized, s.State())

			// The slot is left alone so the data can still be inspected.
			v, _, _ := slot.Get(ctx, snapshot.DefaultKey)
			require.Equal(t, tc.value, v)
		})
	}
}

func TestStore_RecoverCorrupt(t *testing.T) {
	ctx := context.Background()
	slot := snapshot.NewMemorySlot()
	require.NoError(t, slot.Set(ctx, snapshot.DefaultKey, "!!"))

	core, logs := observer.New(zap.WarnLevel)
	s := newStore(t, slot, snapshot.WithRecoverCorrupt(true), snapshot.WithLogger(zap.New(core)))

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Equal(t, 1, logs.FilterMessage("discarding unreadable snapshot").Len())

	v, _, _ := slot.Get(ctx, snapshot.DefaultKey)
	require.NotEqual(t, "!!", v)
	require.Empty(t, reload(t, slot))
}

func TestStore_EngineUnavailable(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("engine bundle unreachable")
	s := newStore(t, snapshot.NewMemorySlot(), snapshot.WithEngine(func() (*sql.DB, error) {
		return nil, boom
	}))

	_, err := s.Add(ctx, domain.Measurement{Date: "2024-01-01"})
	require.ErrorIs(t, err, snapshot.ErrEngineUnavailable)
	require.ErrorIs(t, err, boom)
	require.Equal(t, snapshot.StateUninitialized, s.State())

	_, err = s.List(ctx)
	require.ErrorIs(t, err, snapshot.ErrEngineUnavailable)
}

type flakySlot struct {
	snapshot.Slot
	fail atomic.Bool
}

func (f *flakySlot) Set(ctx context.Context, key, value string) error {
	if f.fail.Load() {
		return snapshot.ErrSlotFull
	}
	return f.Slot.Set(ctx, key, value)
}

func TestStore_PersistFailureDiverges(t *testing.T) {
	ctx := context.Background()
	slot := &flakySlot{Slot: snapshot.NewMemorySlot()}
	core, logs := observer.New(zap.ErrorLevel)
	s := newStore(t, slot, snapshot.WithLogger(zap.New(core)))

	require.NoError(t, s.Initialize(ctx))
	slot.fail.Store(true)

	id, err := s.Add(ctx, domain.Measurement{Date: "2024-01-01", Weight: 80})
	require.NoError(t, err)
	require.NotZero(t, id)
	require.ErrorIs(t, s.LastPersistError(), snapshot.ErrSlotFull)
	require.Equal(t, 1, logs.FilterMessage("snapshot persist failed").Len())

	mem, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, mem, 1)
	require.Empty(t, reload(t, slot))

	slot.fail.Store(false)
	require.NoError(t, s.Remove(ctx, 12345))
	require.NoError(t, s.LastPersistError())
	require.Len(t, reload(t, slot), 1)
}

func TestStore_ConcurrentInitialize(t *testing.T) {
	var opened atomic.Int32
	s := newStore(t, snapshot.NewMemorySlot(), snapshot.WithEngine(func() (*sql.DB, error) {
		opened.Add(1)
		return snapshot.OpenMemoryEngine()
	}))

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.List(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), opened.Load())
}

func TestStore_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	slot := snapshot.NewMemorySlot()
	s := newStore(t, slot)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Add(ctx, domain.Measurement{Date: "2024-01-01", Weight: float64(60 + i)})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	require.Len(t, reload(t, slot), 20)
}

func TestStore_LargeHistoryRestoreCycles(t *testing.T) {
	ctx := context.Background()
	slot := snapshot.NewMemorySlot()

	seed := snapshot.New(slot)
	require.NoError(t, seed.Initialize(ctx))
	for i := range 1500 {
		_, err := seed.Add(ctx, domain.Measurement{
			Date:   fmt.Sprintf("%04d-%02d-%02d", 2000+i/336, 1+(i/28)%12, 1+i%28),
			Weight: 70 + float64(i%100)/10,
			Waist:  80,
		})
		require.NoError(t, err)
	}
	require.NoError(t, seed.Close())

	want := 1500
	for cycle := range 4 {
		s := snapshot.New(slot)
		got, err := s.List(ctx)
		require.NoError(t, err, "cycle %d", cycle)
		require.Len(t, got, want, "cycle %d", cycle)

		// Growing a restored image must not disturb the engine's memory.
		for range 50 {
			_, err := s.Add(ctx, domain.Measurement{Date: "2030-01-01", Weight: 90})
			require.NoError(t, err)
		}
		want += 50
		require.NoError(t, s.Close())

		if cycle%2 == 1 {
			s = snapshot.New(slot)
			n, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, n, want)
			require.NoError(t, s.Reset(ctx))
			got, err := s.List(ctx)
			require.NoError(t, err)
			require.Empty(t, got)
			require.NoError(t, s.Close())

			// Refill so the next cycle restores a large image again.
			s = snapshot.New(slot)
			for i := range 1500 {
				_, err := s.Add(ctx, domain.Measurement{Date: fmt.Sprintf("2024-01-%02d", 1+i%28), Weight: 80})
				require.NoError(t, err)
			}
			require.NoError(t, s.Close())
			want = 1500
		}
	}
	require.Len(t, reload(t, slot), want)
}

func TestStore_InitializeOutlivesCanceledCaller(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	s := newStore(t, snapshot.NewMemorySlot(), snapshot.WithEngine(func() (*sql.DB, error) {
		close(entered)
		<-release
		return snapshot.OpenMemoryEngine()
	}))

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() { firstErr <- s.Initialize(first) }()
	<-entered

	secondErr := make(chan error, 1)
	go func() { secondErr <- s.Initialize(context.Background()) }()

	cancel()
	close(release)

	// The canceled starter does not poison the shared initialization.
	require.NoError(t, <-firstErr)
	require.NoError(t, <-secondErr)
	require.Equal(t, snapshot.StateReady, s.State())

	got, err := s.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}
