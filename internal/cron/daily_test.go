package cron

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yycweather/dashboard/internal/history"
	"github.com/yycweather/dashboard/internal/kv"
	"github.com/yycweather/dashboard/internal/metrics"
	"github.com/yycweather/dashboard/internal/weather"
)

type stubProvider struct {
	calls int
	snap  weather.Snapshot
	err   error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) FetchSnapshot(ctx context.Context, city string, units weather.Units) (weather.Snapshot, error) {
	s.calls++
	if s.err != nil {
		return weather.Snapshot{}, s.err
	}
	return s.snap, nil
}

func newTestJob(t *testing.T, provider *stubProvider, at time.Time) (*Job, *kv.Memory) {
	t.Helper()

	tz, err := time.LoadLocation("America/Edmonton")
	if err != nil {
		t.Fatalf("loading timezone: %v", err)
	}

	store := kv.NewMemory()
	job := NewJob(store, provider, history.NewMerger(store), metrics.NewCollector(prometheus.NewRegistry()), Config{
		City:        "Calgary",
		Units:       weather.UnitsMetric,
		Timezone:    tz,
		TargetHour:  8,
		SnapshotTTL: 24 * time.Hour,
		LastRunTTL:  7 * 24 * time.Hour,
	})
	job.now = func() time.Time { return at }
	return job, store
}

// edmonton8am is 08:00 local on 2025-03-10 (UTC-6 during DST).
var edmonton8am = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func testSnapshot() weather.Snapshot {
	return weather.Snapshot{
		Location:    "Calgary",
		Units:       weather.UnitsMetric,
		CurrentTemp: 2.5,
		MinTemp:     -6,
		MaxTemp:     4,
	}
}

func TestRunWrongHourSkips(t *testing.T) {
	provider := &stubProvider{snap: testSnapshot()}
	job, store := newTestJob(t, provider, edmonton8am.Add(3*time.Hour))

	res, err := job.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusSkipped || !strings.Contains(res.Reason, ReasonWrongHour) {
		t.Fatalf("expected wrong-hour skip, got %+v", res)
	}
	if provider.calls != 0 {
		t.Fatalf("expected no upstream fetch, got %d calls", provider.calls)
	}
	if _, err := store.Get(context.Background(), weather.SnapshotKey("Calgary", weather.UnitsMetric)); !errors.Is(err, kv.ErrNotFound) {
		t.Fatal("expected no snapshot write on skip")
	}
}

func TestRunSuccessWritesEverything(t *testing.T) {
	provider := &stubProvider{snap: testSnapshot()}
	job, store := newTestJob(t, provider, edmonton8am)
	ctx := context.Background()

	res, err := job.Run(ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if res.CacheKey != "weather:calgary:metric:v1" {
		t.Errorf("unexpected cache key %q", res.CacheKey)
	}
	if res.HistoryKey != "weather:hist:calgary:metric:2025-03" {
		t.Errorf("unexpected history key %q", res.HistoryKey)
	}

	if _, err := store.Get(ctx, res.CacheKey); err != nil {
		t.Errorf("expected snapshot in store: %v", err)
	}

	doc, _, err := history.NewMerger(store).Load(ctx, "Calgary", weather.UnitsMetric, 2025, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, ok := doc.Days[10]
	if !ok {
		t.Fatalf("expected day 10 record, got %+v", doc.Days)
	}
	if rec.Max != 4 || rec.Min != -6 {
		t.Errorf("unexpected extremes: %+v", rec)
	}

	marker, err := store.Get(ctx, LastRunKey("Calgary"))
	if err != nil {
		t.Fatalf("expected last-run marker: %v", err)
	}
	if string(marker) != "2025-03-10" {
		t.Errorf("unexpected marker %q", marker)
	}
}

func TestRunTwiceSameDaySkipsSecond(t *testing.T) {
	provider := &stubProvider{snap: testSnapshot()}
	job, _ := newTestJob(t, provider, edmonton8am)
	ctx := context.Background()

	if _, err := job.Run(ctx, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := job.Run(ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusSkipped || res.Reason != ReasonAlreadyRan {
		t.Fatalf("expected already-ran skip, got %+v", res)
	}
	if provider.calls != 1 {
		t.Fatalf("expected exactly one upstream fetch, got %d", provider.calls)
	}
}

func TestRunForceBypassesGatesButSetsMarker(t *testing.T) {
	provider := &stubProvider{snap: testSnapshot()}
	// 11:00 local, outside the gate.
	job, store := newTestJob(t, provider, edmonton8am.Add(3*time.Hour))
	ctx := context.Background()

	res, err := job.Run(ctx, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("expected ok, got %+v", res)
	}

	if _, err := store.Get(ctx, LastRunKey("Calgary")); err != nil {
		t.Fatalf("forced run must still set the marker: %v", err)
	}

	// A subsequent natural run the same day is deduplicated.
	job.now = func() time.Time { return edmonton8am }
	res, err = job.Run(ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusSkipped || res.Reason != ReasonAlreadyRan {
		t.Fatalf("expected dedup after forced run, got %+v", res)
	}
}

func TestRunUpstreamFailureWritesNothing(t *testing.T) {
	provider := &stubProvider{err: &weather.UpstreamError{Call: "forecast", Status: http.StatusBadGateway, Body: "boom"}}
	job, store := newTestJob(t, provider, edmonton8am)
	ctx := context.Background()

	_, err := job.Run(ctx, false)
	var upstream *weather.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}

	if _, err := store.Get(ctx, weather.SnapshotKey("Calgary", weather.UnitsMetric)); !errors.Is(err, kv.ErrNotFound) {
		t.Error("snapshot must not be written on upstream failure")
	}
	if _, err := store.Get(ctx, history.Key("Calgary", weather.UnitsMetric, 2025, 3)); !errors.Is(err, kv.ErrNotFound) {
		t.Error("history must not be written on upstream failure")
	}
	if _, err := store.Get(ctx, LastRunKey("Calgary")); !errors.Is(err, kv.ErrNotFound) {
		t.Error("marker must not be written on upstream failure")
	}
}
