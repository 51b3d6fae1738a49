// Package cron implements the once-per-day idempotent fetch-and-merge job.
package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/yycweather/dashboard/internal/history"
	"github.com/yycweather/dashboard/internal/kv"
	"github.com/yycweather/dashboard/internal/metrics"
	"github.com/yycweather/dashboard/internal/weather"
)

// Status of a refresh run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
)

// Skip reasons.
const (
	ReasonWrongHour  = "wrong hour"
	ReasonAlreadyRan = "already ran today"
)

// Result describes what a refresh run did.
type Result struct {
	Status     Status `json:"status"`
	Reason     string `json:"reason,omitempty"`
	CacheKey   string `json:"cacheKey,omitempty"`
	HistoryKey string `json:"historyKey,omitempty"`
}

// LastRunKey is the marker key recording the most recent local calendar
// date on which the job completed for a city.
func LastRunKey(city string) string {
	return "weather:cron:" + strings.ToLower(city) + ":lastRun"
}

// Job is the daily refresh job for one city+units pair. It gates execution
// to a target local hour, deduplicates repeated triggers within a day, and
// on success writes the snapshot, merges today's extremes into the month
// history, and marks the run complete.
type Job struct {
	store    kv.Store
	provider weather.Provider
	merger   *history.Merger
	coll     *metrics.Collector

	city        string
	units       weather.Units
	tz          *time.Location
	targetHour  int
	snapshotTTL time.Duration
	lastRunTTL  time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// Config carries the job's fixed parameters.
type Config struct {
	City        string
	Units       weather.Units
	Timezone    *time.Location
	TargetHour  int
	SnapshotTTL time.Duration
	LastRunTTL  time.Duration
}

func NewJob(store kv.Store, provider weather.Provider, merger *history.Merger, coll *metrics.Collector, cfg Config) *Job {
	tz := cfg.Timezone
	if tz == nil {
		tz = time.UTC
	}

	return &Job{
		store:       store,
		provider:    provider,
		merger:      merger,
		coll:        coll,
		city:        cfg.City,
		units:       cfg.Units,
		tz:          tz,
		targetHour:  cfg.TargetHour,
		snapshotTTL: cfg.SnapshotTTL,
		lastRunTTL:  cfg.LastRunTTL,
		now:         time.Now,
	}
}

// Run executes one trigger. Unless force is set, it proceeds only when the
// local hour matches the target hour and the job has not already completed
// today. Any upstream failure aborts before any write.
//
// The marker check below and the marker write at the end are not atomic;
// two truly concurrent triggers can both pass the gate. That window is
// accepted: duplicate triggers are rare, non-adversarial, and the merge is
// idempotent. kv.Store.SetNX is available if this ever needs hardening.
func (j *Job) Run(ctx context.Context, force bool) (Result, error) {
	localNow := j.now().In(j.tz)
	today := localNow.Format("2006-01-02")

	if !force && localNow.Hour() != j.targetHour {
		j.coll.RecordRefresh(metrics.RefreshSkippedHour)
		return Result{
			Status: StatusSkipped,
			Reason: fmt.Sprintf("%s: target %02d:00 local, now %02d:00", ReasonWrongHour, j.targetHour, localNow.Hour()),
		}, nil
	}

	if !force {
		lastRun, err := j.store.Get(ctx, LastRunKey(j.city))
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			j.coll.RecordRefresh(metrics.RefreshError)
			return Result{}, fmt.Errorf("reading last-run marker: %w", err)
		}
		if string(lastRun) == today {
			j.coll.RecordRefresh(metrics.RefreshSkippedDone)
			return Result{Status: StatusSkipped, Reason: ReasonAlreadyRan}, nil
		}
	}

	snap, err := j.provider.FetchSnapshot(ctx, j.city, j.units)
	if err != nil {
		j.coll.RecordRefresh(metrics.RefreshError)
		return Result{}, err
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		j.coll.RecordRefresh(metrics.RefreshError)
		return Result{}, err
	}

	cacheKey := weather.SnapshotKey(j.city, j.units)
	if err := j.store.Set(ctx, cacheKey, raw, j.snapshotTTL); err != nil {
		j.coll.RecordRefresh(metrics.RefreshError)
		return Result{}, fmt.Errorf("writing snapshot: %w", err)
	}

	rec := history.DayRecord{
		Max: snap.MaxTemp,
		Min: snap.MinTemp,
		TS:  j.now().UTC().Format(time.RFC3339),
	}
	if _, err := j.merger.Merge(ctx, j.city, j.units, localNow.Year(), int(localNow.Month()), localNow.Day(), rec); err != nil {
		j.coll.RecordRefresh(metrics.RefreshError)
		return Result{}, fmt.Errorf("merging history: %w", err)
	}
	j.coll.RecordMerge()

	// The marker enforces idempotency for the current day only; the TTL is
	// storage hygiene, not correctness.
	if err := j.store.Set(ctx, LastRunKey(j.city), []byte(today), j.lastRunTTL); err != nil {
		j.coll.RecordRefresh(metrics.RefreshError)
		return Result{}, fmt.Errorf("writing last-run marker: %w", err)
	}

	historyKey := history.Key(j.city, j.units, localNow.Year(), int(localNow.Month()))
	log.Printf("cron: refreshed %s (%s), cache=%s history=%s", j.city, j.units, cacheKey, historyKey)
	j.coll.RecordRefresh(metrics.RefreshOK)

	return Result{Status: StatusOK, CacheKey: cacheKey, HistoryKey: historyKey}, nil
}
