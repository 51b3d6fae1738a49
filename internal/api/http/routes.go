package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	dailycron "github.com/yycweather/dashboard/internal/cron"
	"github.com/yycweather/dashboard/internal/history"
	"github.com/yycweather/dashboard/internal/kv"
	"github.com/yycweather/dashboard/internal/metrics"
	"github.com/yycweather/dashboard/internal/weather"
)

var validate = validator.New()

// headerHistoryWarning flags degraded or reset history responses on the
// CSV path, where the body carries no warning field.
const headerHistoryWarning = "X-History-Warning"

// Options carries the request-independent settings the handlers need.
type Options struct {
	DefaultCity  string
	DefaultUnits weather.Units
	Timezone     *time.Location

	// CronSecret guards the trigger endpoint and the forced refresh; empty
	// disables both checks.
	CronSecret string

	APIKeyConfigured bool
	SnapshotTTL      time.Duration
}

// Handlers holds the wired dependencies for the API routes.
type Handlers struct {
	store    kv.Store
	provider weather.Provider
	merger   *history.Merger
	job      *dailycron.Job
	coll     *metrics.Collector
	opts     Options

	now func() time.Time
}

// NewHandlers creates the route handlers.
func NewHandlers(store kv.Store, provider weather.Provider, merger *history.Merger, job *dailycron.Job, coll *metrics.Collector, opts Options) *Handlers {
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}
	return &Handlers{
		store:    store,
		provider: provider,
		merger:   merger,
		job:      job,
		coll:     coll,
		opts:     opts,
		now:      time.Now,
	}
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, h *Handlers) {
	api := app.Group("/api")

	api.Get("/weather", h.getWeather)
	api.Get("/history", h.getHistory)
	api.Post("/history", h.postHistory)
	api.Get("/cron/daily", h.runDaily)
}

func (h *Handlers) cityUnits(c *fiber.Ctx) (string, weather.Units) {
	city := weather.SanitizeCity(c.Query("city"), h.opts.DefaultCity)
	units := weather.ParseUnits(c.Query("units"))
	return city, units
}

// getWeather serves the cached snapshot. Absence is an expected
// pre-first-run state and degrades to an empty 200 body; only a forced
// refresh talks to the provider.
func (h *Handlers) getWeather(c *fiber.Ctx) error {
	city, units := h.cityUnits(c)

	forced := h.opts.CronSecret != "" && c.Query("refresh") == h.opts.CronSecret
	if forced {
		return h.liveFetch(c, city, units)
	}

	raw, err := h.store.Get(c.UserContext(), weather.SnapshotKey(city, units))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			h.coll.RecordCacheRead(false)
			return c.JSON(fiber.Map{
				"status": "no_data",
				"city":   city,
				"units":  units,
			})
		}
		log.Printf("weather: store read failed for %s: %v", city, err)
		return c.JSON(fiber.Map{
			"status":  "degraded",
			"city":    city,
			"units":   units,
			"warning": "store_unavailable",
		})
	}

	h.coll.RecordCacheRead(true)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

func (h *Handlers) liveFetch(c *fiber.Ctx, city string, units weather.Units) error {
	snap, err := h.provider.FetchSnapshot(c.UserContext(), city, units)
	if err != nil {
		return upstreamOrInternal(c, err)
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to encode snapshot")
	}
	if err := h.store.Set(c.UserContext(), weather.SnapshotKey(city, units), raw, h.opts.SnapshotTTL); err != nil {
		// The fetch succeeded; serve the data and log the write failure.
		log.Printf("weather: cache write failed for %s: %v", city, err)
	}

	return c.JSON(snap)
}

// historyQuery holds query parameters for the history read.
type historyQuery struct {
	Year  int
	Month int `validate:"required,min=1,max=12"`
}

type historyResponse struct {
	Meta    history.Meta              `json:"meta"`
	Days    map[int]history.DayRecord `json:"days"`
	Warning string                    `json:"warning,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// getHistory returns the month document as JSON or CSV, degrading to an
// empty well-formed shape rather than erroring: the UI must render
// something.
func (h *Handlers) getHistory(c *fiber.Ctx) error {
	city, units := h.cityUnits(c)

	q := historyQuery{
		Year:  c.QueryInt("year"),
		Month: c.QueryInt("month"),
	}
	if q.Year <= 0 {
		// Missing or unparseable years fall back to the current local
		// year instead of rejecting the request.
		q.Year = h.now().In(h.opts.Timezone).Year()
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid month (1-12 required)")
	}

	wantCSV := c.Query("format") == "csv"

	doc, corrupt, err := h.merger.Load(c.UserContext(), city, units, q.Year, q.Month)
	if err != nil {
		log.Printf("history: load failed for %s %d-%02d: %v", city, q.Year, q.Month, err)
		if wantCSV {
			c.Set(headerHistoryWarning, "history_load_failed")
			return sendCSV(c, history.NewDocument(city, units, q.Year, q.Month))
		}
		return c.JSON(historyResponse{
			Meta:  history.Meta{City: city, Units: units, Year: q.Year, Month: q.Month},
			Days:  map[int]history.DayRecord{},
			Error: "history_load_failed",
		})
	}

	if wantCSV {
		// CSV has no body slot for warnings, so a reset document is
		// flagged through a header instead.
		if corrupt {
			c.Set(headerHistoryWarning, "corrupt_record")
		}
		return sendCSV(c, doc)
	}

	resp := historyResponse{Meta: doc.Meta, Days: doc.Days}
	if corrupt {
		resp.Warning = "corrupt_record"
	}
	return c.JSON(resp)
}

func sendCSV(c *fiber.Ctx, doc history.MonthDocument) error {
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.SendString(doc.CSV())
}

// historyWrite is the POST body: one day's extremes for the current local
// year-month. Pointers distinguish missing fields from zero values.
type historyWrite struct {
	Day *int     `json:"day" validate:"required,min=1,max=31"`
	Max *float64 `json:"max" validate:"required"`
	Min *float64 `json:"min" validate:"required"`
}

// postHistory merges one explicit day record, used by the UI to backfill
// today's observation before the scheduled job has run.
func (h *Handlers) postHistory(c *fiber.Ctx) error {
	city, units := h.cityUnits(c)

	var body historyWrite
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "body must include day,max,min numbers")
	}
	if err := validate.Struct(body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "body must include day,max,min numbers")
	}

	localNow := h.now().In(h.opts.Timezone)
	rec := history.DayRecord{
		Max: *body.Max,
		Min: *body.Min,
		TS:  h.now().UTC().Format(time.RFC3339),
	}

	doc, err := h.merger.Merge(c.UserContext(), city, units, localNow.Year(), int(localNow.Month()), *body.Day, rec)
	if err != nil {
		if errors.Is(err, history.ErrOutOfRange) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		log.Printf("history: save failed for %s: %v", city, err)
		return c.JSON(fiber.Map{
			"ok":    false,
			"error": "history_save_failed",
		})
	}
	h.coll.RecordMerge()

	return c.JSON(fiber.Map{
		"ok":    true,
		"saved": doc.Days[*body.Day],
	})
}

// runDaily is the scheduled trigger endpoint. Retry is delegated to the
// external scheduler; the idempotency gate makes re-invocation safe.
func (h *Handlers) runDaily(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		token = c.Get("X-Cron-Token")
	}
	if h.opts.CronSecret != "" && token != h.opts.CronSecret {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	if !h.opts.APIKeyConfigured {
		return fiber.NewError(fiber.StatusInternalServerError, "missing OPENWEATHER_API_KEY")
	}

	force := c.Query("force") == "1"

	res, err := h.job.Run(c.UserContext(), force)
	if err != nil {
		return upstreamOrInternal(c, err)
	}

	if res.Status == dailycron.StatusSkipped {
		return c.JSON(fiber.Map{
			"ok":      true,
			"skipped": true,
			"reason":  res.Reason,
		})
	}

	return c.JSON(fiber.Map{
		"ok": true,
		"saved": fiber.Map{
			"cacheKey":   res.CacheKey,
			"historyKey": res.HistoryKey,
		},
	})
}

// upstreamOrInternal maps provider failures to 502 with the failing call
// and raw body, and everything else to 500.
func upstreamOrInternal(c *fiber.Ctx, err error) error {
	var upstream *weather.UpstreamError
	if errors.As(err, &upstream) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "upstream provider failure",
			"call":    upstream.Call,
			"status":  upstream.Status,
			"details": upstream.Body,
		})
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
