package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/yycweather/dashboard/internal/metrics"
	"github.com/yycweather/dashboard/internal/weather"
)

const maxErrorBody = 4 << 10

// OpenWeatherProvider fetches current conditions and the short-horizon
// forecast from OpenWeatherMap and normalizes them into a weather.Snapshot.
type OpenWeatherProvider struct {
	name          string
	apiKey        string
	baseURL       string
	forecastCount int
	httpCfg       HTTPClientConfig
	circuit       *gobreaker.CircuitBreaker
	coll          *metrics.Collector
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, forecastCount int, coll *metrics.Collector) *OpenWeatherProvider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	if forecastCount <= 0 {
		forecastCount = 8
	}

	return &OpenWeatherProvider{
		name:          "openweathermap",
		apiKey:        apiKey,
		baseURL:       "https://api.openweathermap.org/data/2.5",
		forecastCount: forecastCount,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				// Retry is delegated to the external scheduler re-invoking
				// the trigger endpoint; in-process retries stay off.
				MaxRetries:      0,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
		coll:    coll,
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type owmCurrent struct {
	Dt   int64  `json:"dt"`
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		TempMin  float64 `json:"temp_min"`
		TempMax  float64 `json:"temp_max"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Rain struct {
		OneH   float64 `json:"1h"`
		ThreeH float64 `json:"3h"`
	} `json:"rain"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
}

type owmForecast struct {
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			TempMin   float64 `json:"temp_min"`
			TempMax   float64 `json:"temp_max"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
			Deg   float64 `json:"deg"`
		} `json:"wind"`
		Rain struct {
			ThreeH float64 `json:"3h"`
		} `json:"rain"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
	} `json:"list"`
}

// FetchSnapshot issues the current-conditions and forecast requests
// concurrently. Both must succeed; there are no partial snapshots.
func (p *OpenWeatherProvider) FetchSnapshot(ctx context.Context, city string, units weather.Units) (weather.Snapshot, error) {
	if p.apiKey == "" {
		return weather.Snapshot{}, fmt.Errorf("openweather api key is not configured")
	}

	var (
		wg          sync.WaitGroup
		current     owmCurrent
		forecast    owmForecast
		currentErr  error
		forecastErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		currentErr = p.fetchJSON(ctx, "current", p.currentURL(city, units), &current)
	}()
	go func() {
		defer wg.Done()
		forecastErr = p.fetchJSON(ctx, "forecast", p.forecastURL(city, units), &forecast)
	}()
	wg.Wait()

	if currentErr != nil {
		return weather.Snapshot{}, currentErr
	}
	if forecastErr != nil {
		return weather.Snapshot{}, forecastErr
	}

	return normalize(city, units, current, forecast), nil
}

func (p *OpenWeatherProvider) currentURL(city string, units weather.Units) string {
	values := url.Values{}
	values.Set("q", city)
	values.Set("units", string(units))
	values.Set("appid", p.apiKey)
	return fmt.Sprintf("%s/weather?%s", p.baseURL, values.Encode())
}

func (p *OpenWeatherProvider) forecastURL(city string, units weather.Units) string {
	values := url.Values{}
	values.Set("q", city)
	values.Set("units", string(units))
	values.Set("cnt", fmt.Sprintf("%d", p.forecastCount))
	values.Set("appid", p.apiKey)
	return fmt.Sprintf("%s/forecast?%s", p.baseURL, values.Encode())
}

func (p *OpenWeatherProvider) fetchJSON(ctx context.Context, call, u string, out interface{}) error {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		p.coll.RecordUpstreamError(call)
		return err
	}
	defer resp.Body.Close()

	p.coll.RecordUpstream(call, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &weather.UpstreamError{
			Call:   call,
			Status: resp.StatusCode,
			Body:   string(body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", call, err)
	}
	return nil
}

// normalize reshapes the two raw payloads into a Snapshot. Missing optional
// fields default rather than erroring: the normalization is deliberately
// lossy-tolerant.
func normalize(city string, units weather.Units, current owmCurrent, forecast owmForecast) weather.Snapshot {
	location := current.Name
	if location == "" {
		location = city
	}

	description := "not available"
	icon := ""
	if len(current.Weather) > 0 {
		if current.Weather[0].Description != "" {
			description = current.Weather[0].Description
		}
		icon = current.Weather[0].Icon
	}

	rain := current.Rain.OneH
	if rain == 0 {
		rain = current.Rain.ThreeH
	}

	windDeg := int(current.Wind.Deg)

	snap := weather.Snapshot{
		Location:    location,
		Units:       units,
		TS:          time.Now().UTC(),
		Description: description,
		Icon:        icon,
		CurrentTemp: current.Main.Temp,
		MinTemp:     current.Main.TempMin,
		MaxTemp:     current.Main.TempMax,
		Humidity:    current.Main.Humidity,
		Pressure:    current.Main.Pressure,
		Wind: weather.Wind{
			Speed:     current.Wind.Speed,
			Deg:       windDeg,
			Direction: weather.DegToCompass(current.Wind.Deg),
		},
		RainLastPeriod: rain,
		Forecast:       make([]weather.ForecastPoint, 0, len(forecast.List)),
	}

	for _, item := range forecast.List {
		pointDesc := ""
		pointIcon := ""
		if len(item.Weather) > 0 {
			pointDesc = item.Weather[0].Description
			pointIcon = item.Weather[0].Icon
		}

		snap.Forecast = append(snap.Forecast, weather.ForecastPoint{
			Time:        item.DtTxt,
			Temp:        item.Main.Temp,
			FeelsLike:   item.Main.FeelsLike,
			TempMin:     item.Main.TempMin,
			TempMax:     item.Main.TempMax,
			WindSpeed:   item.Wind.Speed,
			WindDeg:     int(item.Wind.Deg),
			WindDir:     weather.DegToCompass(item.Wind.Deg),
			Rain3h:      item.Rain.ThreeH,
			Description: pointDesc,
			Icon:        pointIcon,
		})
	}

	return snap
}
