package weather

import (
	"strings"
	"time"
)

// Units is the unit system governing temperatures and speeds in provider
// responses.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
	UnitsStandard Units = "standard"
)

// ParseUnits normalizes a requested unit system, falling back to metric for
// anything outside the allowed set.
func ParseUnits(s string) Units {
	switch Units(strings.ToLower(strings.TrimSpace(s))) {
	case UnitsImperial:
		return UnitsImperial
	case UnitsStandard:
		return UnitsStandard
	default:
		return UnitsMetric
	}
}

// Wind is the current wind reading with a derived compass direction.
type Wind struct {
	Speed     float64 `json:"speed"`
	Deg       int     `json:"deg"`
	Direction string  `json:"direction"`
}

// ForecastPoint is one 3-hourly forecast entry. Entries preserve provider
// ordering, which is chronological.
type ForecastPoint struct {
	Time        string  `json:"time"`
	Temp        float64 `json:"temp"`
	FeelsLike   float64 `json:"feelsLike"`
	TempMin     float64 `json:"tempMin"`
	TempMax     float64 `json:"tempMax"`
	WindSpeed   float64 `json:"windSpeed"`
	WindDeg     int     `json:"windDeg"`
	WindDir     string  `json:"windDir"`
	Rain3h      float64 `json:"rain3h"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
}

// Snapshot is the normalized latest observation for one city and unit
// system, plus its short-horizon forecast.
type Snapshot struct {
	Location       string          `json:"location"`
	Units          Units           `json:"units"`
	TS             time.Time       `json:"ts"`
	Description    string          `json:"description"`
	Icon           string          `json:"icon"`
	CurrentTemp    float64         `json:"currentTemp"`
	MinTemp        float64         `json:"minTemp"`
	MaxTemp        float64         `json:"maxTemp"`
	Humidity       float64         `json:"humidity"`
	Pressure       float64         `json:"pressure"`
	Wind           Wind            `json:"wind"`
	RainLastPeriod float64         `json:"rainLastPeriod"`
	Forecast       []ForecastPoint `json:"forecast"`
}

// SnapshotKey is the cache key for a city+units current snapshot.
func SnapshotKey(city string, units Units) string {
	return "weather:" + strings.ToLower(city) + ":" + string(units) + ":v1"
}
