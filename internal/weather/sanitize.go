package weather

import (
	"regexp"
	"strings"
)

const maxCityLen = 50

var cityAllowed = regexp.MustCompile(`[^a-zA-Z \-]`)

// SanitizeCity strips everything but letters, spaces and hyphens from a
// requested city name, truncates it, and falls back to def when nothing
// usable remains.
func SanitizeCity(city, def string) string {
	city = cityAllowed.ReplaceAllString(strings.TrimSpace(city), "")
	if len(city) > maxCityLen {
		city = city[:maxCityLen]
	}
	if city == "" {
		return def
	}
	return city
}
