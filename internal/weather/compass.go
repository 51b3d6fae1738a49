package weather

import "math"

var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// DegToCompass buckets a wind bearing into one of 16 compass points.
// Each bucket spans 22.5 degrees centered on its point, so 350 wraps back
// to N and 11 still rounds down into the first bucket.
func DegToCompass(deg float64) string {
	idx := int(math.Floor(deg/22.5+0.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return compassPoints[idx]
}
