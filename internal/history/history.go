package history

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yycweather/dashboard/internal/weather"
)

// DayRecord is one day's recorded temperature extremes.
type DayRecord struct {
	Max float64 `json:"max"`
	Min float64 `json:"min"`
	TS  string  `json:"ts"`
}

// Meta identifies which city/units/year/month a document covers.
type Meta struct {
	City  string        `json:"city"`
	Units weather.Units `json:"units"`
	Year  int           `json:"year"`
	Month int           `json:"month"`
}

// MonthDocument maps day-of-month to recorded extremes for one
// city+units+year+month. Documents grow one entry per day and are never
// deleted by this system.
type MonthDocument struct {
	Meta Meta              `json:"meta"`
	Days map[int]DayRecord `json:"days"`
}

// NewDocument returns an empty document with its metadata filled in.
func NewDocument(city string, units weather.Units, year, month int) MonthDocument {
	return MonthDocument{
		Meta: Meta{City: city, Units: units, Year: year, Month: month},
		Days: make(map[int]DayRecord),
	}
}

// Key is the store key for a month document. Month is zero-padded so keys
// sort lexically.
func Key(city string, units weather.Units, year, month int) string {
	return fmt.Sprintf("weather:hist:%s:%s:%d-%02d", strings.ToLower(city), units, year, month)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// SortedDays returns the recorded day numbers in ascending order.
func (d MonthDocument) SortedDays() []int {
	days := make([]int, 0, len(d.Days))
	for day := range d.Days {
		days = append(days, day)
	}
	sort.Ints(days)
	return days
}

// CSV renders the document as `day,max,min` rows sorted ascending by day.
// Unrecorded days are omitted.
func (d MonthDocument) CSV() string {
	var b strings.Builder
	b.WriteString("day,max,min\n")
	for _, day := range d.SortedDays() {
		rec := d.Days[day]
		b.WriteString(strconv.Itoa(day))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(rec.Max, 'g', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(rec.Min, 'g', -1, 64))
		b.WriteByte('\n')
	}
	return b.String()
}
