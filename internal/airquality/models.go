package airquality

import (
	"time"
)

// DateLayout is the calendar-date key format used by the historical store.
const DateLayout = "2006-01-02"

// Source tells whether a reading came from the upstream API or was substituted.
type Source string

const (
	SourceObserved Source = "observed"
	SourceFallback Source = "fallback"
)

// Category labels follow the EPA AQI bands.
const (
	CategoryGood          = "Good"
	CategoryModerate      = "Moderate"
	CategorySensitive     = "Unhealthy for Sensitive Groups"
	CategoryUnhealthy     = "Unhealthy"
	CategoryVeryUnhealthy = "Very Unhealthy"
	CategoryHazardous     = "Hazardous"
)

// PollutantPM25 is reported as dominant when the upstream gives nothing better.
const PollutantPM25 = "PM2.5"

// Location represents a place we collect readings for.
// ID is a 5-digit postal code.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return l.ID
}

// Reading is the normalized fetch-layer record for one location.
type Reading struct {
	Location          string    `json:"location"`
	DisplayName       string    `json:"displayName"`
	AQI               int       `json:"aqi"`
	DominantPollutant string    `json:"dominantPollutant"`
	Category          string    `json:"category"`
	ObservationDate   time.Time `json:"observationDate"`
	Source            Source    `json:"source"`
}

// IsFallback reports whether the reading was substituted for missing upstream data.
func (r Reading) IsFallback() bool {
	return r.Source == SourceFallback
}

// Snapshot is one location's reading captured for one calendar date.
type Snapshot struct {
	LocationID        string    `json:"locationId"`
	DisplayName       string    `json:"displayName"`
	AQI               int       `json:"aqi"`
	Category          string    `json:"category"`
	DominantPollutant string    `json:"dominantPollutant,omitempty"`
	Source            Source    `json:"source"`
	CapturedAt        time.Time `json:"capturedAt"`

	// Sub-indices the AirNow observation endpoint does not break out; always zero for now.
	PM25 float64 `json:"pm25"`
	PM10 float64 `json:"pm10"`
	O3   float64 `json:"o3"`
	NO2  float64 `json:"no2"`
}

// History maps a calendar date (YYYY-MM-DD) to the snapshots captured that day.
type History map[string][]Snapshot

// Clone returns a deep copy safe to hand out to callers.
func (h History) Clone() History {
	out := make(History, len(h))
	for date, snaps := range h {
		cp := make([]Snapshot, len(snaps))
		copy(cp, snaps)
		out[date] = cp
	}
	return out
}

// TrendPoint is the per-date view used to draw trend charts.
type TrendPoint struct {
	Date             string  `json:"date"`
	AQI              int     `json:"aqi"`
	PM25             int     `json:"pm25"`
	EmergencyVisits  int     `json:"emergencyVisits"`
	Hospitalizations int     `json:"hospitalizations"`
	AsthmaRate       float64 `json:"asthmaRate"`
	Category         string  `json:"category"`
	Source           Source  `json:"source"`
}

// Status summarizes the historical store.
type Status struct {
	LastCollection string `json:"lastCollection"`
	DaysStored     int    `json:"daysStored"`
	TotalSnapshots int    `json:"totalSnapshots"`
	WindowFull     bool   `json:"windowFull"`
	MaxDays        int    `json:"maxDays"`
}

// CollectionResult describes one completed collection pass.
type CollectionResult struct {
	PassID    string   `json:"passId"`
	Date      string   `json:"date"`
	Collected int      `json:"collected"`
	Fallbacks int      `json:"fallbacks"`
	Skipped   []string `json:"skipped,omitempty"`
	Evicted   []string `json:"evicted,omitempty"`
}

// CategoryForAQI maps an AQI value onto its EPA category label.
func CategoryForAQI(aqi int) string {
	switch {
	case aqi <= 50:
		return CategoryGood
	case aqi <= 100:
		return CategoryModerate
	case aqi <= 150:
		return CategorySensitive
	case aqi <= 200:
		return CategoryUnhealthy
	case aqi <= 300:
		return CategoryVeryUnhealthy
	default:
		return CategoryHazardous
	}
}
