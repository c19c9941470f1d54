package airquality

import "context"

// AsthmaQuery identifies a prevalence series in the CDC tracking network.
type AsthmaQuery struct {
	MeasureID    string
	Jurisdiction string // state FIPS code, "08" for Colorado
	FromYear     int
	ToYear       int
}

// AsthmaRow is one geography/year value from the tracking API.
type AsthmaRow struct {
	Geography string  `json:"geography"`
	GeoID     string  `json:"geoId,omitempty"`
	Year      string  `json:"year,omitempty"`
	Value     float64 `json:"value"`
}

// AsthmaStats is the normalized response for an AsthmaQuery.
type AsthmaStats struct {
	MeasureID    string      `json:"measureId"`
	Jurisdiction string      `json:"jurisdiction"`
	FromYear     int         `json:"fromYear"`
	ToYear       int         `json:"toYear"`
	Rows         []AsthmaRow `json:"rows"`
	Source       Source      `json:"source"`
}

// AsthmaSource fetches asthma prevalence statistics.
// Like Provider, upstream failures come back as Source == SourceFallback.
type AsthmaSource interface {
	Prevalence(ctx context.Context, q AsthmaQuery) (AsthmaStats, error)
}
