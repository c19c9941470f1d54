package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/air-health-tracker/internal/airquality"
	"github.com/sony/gobreaker"
)

// Fallback reading values used when AirNow gives us nothing usable.
const (
	FallbackAQI      = 75
	FallbackCategory = airquality.CategoryModerate
)

const defaultAirNowBaseURL = "https://www.airnowapi.org"

// AirNowProvider implements the airquality.Provider interface for the AirNow
// current-observations-by-ZIP endpoint.
type AirNowProvider struct {
	name     string
	apiKey   string
	baseURL  string
	distance int
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
	now      func() time.Time
}

// AirNowOption customizes an AirNowProvider.
type AirNowOption func(*AirNowProvider)

// WithAirNowBaseURL points the provider at a different host.
func WithAirNowBaseURL(u string) AirNowOption {
	return func(p *AirNowProvider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAirNowDistance sets the search radius in miles around the ZIP centroid.
func WithAirNowDistance(miles int) AirNowOption {
	return func(p *AirNowProvider) {
		if miles > 0 {
			p.distance = miles
		}
	}
}

// WithAirNowBackoff overrides the retry policy.
func WithAirNowBackoff(b BackoffConfig) AirNowOption {
	return func(p *AirNowProvider) {
		p.httpCfg.Backoff = b
	}
}

func NewAirNowProvider(client *http.Client, apiKey string, opts ...AirNowOption) *AirNowProvider {
	p := &AirNowProvider{
		name:     "airnow",
		apiKey:   apiKey,
		baseURL:  defaultAirNowBaseURL,
		distance: 25,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newCircuitBreaker("airnow"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *AirNowProvider) Name() string {
	return p.name
}

// airNowObservation is one monitoring-station row of the AirNow response.
type airNowObservation struct {
	DateObserved  string  `json:"DateObserved"`
	HourObserved  int     `json:"HourObserved"`
	LocalTimeZone string  `json:"LocalTimeZone"`
	ReportingArea string  `json:"ReportingArea"`
	StateCode     string  `json:"StateCode"`
	ParameterName string  `json:"ParameterName"`
	AQI           float64 `json:"AQI"`
	Category      struct {
		Number int    `json:"Number"`
		Name   string `json:"Name"`
	} `json:"Category"`
}

// Fetch returns the worst current observation for the location. Upstream
// failures produce a fallback reading; only context cancellation is an error.
func (p *AirNowProvider) Fetch(ctx context.Context, loc airquality.Location) (airquality.Reading, error) {
	obs, err := p.fetchObservations(ctx, loc)
	if err != nil {
		if ctx.Err() != nil {
			return airquality.Reading{}, ctx.Err()
		}
		if errors.Is(err, errUnauthorized) || errors.Is(err, errMissingAPIKey) {
			log.Printf("ERROR: airnow: credential problem for %s, check AIRNOW_API_KEY: %v", loc.Key(), err)
		} else {
			log.Printf("airnow: using fallback for %s: %v", loc.Key(), err)
		}
		return p.fallback(loc), nil
	}

	best := selectWorst(obs)
	return p.toReading(loc, best), nil
}

func (p *AirNowProvider) fetchObservations(ctx context.Context, loc airquality.Location) ([]airNowObservation, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("airnow %w", errMissingAPIKey)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("format", "application/json")
		values.Set("zipCode", loc.ID)
		values.Set("distance", strconv.Itoa(p.distance))
		values.Set("API_KEY", p.apiKey)

		u := fmt.Sprintf("%s/aq/observation/zipCode/current/?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload []airNowObservation
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode airnow payload: %w", err)
	}
	// AirNow reports -1 for stations without a current value.
	valid := payload[:0]
	for _, o := range payload {
		if o.AQI >= 0 {
			valid = append(valid, o)
		}
	}
	if len(valid) == 0 {
		return nil, errEmptyPayload
	}
	return valid, nil
}

// selectWorst picks the observation with the highest AQI; ties keep the first.
func selectWorst(obs []airNowObservation) airNowObservation {
	best := obs[0]
	for _, o := range obs[1:] {
		if o.AQI > best.AQI {
			best = o
		}
	}
	return best
}

func (p *AirNowProvider) toReading(loc airquality.Location, o airNowObservation) airquality.Reading {
	aqi := int(o.AQI)
	category := strings.TrimSpace(o.Category.Name)
	if category == "" {
		category = airquality.CategoryForAQI(aqi)
	}
	name := o.ReportingArea
	if name == "" {
		name = loc.Name
	}
	pollutant := o.ParameterName
	if pollutant == "" {
		pollutant = airquality.PollutantPM25
	}
	return airquality.Reading{
		Location:          loc.ID,
		DisplayName:       name,
		AQI:               aqi,
		DominantPollutant: pollutant,
		Category:          category,
		ObservationDate:   p.observedAt(o),
		Source:            airquality.SourceObserved,
	}
}

// airNowZoneOffsets maps the zone abbreviations AirNow reports to UTC offsets in hours.
var airNowZoneOffsets = map[string]int{
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
	"AKST": -9, "AKDT": -8,
	"HST": -10,
}

// observedAt reads the date and hour in the reporting area's zone. Unknown
// zones are treated as UTC.
func (p *AirNowProvider) observedAt(o airNowObservation) time.Time {
	loc := time.UTC
	zone := strings.ToUpper(strings.TrimSpace(o.LocalTimeZone))
	if hours, ok := airNowZoneOffsets[zone]; ok {
		loc = time.FixedZone(zone, hours*60*60)
	}
	// DateObserved is "YYYY-MM-DD " with a trailing space.
	d, err := time.ParseInLocation(airquality.DateLayout, strings.TrimSpace(o.DateObserved), loc)
	if err != nil {
		return p.now().UTC()
	}
	return d.Add(time.Duration(o.HourObserved) * time.Hour)
}

func (p *AirNowProvider) fallback(loc airquality.Location) airquality.Reading {
	return airquality.Reading{
		Location:          loc.ID,
		DisplayName:       loc.Name,
		AQI:               FallbackAQI,
		DominantPollutant: airquality.PollutantPM25,
		Category:          FallbackCategory,
		ObservationDate:   p.now().UTC(),
		Source:            airquality.SourceFallback,
	}
}
