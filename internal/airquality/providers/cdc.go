package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/air-health-tracker/internal/airquality"
	"github.com/sony/gobreaker"
)

const defaultTrackingBaseURL = "https://ephtracking.cdc.gov/apigateway/api/v1"

// CDCTrackingClient reads asthma prevalence from the CDC Environmental Health
// Tracking API. Responses are cached per query for ttl.
type CDCTrackingClient struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	cache   *Cache[airquality.AsthmaStats]
}

func NewCDCTrackingClient(client *http.Client, baseURL string, ttl time.Duration) *CDCTrackingClient {
	if baseURL == "" {
		baseURL = defaultTrackingBaseURL
	}
	return &CDCTrackingClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newCircuitBreaker("cdc-tracking"),
		cache:   NewCache[airquality.AsthmaStats](ttl),
	}
}

// trackingValue accepts dataValue as either a JSON number or a string.
type trackingValue struct {
	value float64
	ok    bool
}

func (v *trackingValue) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Suppressed or missing values ("", "null", "~").
		v.ok = false
		return nil
	}
	v.value, v.ok = f, true
	return nil
}

type trackingRow struct {
	Geo       string        `json:"geo"`
	GeoID     string        `json:"geoId"`
	Temporal  string        `json:"temporal"`
	DataValue trackingValue `json:"dataValue"`
}

// Prevalence fetches the series described by q. Upstream failures produce a
// fallback result with no rows; only context cancellation is an error.
func (c *CDCTrackingClient) Prevalence(ctx context.Context, q airquality.AsthmaQuery) (airquality.AsthmaStats, error) {
	key := fmt.Sprintf("%s|%s|%d|%d", q.MeasureID, q.Jurisdiction, q.FromYear, q.ToYear)
	if stats, ok := c.cache.Get(key); ok {
		return stats, nil
	}

	stats := airquality.AsthmaStats{
		MeasureID:    q.MeasureID,
		Jurisdiction: q.Jurisdiction,
		FromYear:     q.FromYear,
		ToYear:       q.ToYear,
		Rows:         []airquality.AsthmaRow{},
		Source:       airquality.SourceObserved,
	}

	rows, err := c.fetchRows(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return airquality.AsthmaStats{}, ctx.Err()
		}
		log.Printf("cdc: using fallback for measure %s/%s: %v", q.MeasureID, q.Jurisdiction, err)
		stats.Source = airquality.SourceFallback
		return stats, nil
	}

	for _, r := range rows {
		if !r.DataValue.ok {
			continue
		}
		stats.Rows = append(stats.Rows, airquality.AsthmaRow{
			Geography: r.Geo,
			GeoID:     r.GeoID,
			Year:      r.Temporal,
			Value:     r.DataValue.value,
		})
	}

	c.cache.Set(key, stats)
	return stats, nil
}

func (c *CDCTrackingClient) fetchRows(ctx context.Context, q airquality.AsthmaQuery) ([]trackingRow, error) {
	if q.MeasureID == "" || q.Jurisdiction == "" {
		return nil, fmt.Errorf("measure and jurisdiction are required")
	}
	if q.FromYear <= 0 || q.ToYear < q.FromYear {
		return nil, fmt.Errorf("invalid year range %d-%d", q.FromYear, q.ToYear)
	}

	years := make([]string, 0, q.ToYear-q.FromYear+1)
	for y := q.FromYear; y <= q.ToYear; y++ {
		years = append(years, strconv.Itoa(y))
	}

	buildRequest := func() (*http.Request, error) {
		// Geographic type 2 is county-level; temporal type 1 is annual.
		u := fmt.Sprintf("%s/getCoreHolder/%s/2/%s/1/%s/0/0",
			c.baseURL, q.MeasureID, q.Jurisdiction, strings.Join(years, ","))
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		TableResult []trackingRow `json:"tableResult"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode tracking payload: %w", err)
	}
	if len(payload.TableResult) == 0 {
		return nil, errEmptyPayload
	}
	return payload.TableResult, nil
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a small TTL cache keyed by string.
type Cache[V any] struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]cacheEntry[V]
}

func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl: ttl,
		m:   make(map[string]cacheEntry[V]),
	}
}

// Get returns a live entry. Expired entries are removed.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if now.After(entry.expiresAt) {
		c.mu.Lock()
		if e, ok := c.m[key]; ok && now.After(e.expiresAt) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return entry.value, true
}

// Set stores value and sweeps expired entries.
func (c *Cache[V]) Set(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.m {
		if now.After(e.expiresAt) {
			delete(c.m, k)
		}
	}
	c.m[key] = cacheEntry[V]{value: value, expiresAt: now.Add(c.ttl)}
}

// Len reports the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
