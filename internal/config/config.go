package config

import (
	"fmt"
	"log"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/air-health-tracker/internal/airquality"
)

type AppConfig struct {
	AirNowAPIKey   string
	AirNowBaseURL  string
	AirNowDistance int

	CDCBaseURL      string
	AsthmaMeasureID string
	StateFIPS       string
	CDCCacheTTL     time.Duration

	// Locations to collect for.
	Locations []airquality.Location

	// StorePath is the SQLite file; MemoryStorePath keeps history in memory only.
	StorePath   string
	HistoryDays int

	RequestDelay     time.Duration
	CollectionOffset time.Duration
	CollectTimeout   time.Duration
	HTTPTimeout      time.Duration
	TimeZone         *time.Location

	HealthPolicy airquality.HealthPolicy

	Port string
}

// defaultLocations covers the larger Colorado population centers.
var defaultLocations = []airquality.Location{
	{ID: "80202", Name: "Denver"},
	{ID: "80301", Name: "Boulder"},
	{ID: "80903", Name: "Colorado Springs"},
	{ID: "80521", Name: "Fort Collins"},
	{ID: "81003", Name: "Pueblo"},
	{ID: "81501", Name: "Grand Junction"},
	{ID: "80631", Name: "Greeley"},
	{ID: "81301", Name: "Durango"},
	{ID: "80012", Name: "Aurora"},
	{ID: "80401", Name: "Golden"},
}

// MemoryStorePath disables the SQLite store.
const MemoryStorePath = "memory"

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.AirNowAPIKey = os.Getenv("AIRNOW_API_KEY")
	if cfg.AirNowAPIKey == "" {
		log.Println("INFO: AIRNOW_API_KEY is not set; every reading will be a fallback")
	}
	cfg.AirNowBaseURL = getenvDefault("AIRNOW_BASE_URL", "https://www.airnowapi.org")
	cfg.AirNowDistance = getenvInt("AIRNOW_DISTANCE_MILES", 25)

	cfg.CDCBaseURL = getenvDefault("CDC_BASE_URL", "https://ephtracking.cdc.gov/apigateway/api/v1")
	cfg.AsthmaMeasureID = getenvDefault("CDC_ASTHMA_MEASURE_ID", "296")
	cfg.StateFIPS = getenvDefault("CDC_STATE_FIPS", "08")
	if cfg.CDCCacheTTL, err = getenvDuration("CDC_CACHE_TTL", "12h"); err != nil {
		return nil, err
	}

	cfg.StorePath = getenvDefault("STORE_PATH", "data/air-health.db")
	cfg.HistoryDays = getenvInt("HISTORY_DAYS", airquality.DefaultMaxDays)
	if cfg.HistoryDays <= 0 {
		return nil, fmt.Errorf("HISTORY_DAYS must be positive, got %d", cfg.HistoryDays)
	}

	if cfg.RequestDelay, err = getenvDuration("REQUEST_DELAY", "1s"); err != nil {
		return nil, err
	}
	if cfg.CollectionOffset, err = getenvDuration("COLLECTION_OFFSET", "5m"); err != nil {
		return nil, err
	}
	if cfg.CollectTimeout, err = getenvDuration("COLLECT_TIMEOUT", "30m"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	tz := getenvDefault("TZ_NAME", "America/Denver")
	cfg.TimeZone, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ_NAME: %w", err)
	}

	cfg.HealthPolicy = loadHealthPolicy()
	cfg.Port = getenvDefault("PORT", "8080")

	locs, err := parseLocations(os.Getenv("AQI_LOCATIONS"))
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	return cfg, nil
}

// parseLocations reads "zip:Name,zip:Name". An empty string yields the defaults.
func parseLocations(raw string) ([]airquality.Location, error) {
	if strings.TrimSpace(raw) == "" {
		out := make([]airquality.Location, len(defaultLocations))
		copy(out, defaultLocations)
		return out, nil
	}

	var locs []airquality.Location
	seen := make(map[string]bool)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		zip, name, _ := strings.Cut(item, ":")
		zip = strings.TrimSpace(zip)
		if !zipPattern.MatchString(zip) {
			return nil, fmt.Errorf("invalid ZIP code %q in AQI_LOCATIONS", zip)
		}
		if seen[zip] {
			return nil, fmt.Errorf("duplicate ZIP code %q in AQI_LOCATIONS", zip)
		}
		seen[zip] = true
		name = strings.TrimSpace(name)
		if name == "" {
			name = zip
		}
		locs = append(locs, airquality.Location{ID: zip, Name: name})
	}
	if len(locs) == 0 {
		return nil, fmt.Errorf("AQI_LOCATIONS contains no locations")
	}
	return locs, nil
}

func loadHealthPolicy() airquality.HealthPolicy {
	p := airquality.DefaultHealthPolicy()
	p.Baseline = getenvFloat("HEALTH_BASELINE_AQI", p.Baseline)
	p.BaseVisits = getenvFloat("HEALTH_BASE_VISITS", p.BaseVisits)
	p.VisitsPerPoint = getenvFloat("HEALTH_VISITS_PER_POINT", p.VisitsPerPoint)
	p.MaxVisits = getenvFloat("HEALTH_MAX_VISITS", p.MaxVisits)
	p.HospitalizationRatio = getenvFloat("HEALTH_HOSPITALIZATION_RATIO", p.HospitalizationRatio)
	p.MaxHospitalizations = getenvFloat("HEALTH_MAX_HOSPITALIZATIONS", p.MaxHospitalizations)
	p.BaseAsthmaRate = getenvFloat("HEALTH_BASE_ASTHMA_RATE", p.BaseAsthmaRate)
	p.AsthmaRatePerPoint = getenvFloat("HEALTH_ASTHMA_RATE_PER_POINT", p.AsthmaRatePerPoint)
	return p
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
		log.Printf("INFO: ignoring %s=%q, using %v", key, v, def)
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
