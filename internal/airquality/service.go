package airquality

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Storage keys for the two persisted values.
const (
	HistoryKey = "aqi_historical_data"
	MarkerKey  = "last_data_collection"
)

const (
	DefaultMaxDays      = 30
	DefaultRequestDelay = time.Second
)

// Service owns the rolling window of daily snapshots and the collection marker.
type Service struct {
	kv       KVStore
	registry Registry
	provider Provider
	policy   HealthPolicy

	maxDays int
	delay   time.Duration
	now     func() time.Time

	// passMu serializes collection passes; mu guards history and marker.
	passMu  sync.Mutex
	mu      sync.RWMutex
	history History
	marker  string
}

// Option customizes a Service.
type Option func(*Service)

// WithMaxDays sets how many date keys the window retains.
func WithMaxDays(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxDays = n
		}
	}
}

// WithRequestDelay sets the pause between per-location fetches in a pass.
func WithRequestDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new Service. Call Load before serving reads.
func NewService(kv KVStore, registry Registry, provider Provider, policy HealthPolicy, opts ...Option) *Service {
	s := &Service{
		kv:       kv,
		registry: registry,
		provider: provider,
		policy:   policy,
		maxDays:  DefaultMaxDays,
		delay:    DefaultRequestDelay,
		now:      time.Now,
		history:  make(History),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the persisted history and marker. Read or decode failures are
// logged and leave the corresponding value empty.
func (s *Service) Load(ctx context.Context) {
	history := make(History)
	if raw, ok, err := s.kv.Get(ctx, HistoryKey); err != nil {
		log.Printf("ERROR: collector: failed to read %s: %v", HistoryKey, err)
	} else if ok {
		if err := json.Unmarshal(raw, &history); err != nil {
			log.Printf("ERROR: collector: discarding unreadable %s: %v", HistoryKey, err)
			history = make(History)
		}
	}
	// A stored JSON null decodes to a nil map.
	if history == nil {
		history = make(History)
	}

	var marker string
	if raw, ok, err := s.kv.Get(ctx, MarkerKey); err != nil {
		log.Printf("ERROR: collector: failed to read %s: %v", MarkerKey, err)
	} else if ok {
		if err := json.Unmarshal(raw, &marker); err != nil {
			log.Printf("ERROR: collector: discarding unreadable %s: %v", MarkerKey, err)
			marker = ""
		}
	}

	s.mu.Lock()
	s.history = history
	s.marker = marker
	s.evictLocked()
	days := len(s.history)
	s.mu.Unlock()

	log.Printf("INFO: collector: loaded %d days of history, last collection %q", days, marker)
}

// Today returns the current calendar-date key.
func (s *Service) Today() string {
	return s.now().Format(DateLayout)
}

// RunIfDue runs a collection pass unless one has already completed today.
// force bypasses the marker check. ran reports whether a pass was attempted.
func (s *Service) RunIfDue(ctx context.Context, force bool) (result CollectionResult, ran bool, err error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	today := s.Today()
	s.mu.RLock()
	marker := s.marker
	s.mu.RUnlock()

	if !force && marker == today {
		log.Printf("collector: data for %s already collected; skipping", today)
		return CollectionResult{}, false, nil
	}

	result, err = s.collect(ctx, today)
	return result, true, err
}

// Collect runs a full collection pass for today regardless of the marker.
func (s *Service) Collect(ctx context.Context) (CollectionResult, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	return s.collect(ctx, s.Today())
}

func (s *Service) collect(ctx context.Context, date string) (CollectionResult, error) {
	result := CollectionResult{
		PassID: uuid.NewString(),
		Date:   date,
	}

	locs := s.registry.Locations()
	log.Printf("collector: pass %s starting for %s with %d locations", result.PassID, date, len(locs))

	snapshots := make([]Snapshot, 0, len(locs))
	index := make(map[string]int, len(locs))

	for i, loc := range locs {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				log.Printf("collector: pass %s interrupted: %v", result.PassID, err)
				return result, err
			}
		}

		r, err := s.provider.Fetch(ctx, loc)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("collector: pass %s interrupted: %v", result.PassID, ctx.Err())
				return result, ctx.Err()
			}
			// Omit the location; the rest of the pass still commits.
			log.Printf("collector: %s fetch failed for %s: %v", s.provider.Name(), loc.Key(), err)
			result.Skipped = append(result.Skipped, loc.Key())
			continue
		}

		if r.IsFallback() {
			result.Fallbacks++
		}

		snap := s.snapshotFromReading(loc, r)
		if j, ok := index[snap.LocationID]; ok {
			snapshots[j] = snap
			continue
		}
		index[snap.LocationID] = len(snapshots)
		snapshots = append(snapshots, snap)
	}
	result.Collected = len(snapshots)

	s.mu.Lock()
	s.history[date] = snapshots
	s.marker = date
	result.Evicted = s.evictLocked()
	historyJSON, histErr := json.Marshal(s.history)
	s.mu.Unlock()

	// The in-memory view stays as is even when persisting fails.
	persistCtx := context.WithoutCancel(ctx)
	if histErr != nil {
		log.Printf("ERROR: collector: failed to encode history: %v", histErr)
	} else if err := s.kv.Put(persistCtx, HistoryKey, historyJSON); err != nil {
		log.Printf("ERROR: collector: failed to persist history: %v", err)
	}
	markerJSON, _ := json.Marshal(date)
	if err := s.kv.Put(persistCtx, MarkerKey, markerJSON); err != nil {
		log.Printf("ERROR: collector: failed to persist collection marker: %v", err)
	}

	log.Printf("collector: pass %s completed for %s: %d collected, %d fallback, %d skipped, %d evicted",
		result.PassID, date, result.Collected, result.Fallbacks, len(result.Skipped), len(result.Evicted))
	return result, nil
}

func (s *Service) snapshotFromReading(loc Location, r Reading) Snapshot {
	id := r.Location
	if id == "" {
		id = loc.ID
	}
	name := loc.Name
	if name == "" {
		name = r.DisplayName
	}
	category := r.Category
	if category == "" {
		category = CategoryForAQI(r.AQI)
	}
	source := r.Source
	if source == "" {
		source = SourceObserved
	}
	return Snapshot{
		LocationID:        id,
		DisplayName:       name,
		AQI:               r.AQI,
		Category:          category,
		DominantPollutant: r.DominantPollutant,
		Source:            source,
		CapturedAt:        s.now().UTC(),
	}
}

func (s *Service) pause(ctx context.Context) error {
	if s.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// evictLocked drops the oldest dates beyond the window. Caller holds mu.
func (s *Service) evictLocked() []string {
	if len(s.history) <= s.maxDays {
		return nil
	}
	dates := s.sortedDatesLocked()
	over := len(dates) - s.maxDays
	evicted := dates[:over]
	for _, d := range evicted {
		delete(s.history, d)
	}
	log.Printf("collector: evicted %d days older than %s", over, dates[over])
	return evicted
}

func (s *Service) sortedDatesLocked() []string {
	dates := make([]string, 0, len(s.history))
	for d := range s.history {
		dates = append(dates, d)
	}
	// ISO dates sort chronologically.
	sort.Strings(dates)
	return dates
}

// Trend returns one point per stored date that has a snapshot for locationID,
// oldest first. Unknown locations yield an empty, non-nil slice.
func (s *Service) Trend(locationID string) []TrendPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := make([]TrendPoint, 0)
	for _, date := range s.sortedDatesLocked() {
		snaps := s.history[date]
		for i := len(snaps) - 1; i >= 0; i-- {
			if snaps[i].LocationID == locationID {
				points = append(points, s.policy.TrendPoint(date, snaps[i]))
				break
			}
		}
	}
	return points
}

// Status summarizes the stored window.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, snaps := range s.history {
		total += len(snaps)
	}
	return Status{
		LastCollection: s.marker,
		DaysStored:     len(s.history),
		TotalSnapshots: total,
		WindowFull:     len(s.history) >= s.maxDays,
		MaxDays:        s.maxDays,
	}
}

// Snapshots returns the stored snapshots for a date.
func (s *Service) Snapshots(date string) ([]Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps, ok := s.history[date]
	if !ok {
		return nil, false
	}
	out := make([]Snapshot, len(snaps))
	copy(out, snaps)
	return out, true
}

// History returns a copy of the whole store.
func (s *Service) History() History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Clone()
}

// Policy returns the health policy used for trend points.
func (s *Service) Policy() HealthPolicy {
	return s.policy
}

// Locations returns the registry's current locations.
func (s *Service) Locations() []Location {
	return s.registry.Locations()
}

// Provider returns the upstream the service collects from.
func (s *Service) Provider() Provider {
	return s.provider
}
