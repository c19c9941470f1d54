package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/air-health-tracker/internal/airquality"
)

var fastBackoff = BackoffConfig{
	MaxRetries:      1,
	InitialInterval: time.Millisecond,
	MaxInterval:     time.Millisecond,
}

var denver = airquality.Location{ID: "80202", Name: "Denver"}

func newTestAirNow(t *testing.T, handler http.HandlerFunc) (*AirNowProvider, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	p := NewAirNowProvider(srv.Client(), "test-key",
		WithAirNowBaseURL(srv.URL),
		WithAirNowBackoff(fastBackoff),
	)
	return p, &hits
}

func TestAirNowSelectsWorstObservation(t *testing.T) {
	p, _ := newTestAirNow(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/aq/observation/zipCode/current/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("zipCode") != "80202" || q.Get("API_KEY") != "test-key" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"DateObserved":"2024-03-01 ","HourObserved":14,"ReportingArea":"Denver","ParameterName":"O3","AQI":48,"Category":{"Number":1,"Name":"Good"}},
			{"DateObserved":"2024-03-01 ","HourObserved":14,"ReportingArea":"Denver","ParameterName":"PM2.5","AQI":67,"Category":{"Number":2,"Name":"Moderate"}},
			{"DateObserved":"2024-03-01 ","HourObserved":14,"ReportingArea":"Denver","ParameterName":"PM10","AQI":-1,"Category":{"Number":7,"Name":"Unavailable"}}
		]`))
	})

	r, err := p.Fetch(context.Background(), denver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Source != airquality.SourceObserved {
		t.Fatalf("expected observed reading, got %s", r.Source)
	}
	if r.AQI != 67 || r.DominantPollutant != "PM2.5" || r.Category != "Moderate" {
		t.Fatalf("unexpected reading: %+v", r)
	}
	want := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	if !r.ObservationDate.Equal(want) {
		t.Fatalf("expected observation at %v, got %v", want, r.ObservationDate)
	}
}

func TestAirNowObservationUsesLocalZone(t *testing.T) {
	p := NewAirNowProvider(http.DefaultClient, "test-key")
	cases := []struct {
		zone string
		want time.Time
	}{
		{"MST", time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)},
		{"EDT", time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)},
		{"", time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)},
		{"XYZ", time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got := p.observedAt(airNowObservation{DateObserved: "2024-03-01 ", HourObserved: 14, LocalTimeZone: tc.zone})
		if !got.Equal(tc.want) {
			t.Errorf("zone %q: got %v, want %v", tc.zone, got, tc.want)
		}
	}
}

func TestAirNowFallbacks(t *testing.T) {
	cases := []struct {
		name     string
		handler  http.HandlerFunc
		wantHits int32
	}{
		{
			name: "unauthorized is not retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			wantHits: 1,
		},
		{
			name: "server error is retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantHits: 2,
		},
		{
			name: "empty array",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[]`))
			},
			wantHits: 1,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>maintenance</html>`))
			},
			wantHits: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, hits := newTestAirNow(t, tc.handler)

			r, err := p.Fetch(context.Background(), denver)
			if err != nil {
				t.Fatalf("fallbacks must not surface errors: %v", err)
			}
			if !r.IsFallback() || r.AQI != FallbackAQI || r.Category != FallbackCategory {
				t.Fatalf("expected fallback reading, got %+v", r)
			}
			if r.Location != "80202" || r.DisplayName != "Denver" {
				t.Fatalf("fallback lost its location: %+v", r)
			}
			if got := atomic.LoadInt32(hits); got != tc.wantHits {
				t.Fatalf("expected %d upstream hits, got %d", tc.wantHits, got)
			}
		})
	}
}

func TestAirNowMissingKeyFallsBackWithoutCalling(t *testing.T) {
	p := NewAirNowProvider(http.DefaultClient, "", WithAirNowBaseURL("http://127.0.0.1:1"))
	r, err := p.Fetch(context.Background(), denver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.IsFallback() {
		t.Fatalf("expected fallback when key is missing")
	}
}

func TestAirNowReturnsContextError(t *testing.T) {
	p, _ := newTestAirNow(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Fetch(ctx, denver); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
