package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/air-health-tracker/internal/airquality"
	"github.com/i474232898/air-health-tracker/internal/store"
)

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Fetch(_ context.Context, loc airquality.Location) (airquality.Reading, error) {
	return airquality.Reading{
		Location:    loc.ID,
		DisplayName: loc.Name,
		AQI:         42,
		Category:    airquality.CategoryGood,
		Source:      airquality.SourceObserved,
	}, nil
}

type stubAsthma struct {
	last airquality.AsthmaQuery
}

func (s *stubAsthma) Prevalence(_ context.Context, q airquality.AsthmaQuery) (airquality.AsthmaStats, error) {
	s.last = q
	return airquality.AsthmaStats{
		MeasureID:    q.MeasureID,
		Jurisdiction: q.Jurisdiction,
		FromYear:     q.FromYear,
		ToYear:       q.ToYear,
		Rows:         []airquality.AsthmaRow{{Geography: "Denver", Value: 9.4}},
		Source:       airquality.SourceObserved,
	}, nil
}

func newTestApp(t *testing.T) (*fiber.App, *airquality.Service, *stubAsthma) {
	t.Helper()
	day := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := airquality.NewService(
		store.NewMemoryStore(),
		airquality.StaticRegistry{{ID: "80202", Name: "Denver"}, {ID: "80301", Name: "Boulder"}},
		stubProvider{},
		airquality.DefaultHealthPolicy(),
		airquality.WithRequestDelay(0),
		airquality.WithClock(func() time.Time { return day }),
	)
	asthma := &stubAsthma{}

	app := fiber.New()
	RegisterRoutes(app, Deps{
		Service:         svc,
		Asthma:          asthma,
		AsthmaMeasureID: "296",
		StateFIPS:       "08",
	})
	return app, svc, asthma
}

func doRequest(t *testing.T, app *fiber.App, method, target string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return resp
}

func TestCollectionEndpointIsIdempotent(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doRequest(t, app, http.MethodPost, "/api/v1/collections")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}

	resp = doRequest(t, app, http.MethodPost, "/api/v1/collections")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d on second call, got %d", http.StatusOK, resp.StatusCode)
	}
	var body struct {
		Ran    bool              `json:"ran"`
		Status airquality.Status `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Ran || body.Status.LastCollection != "2024-03-01" || body.Status.TotalSnapshots != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}

	resp = doRequest(t, app, http.MethodPost, "/api/v1/collections?force=true")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected forced pass to run, got %d", resp.StatusCode)
	}
}

func TestTrendEndpoint(t *testing.T) {
	app, svc, _ := newTestApp(t)
	if _, err := svc.Collect(context.Background()); err != nil {
		t.Fatalf("collect: %v", err)
	}

	resp := doRequest(t, app, http.MethodGet, "/api/v1/trends/80202")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var body struct {
		Points []airquality.TrendPoint `json:"points"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Points) != 1 || body.Points[0].AQI != 42 || body.Points[0].Date != "2024-03-01" {
		t.Fatalf("unexpected points: %+v", body.Points)
	}

	// Unknown but well-formed ZIP returns an empty list, not an error.
	resp = doRequest(t, app, http.MethodGet, "/api/v1/trends/81501")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	resp = doRequest(t, app, http.MethodGet, "/api/v1/trends/denver")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// A single day of history is not enough for a chart.
	resp = doRequest(t, app, http.MethodGet, "/api/v1/trends/80202/chart")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	app, svc, _ := newTestApp(t)
	_, _ = svc.Collect(context.Background())

	cases := []struct {
		target string
		want   int
	}{
		{"/api/v1/history/2024-03-01", http.StatusOK},
		{"/api/v1/history/2024-02-29", http.StatusNotFound},
		{"/api/v1/history/yesterday", http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := doRequest(t, app, http.MethodGet, tc.target)
		if resp.StatusCode != tc.want {
			t.Errorf("%s: expected status %d, got %d", tc.target, tc.want, resp.StatusCode)
		}
	}
}

func TestAsthmaYearValidation(t *testing.T) {
	app, _, asthma := newTestApp(t)

	cases := []struct {
		target string
		want   int
	}{
		{"/api/v1/asthma", http.StatusBadRequest},
		{"/api/v1/asthma?from=2020&to=2018", http.StatusBadRequest},
		{"/api/v1/asthma?from=1990&to=2018", http.StatusBadRequest},
		{"/api/v1/asthma?from=2018&to=2020", http.StatusOK},
	}
	for _, tc := range cases {
		resp := doRequest(t, app, http.MethodGet, tc.target)
		if resp.StatusCode != tc.want {
			t.Errorf("%s: expected status %d, got %d", tc.target, tc.want, resp.StatusCode)
		}
	}

	if asthma.last.MeasureID != "296" || asthma.last.Jurisdiction != "08" || asthma.last.FromYear != 2018 {
		t.Fatalf("unexpected upstream query: %+v", asthma.last)
	}
}

func TestCurrentReadingEndpoint(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doRequest(t, app, http.MethodGet, "/api/v1/locations/80301/current")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var r airquality.Reading
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Location != "80301" || r.Source != airquality.SourceObserved {
		t.Fatalf("unexpected reading: %+v", r)
	}

	resp = doRequest(t, app, http.MethodGet, "/api/v1/locations/81501/current")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}
