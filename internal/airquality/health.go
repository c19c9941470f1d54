package airquality

import (
	"math"

	"github.com/i474232898/air-health-tracker/internal/common"
)

// Asthma-rate estimates never leave this band, whatever the policy says.
const (
	MinAsthmaRate = 5.0
	MaxAsthmaRate = 15.0
)

// HealthPolicy turns an AQI value into rough health-impact estimates.
// These are illustrative heuristics for the dashboard, not an epidemiological model.
type HealthPolicy struct {
	// Baseline is the AQI at or below which no excess impact is assumed.
	Baseline float64

	BaseVisits     float64
	VisitsPerPoint float64
	MaxVisits      float64

	HospitalizationRatio float64
	MaxHospitalizations  float64

	BaseAsthmaRate     float64
	AsthmaRatePerPoint float64
}

// DefaultHealthPolicy returns the policy used when nothing is configured.
func DefaultHealthPolicy() HealthPolicy {
	return HealthPolicy{
		Baseline:             50,
		BaseVisits:           12,
		VisitsPerPoint:       0.6,
		MaxVisits:            400,
		HospitalizationRatio: 0.15,
		MaxHospitalizations:  80,
		BaseAsthmaRate:       8.5,
		AsthmaRatePerPoint:   0.03,
	}
}

func (p HealthPolicy) excess(aqi int) float64 {
	return math.Max(0, float64(aqi)-p.Baseline)
}

// finiteOr returns v, or def when v is NaN or infinite.
func finiteOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// EmergencyVisits estimates asthma-related emergency visits for a day at this AQI.
func (p HealthPolicy) EmergencyVisits(aqi int) int {
	v := p.BaseVisits + p.excess(aqi)*math.Max(0, p.VisitsPerPoint)
	return int(math.Round(finiteOr(common.Clamp(v, 0, math.Max(0, p.MaxVisits)), 0)))
}

// Hospitalizations estimates admissions as a share of emergency visits.
func (p HealthPolicy) Hospitalizations(aqi int) int {
	h := float64(p.EmergencyVisits(aqi)) * math.Max(0, p.HospitalizationRatio)
	return int(math.Round(finiteOr(common.Clamp(h, 0, math.Max(0, p.MaxHospitalizations)), 0)))
}

// AsthmaRate estimates asthma prevalence in percent, always within [5, 15].
// A policy that yields NaN reports the lower bound.
func (p HealthPolicy) AsthmaRate(aqi int) float64 {
	r := p.BaseAsthmaRate + p.excess(aqi)*math.Max(0, p.AsthmaRatePerPoint)
	return common.RoundTo(finiteOr(common.Clamp(r, MinAsthmaRate, MaxAsthmaRate), MinAsthmaRate), 1)
}

// TrendPoint derives the chart view of a snapshot.
func (p HealthPolicy) TrendPoint(date string, s Snapshot) TrendPoint {
	return TrendPoint{
		Date:             date,
		AQI:              s.AQI,
		PM25:             s.AQI,
		EmergencyVisits:  p.EmergencyVisits(s.AQI),
		Hospitalizations: p.Hospitalizations(s.AQI),
		AsthmaRate:       p.AsthmaRate(s.AQI),
		Category:         s.Category,
		Source:           s.Source,
	}
}
