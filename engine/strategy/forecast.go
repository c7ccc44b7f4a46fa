package strategy

import (
	"math"
	"time"

	"tacklens/engine/geo"
	"tacklens/engine/models"
	"tacklens/engine/params"
)

// WindForecast projects the wind direction forward from the observed
// trend.
type WindForecast struct {
	ValidAt           time.Time `json:"valid_at"`
	HorizonSeconds    int       `json:"horizon_seconds"`
	CurrentDirection  float64   `json:"current_direction"`
	ForecastDirection float64   `json:"forecast_direction"`
	WindSpeed         float64   `json:"wind_speed"`
	TrendDegPerMinute float64   `json:"trend_deg_per_minute"`
	Confidence        float64   `json:"confidence"`
}

// ForecastWind fits a linear trend to the reconstructed wind direction
// series and extrapolates it wind_forecast_interval seconds past the end
// of the track. The trend is fit on unwrapped angles so shifts through
// north behave.
func (d *Detector) ForecastWind(t *models.Track, windResult *models.WindResult) (*WindForecast, error) {
	if t.Len() == 0 {
		return nil, models.ErrEmptyTrack
	}
	if windResult == nil {
		return nil, models.ErrInsufficientData
	}
	horizon := d.registry.GetInt(params.KeyWindForecastInterval, 300)
	dirs := d.instantaneousWind(t, windResult)

	// Unwrap so consecutive samples never jump more than 180 degrees.
	unwrapped := make([]float64, len(dirs))
	unwrapped[0] = dirs[0]
	for i := 1; i < len(dirs); i++ {
		unwrapped[i] = unwrapped[i-1] + geo.AngleDiff(dirs[i-1], dirs[i])
	}

	// Least-squares slope of direction over elapsed seconds.
	t0 := t.Times[0]
	var sumX, sumY, sumXX, sumXY float64
	for i, y := range unwrapped {
		x := t.Times[i].Sub(t0).Seconds()
		sumX += x
		sumY += y
		sumXX += x * x
		sumXY += x * y
	}
	n := float64(len(unwrapped))
	denom := n*sumXX - sumX*sumX
	var slope float64 // degrees per second
	if denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
	}

	// Residual spread bounds the confidence.
	meanX := sumX / n
	meanY := sumY / n
	var ss float64
	for i, y := range unwrapped {
		x := t.Times[i].Sub(t0).Seconds()
		r := y - (meanY + slope*(x-meanX))
		ss += r * r
	}
	residualStd := math.Sqrt(ss / n)

	current := dirs[len(dirs)-1]
	forecast := geo.Normalize(current + slope*float64(horizon))
	confidence := clamp01(windResult.Wind.Confidence * (1 - math.Min(residualStd/45, 1)))

	return &WindForecast{
		ValidAt:           t.Times[t.Len()-1].Add(time.Duration(horizon) * time.Second),
		HorizonSeconds:    horizon,
		CurrentDirection:  current,
		ForecastDirection: forecast,
		WindSpeed:         windResult.Wind.SpeedKn,
		TrendDegPerMinute: slope * 60,
		Confidence:        confidence,
	}, nil
}
