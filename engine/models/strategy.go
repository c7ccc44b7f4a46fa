package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PointKind discriminates the strategy point variants.
type PointKind string

const (
	PointWindShift    PointKind = "wind_shift"
	PointTack         PointKind = "tack"
	PointLayline      PointKind = "layline"
	PointMarkRounding PointKind = "mark_rounding"
)

// PointDetail is the variant-specific payload of a strategy point.
type PointDetail interface {
	Kind() PointKind
}

// WindShiftDetail describes a sustained change in true wind direction.
type WindShiftDetail struct {
	ShiftAngle      float64 `json:"shift_angle"` // signed, positive = right shift
	BeforeDirection float64 `json:"before_direction"`
	AfterDirection  float64 `json:"after_direction"`
	WindSpeed       float64 `json:"wind_speed"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (WindShiftDetail) Kind() PointKind { return PointWindShift }

// TackDetail describes a position where switching tack improves VMG.
type TackDetail struct {
	TackType      string  `json:"tack_type"`      // current tack: port or starboard
	SuggestedTack string  `json:"suggested_tack"` // tack to switch to
	VMGGain       float64 `json:"vmg_gain"`       // fractional improvement
	HeadingBefore float64 `json:"heading_before"`
	HeadingAfter  float64 `json:"heading_after"`
}

func (TackDetail) Kind() PointKind { return PointTack }

// LaylineDetail describes reaching the layline of a mark.
type LaylineDetail struct {
	MarkID          string  `json:"mark_id"`
	DistanceToMark  float64 `json:"distance_to_mark"` // meters
	ApproachAngle   float64 `json:"approach_angle"`
	OptimalAngle    float64 `json:"optimal_angle"`
	AngleDifference float64 `json:"angle_difference"`
}

func (LaylineDetail) Kind() PointKind { return PointLayline }

// MarkRoundingDetail describes passing close around a race mark.
type MarkRoundingDetail struct {
	MarkID         string       `json:"mark_id"`
	RoundingSide   RoundingSide `json:"rounding_side"`
	DistanceToMark float64      `json:"distance_to_mark"` // meters at closest approach
}

func (MarkRoundingDetail) Kind() PointKind { return PointMarkRounding }

// StrategyPoint is a tactical decision point on the track. The envelope
// fields are common to every variant; Detail carries the variant payload.
type StrategyPoint struct {
	Time   time.Time   `json:"timestamp"`
	Lat    float64     `json:"lat"`
	Lon    float64     `json:"lon"`
	Score  float64     `json:"strategic_score"` // [0,1]
	Note   string      `json:"note,omitempty"`
	Detail PointDetail `json:"-"`
}

// Kind returns the variant kind, or an empty kind when Detail is unset.
func (p StrategyPoint) Kind() PointKind {
	if p.Detail == nil {
		return ""
	}
	return p.Detail.Kind()
}

type strategyPointJSON struct {
	Type   PointKind       `json:"type"`
	Time   time.Time       `json:"timestamp"`
	Lat    float64         `json:"lat"`
	Lon    float64         `json:"lon"`
	Score  float64         `json:"strategic_score"`
	Note   string          `json:"note,omitempty"`
	Detail json.RawMessage `json:"detail"`
}

// MarshalJSON flattens the envelope and tags the variant under "type".
func (p StrategyPoint) MarshalJSON() ([]byte, error) {
	detail, err := json.Marshal(p.Detail)
	if err != nil {
		return nil, err
	}
	return json.Marshal(strategyPointJSON{
		Type: p.Kind(), Time: p.Time, Lat: p.Lat, Lon: p.Lon,
		Score: p.Score, Note: p.Note, Detail: detail,
	})
}

// UnmarshalJSON restores the variant from the "type" tag.
func (p *StrategyPoint) UnmarshalJSON(data []byte) error {
	var raw strategyPointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Time, p.Lat, p.Lon, p.Score, p.Note = raw.Time, raw.Lat, raw.Lon, raw.Score, raw.Note
	switch raw.Type {
	case PointWindShift:
		var d WindShiftDetail
		if err := json.Unmarshal(raw.Detail, &d); err != nil {
			return err
		}
		p.Detail = d
	case PointTack:
		var d TackDetail
		if err := json.Unmarshal(raw.Detail, &d); err != nil {
			return err
		}
		p.Detail = d
	case PointLayline:
		var d LaylineDetail
		if err := json.Unmarshal(raw.Detail, &d); err != nil {
			return err
		}
		p.Detail = d
	case PointMarkRounding:
		var d MarkRoundingDetail
		if err := json.Unmarshal(raw.Detail, &d); err != nil {
			return err
		}
		p.Detail = d
	default:
		return fmt.Errorf("unknown strategy point type %q", raw.Type)
	}
	return nil
}

// StrategyResult groups detected points by variant. AllPoints is the union
// sorted by time.
type StrategyResult struct {
	AllPoints      []StrategyPoint `json:"all_points"`
	WindShifts     []StrategyPoint `json:"wind_shifts"`
	TackPoints     []StrategyPoint `json:"tack_points"`
	LaylinePoints  []StrategyPoint `json:"layline_points"`
	PointCount     int             `json:"point_count"`
	WindShiftCount int             `json:"wind_shift_count"`
	TackPointCount int             `json:"tack_point_count"`
	LaylineCount   int             `json:"layline_count"`
	Err            string          `json:"error,omitempty"`
}
