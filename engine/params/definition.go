// Package params implements the typed parameter registry shared by the
// analysis kernels: definitions with validation, current values grouped by
// namespace, presets, change notification, and persistence through the
// storage port.
package params

import (
	"errors"
	"fmt"
	"math"
)

// Namespace groups parameters by the subsystem that consumes them.
type Namespace string

const (
	NamespaceWindEstimation      Namespace = "wind_estimation"
	NamespaceStrategyDetection   Namespace = "strategy_detection"
	NamespacePerformanceAnalysis Namespace = "performance_analysis"
	NamespaceDataProcessing      Namespace = "data_processing"
	NamespaceVisualization       Namespace = "visualization"
	NamespaceGeneral             Namespace = "general"
)

// Namespaces returns every known namespace in registration order.
func Namespaces() []Namespace {
	return []Namespace{
		NamespaceWindEstimation,
		NamespaceStrategyDetection,
		NamespacePerformanceAnalysis,
		NamespaceDataProcessing,
		NamespaceVisualization,
		NamespaceGeneral,
	}
}

// ValueType is the declared type of a parameter value.
type ValueType string

const (
	TypeInt    ValueType = "int"
	TypeFloat  ValueType = "float"
	TypeBool   ValueType = "bool"
	TypeString ValueType = "str"
	TypeList   ValueType = "list"
	TypeMap    ValueType = "map"
)

// Definition declares a parameter: its type, bounds, namespace and UI
// hints. Definitions are registered at construction time and immutable
// afterwards; only current values change.
type Definition struct {
	Key           string    `json:"key"`
	DisplayName   string    `json:"display_name"`
	Description   string    `json:"description"`
	Default       any       `json:"default"`
	ValueType     ValueType `json:"value_type"`
	Min           *float64  `json:"min,omitempty"`
	Max           *float64  `json:"max,omitempty"`
	AllowedValues []any     `json:"allowed_values,omitempty"`
	Unit          string    `json:"unit,omitempty"`
	Namespace     Namespace `json:"namespace"`
	Category      string    `json:"category,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	UIOrder       int       `json:"ui_order"`
	UIAdvanced    bool      `json:"ui_advanced,omitempty"`
	UIHidden      bool      `json:"ui_hidden,omitempty"`
}

// ErrUnknownParameter reports a key with no registered definition.
var ErrUnknownParameter = errors.New("unknown parameter")

// ErrInvalidValue reports a value rejected by a definition's constraints.
var ErrInvalidValue = errors.New("invalid parameter value")

// Validate reports whether v satisfies the definition: type match, numeric
// bounds when set, and membership in AllowedValues when set. Integer
// values are accepted for float parameters; floats with an integral value
// are accepted for int parameters (JSON decoding yields float64 for all
// numbers).
func (d *Definition) Validate(v any) bool {
	switch d.ValueType {
	case TypeInt:
		n, ok := asInt(v)
		if !ok {
			return false
		}
		return d.inBounds(float64(n)) && d.allowed(v)
	case TypeFloat:
		f, ok := asFloat(v)
		if !ok {
			return false
		}
		return d.inBounds(f) && d.allowed(v)
	case TypeBool:
		_, ok := v.(bool)
		return ok && d.allowed(v)
	case TypeString:
		_, ok := v.(string)
		return ok && d.allowed(v)
	case TypeList:
		switch v.(type) {
		case []any, []string, []float64, []int:
			return true
		}
		return false
	case TypeMap:
		switch v.(type) {
		case map[string]any:
			return true
		}
		return false
	}
	// Unknown declared types accept anything, matching lenient loads of
	// files written by newer versions.
	return true
}

func (d *Definition) inBounds(v float64) bool {
	if d.Min != nil && v < *d.Min {
		return false
	}
	if d.Max != nil && v > *d.Max {
		return false
	}
	return true
}

func (d *Definition) allowed(v any) bool {
	if d.AllowedValues == nil {
		return true
	}
	for _, a := range d.AllowedValues {
		if valuesEqual(a, v) {
			return true
		}
	}
	return false
}

// Normalize converts a validated value into the definition's canonical Go
// representation (int64 for int parameters, float64 for float parameters).
func (d *Definition) Normalize(v any) any {
	switch d.ValueType {
	case TypeInt:
		if n, ok := asInt(v); ok {
			return n
		}
	case TypeFloat:
		if f, ok := asFloat(v); ok {
			return f
		}
	}
	return v
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), true
		}
	case float32:
		if float64(n) == math.Trunc(float64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func valuesEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

// validateDefinition enforces the registration invariant: the default must
// pass the definition's own Validate.
func validateDefinition(d Definition) error {
	if d.Key == "" {
		return fmt.Errorf("parameter definition missing key")
	}
	if !d.Validate(d.Default) {
		return fmt.Errorf("parameter %q: default %v fails validation: %w", d.Key, d.Default, ErrInvalidValue)
	}
	return nil
}
