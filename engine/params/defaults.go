package params

// Parameter keys consumed by the analysis kernels. Bounds, defaults and
// units are part of the engine's contract with its UIs.
const (
	KeyMinSpeedThreshold  = "min_speed_threshold"
	KeyUpwindThreshold    = "upwind_threshold"
	KeyDownwindThreshold  = "downwind_threshold"
	KeyMinTackAngleChange = "min_tack_angle_change"
	KeyWindSmoothingWin   = "wind_smoothing_window"

	KeyMinWindShiftAngle    = "min_wind_shift_angle"
	KeyWindForecastInterval = "wind_forecast_interval"
	KeyTackSearchRadius     = "tack_search_radius"
	KeyMinVMGImprovement    = "min_vmg_improvement"
	KeyLaylineSafetyMargin  = "layline_safety_margin"

	KeyPerformanceWindowSize  = "performance_window_size"
	KeyVMGReferenceEnabled    = "vmg_reference_enabled"
	KeyManeuverAnalysisEnable = "maneuver_analysis_enabled"

	KeySmoothingWindowSize = "smoothing_window_size"
	KeyOutlierThreshold    = "outlier_threshold"
	KeyMinDataPoints       = "min_data_points"
)

func fptr(v float64) *float64 { return &v }

func registerDefaults(r *Registry) {
	defs := []Definition{
		// wind_estimation
		{
			Key: KeyMinSpeedThreshold, DisplayName: "Minimum speed threshold",
			Description: "Speeds below this are too noisy to inform the wind estimate",
			Default:     2.0, ValueType: TypeFloat, Min: fptr(0.1), Max: fptr(10.0), Unit: "kn",
			Namespace: NamespaceWindEstimation, Category: "basic", UIOrder: 1,
		},
		{
			Key: KeyUpwindThreshold, DisplayName: "Upwind angle threshold",
			Description: "Relative wind angles at or below this count as upwind sailing",
			Default:     45.0, ValueType: TypeFloat, Min: fptr(30.0), Max: fptr(60.0), Unit: "deg",
			Namespace: NamespaceWindEstimation, Category: "thresholds", UIOrder: 2,
		},
		{
			Key: KeyDownwindThreshold, DisplayName: "Downwind angle threshold",
			Description: "Relative wind angles at or above this count as downwind sailing",
			Default:     120.0, ValueType: TypeFloat, Min: fptr(90.0), Max: fptr(150.0), Unit: "deg",
			Namespace: NamespaceWindEstimation, Category: "thresholds", UIOrder: 3,
		},
		{
			Key: KeyMinTackAngleChange, DisplayName: "Minimum maneuver heading change",
			Description: "Smallest heading change recognized as a tack or jibe",
			Default:     60.0, ValueType: TypeFloat, Min: fptr(30.0), Max: fptr(120.0), Unit: "deg",
			Namespace: NamespaceWindEstimation, Category: "maneuvers", UIOrder: 4,
		},
		{
			Key: KeyWindSmoothingWin, DisplayName: "Wind smoothing window",
			Description: "Moving-average window for the instantaneous wind direction series",
			Default:     5, ValueType: TypeInt, Min: fptr(1), Max: fptr(20),
			Namespace: NamespaceWindEstimation, Category: "advanced", UIOrder: 10, UIAdvanced: true,
		},

		// strategy_detection
		{
			Key: KeyMinWindShiftAngle, DisplayName: "Minimum wind shift angle",
			Description: "Smallest sustained direction change reported as a shift",
			Default:     5.0, ValueType: TypeFloat, Min: fptr(1.0), Max: fptr(30.0), Unit: "deg",
			Namespace: NamespaceStrategyDetection, Category: "wind_shifts", UIOrder: 1,
		},
		{
			Key: KeyWindForecastInterval, DisplayName: "Wind forecast interval",
			Description: "Horizon used when projecting the wind field forward",
			Default:     300, ValueType: TypeInt, Min: fptr(60), Max: fptr(1800), Unit: "s",
			Namespace: NamespaceStrategyDetection, Category: "forecast", UIOrder: 2,
		},
		{
			Key: KeyTackSearchRadius, DisplayName: "Tack search radius",
			Description: "Minimum spacing between reported tack opportunities",
			Default:     500, ValueType: TypeInt, Min: fptr(100), Max: fptr(2000), Unit: "m",
			Namespace: NamespaceStrategyDetection, Category: "tacks", UIOrder: 3,
		},
		{
			Key: KeyMinVMGImprovement, DisplayName: "Minimum VMG improvement",
			Description: "Fractional VMG gain required to suggest switching tack",
			Default:     0.05, ValueType: TypeFloat, Min: fptr(0.01), Max: fptr(0.2),
			Namespace: NamespaceStrategyDetection, Category: "tacks", UIOrder: 4,
		},
		{
			Key: KeyLaylineSafetyMargin, DisplayName: "Layline safety margin",
			Description: "Angular margin added around the optimal layline approach",
			Default:     10.0, ValueType: TypeFloat, Min: fptr(0.0), Max: fptr(30.0), Unit: "deg",
			Namespace: NamespaceStrategyDetection, Category: "laylines", UIOrder: 5,
		},

		// performance_analysis
		{
			Key: KeyPerformanceWindowSize, DisplayName: "Performance window size",
			Description: "Moving window for time-series smoothing",
			Default:     10, ValueType: TypeInt, Min: fptr(1), Max: fptr(50),
			Namespace: NamespacePerformanceAnalysis, Category: "basic", UIOrder: 1,
		},
		{
			Key: KeyVMGReferenceEnabled, DisplayName: "Compare VMG against polars",
			Description: "Score achieved VMG against the boat-type polar optimum",
			Default:     true, ValueType: TypeBool,
			Namespace: NamespacePerformanceAnalysis, Category: "vmg", UIOrder: 2,
		},
		{
			Key: KeyManeuverAnalysisEnable, DisplayName: "Analyze maneuvers",
			Description: "Include tack and jibe efficiency in the analysis",
			Default:     true, ValueType: TypeBool,
			Namespace: NamespacePerformanceAnalysis, Category: "maneuvers", UIOrder: 3,
		},

		// data_processing
		{
			Key: KeySmoothingWindowSize, DisplayName: "Smoothing window size",
			Description: "Moving-average window applied to speed during preprocessing",
			Default:     3, ValueType: TypeInt, Min: fptr(1), Max: fptr(20),
			Namespace: NamespaceDataProcessing, Category: "preprocess", UIOrder: 1,
		},
		{
			Key: KeyOutlierThreshold, DisplayName: "Outlier threshold",
			Description: "Speeds further than this many standard deviations from the mean are dropped",
			Default:     3.0, ValueType: TypeFloat, Min: fptr(1.0), Max: fptr(10.0), Unit: "sigma",
			Namespace: NamespaceDataProcessing, Category: "preprocess", UIOrder: 2,
		},
		{
			Key: KeyMinDataPoints, DisplayName: "Minimum data points",
			Description: "Minimum samples required for any analysis to run",
			Default:     10, ValueType: TypeInt, Min: fptr(5), Max: fptr(100),
			Namespace: NamespaceDataProcessing, Category: "validation", UIOrder: 3,
		},

		// visualization
		{
			Key: "map_tile_provider", DisplayName: "Map tile provider",
			Description: "Tile source used by map views",
			Default:     "OpenStreetMap", ValueType: TypeString,
			AllowedValues: []any{"OpenStreetMap", "CartoDB", "Stamen"},
			Namespace:     NamespaceVisualization, Category: "map", UIOrder: 1,
		},
		{
			Key: "track_line_width", DisplayName: "Track line width",
			Description: "Stroke width of the rendered track",
			Default:     2, ValueType: TypeInt, Min: fptr(1), Max: fptr(10),
			Namespace: NamespaceVisualization, Category: "style", UIOrder: 2,
		},
		{
			Key: "track_line_color", DisplayName: "Track line color",
			Description: "Stroke color of the rendered track",
			Default:     "#0066CC", ValueType: TypeString,
			Namespace: NamespaceVisualization, Category: "style", UIOrder: 3,
		},
		{
			Key: "show_wind_arrows", DisplayName: "Show wind arrows",
			Description: "Overlay wind direction arrows on the map",
			Default:     true, ValueType: TypeBool,
			Namespace: NamespaceVisualization, Category: "wind", UIOrder: 4,
		},

		// general
		{
			Key: "data_sync_interval", DisplayName: "Data sync interval",
			Description: "Seconds between automatic state saves",
			Default:     60, ValueType: TypeInt, Min: fptr(10), Max: fptr(3600), Unit: "s",
			Namespace: NamespaceGeneral, Category: "system", UIOrder: 1,
		},
		{
			Key: "debug_mode", DisplayName: "Debug mode",
			Description: "Enable verbose diagnostic logging",
			Default:     false, ValueType: TypeBool,
			Namespace: NamespaceGeneral, Category: "system", UIOrder: 2,
		},
	}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			// Defaults are static; a failure here is a programming error.
			panic(err)
		}
	}
	registerDefaultPresets(r)
}

func registerDefaultPresets(r *Registry) {
	presets := []*Preset{
		NewPreset("wind_estimation_standard", "Standard wind estimation",
			"Settings suited to typical sailing conditions",
			NamespaceWindEstimation, map[string]any{
				KeyMinSpeedThreshold:  2.0,
				KeyUpwindThreshold:    45.0,
				KeyDownwindThreshold:  120.0,
				KeyMinTackAngleChange: 60.0,
				KeyWindSmoothingWin:   5,
			}, []string{"standard"}),
		NewPreset("wind_estimation_light", "Light air",
			"Tuned for low wind speeds where boat speed is unreliable",
			NamespaceWindEstimation, map[string]any{
				KeyMinSpeedThreshold:  1.0,
				KeyUpwindThreshold:    50.0,
				KeyDownwindThreshold:  130.0,
				KeyMinTackAngleChange: 70.0,
				KeyWindSmoothingWin:   8,
			}, []string{"light_air", "conditions"}),
		NewPreset("wind_estimation_strong", "Strong breeze",
			"Tuned for heavy air with fast, tight maneuvers",
			NamespaceWindEstimation, map[string]any{
				KeyMinSpeedThreshold:  3.0,
				KeyUpwindThreshold:    40.0,
				KeyDownwindThreshold:  110.0,
				KeyMinTackAngleChange: 50.0,
				KeyWindSmoothingWin:   3,
			}, []string{"strong_breeze", "conditions"}),
		NewPreset("strategy_detection_standard", "Standard strategy detection",
			"Settings suited to typical race analysis",
			NamespaceStrategyDetection, map[string]any{
				KeyMinWindShiftAngle:    5.0,
				KeyWindForecastInterval: 300,
				KeyTackSearchRadius:     500,
				KeyMinVMGImprovement:    0.05,
				KeyLaylineSafetyMargin:  10.0,
			}, []string{"standard"}),
		NewPreset("strategy_detection_sensitive", "Shift sensitive",
			"Reports smaller wind shifts and marginal tack opportunities",
			NamespaceStrategyDetection, map[string]any{
				KeyMinWindShiftAngle:    3.0,
				KeyWindForecastInterval: 180,
				KeyTackSearchRadius:     600,
				KeyMinVMGImprovement:    0.03,
				KeyLaylineSafetyMargin:  15.0,
			}, []string{"sensitive", "detailed"}),
		NewPreset("performance_analysis_standard", "Standard performance analysis",
			"Settings suited to routine training analysis",
			NamespacePerformanceAnalysis, map[string]any{
				KeyPerformanceWindowSize:  10,
				KeyVMGReferenceEnabled:    true,
				KeyManeuverAnalysisEnable: true,
			}, []string{"standard", "training"}),
		NewPreset("performance_analysis_detailed", "Detailed performance analysis",
			"Shorter smoothing window for fine-grained inspection",
			NamespacePerformanceAnalysis, map[string]any{
				KeyPerformanceWindowSize:  5,
				KeyVMGReferenceEnabled:    true,
				KeyManeuverAnalysisEnable: true,
			}, []string{"detailed", "advanced"}),
	}
	for _, p := range presets {
		r.AddPreset(p)
	}
}
