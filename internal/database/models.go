package database

import (
	"time"
)

// Hive represents a monitored beehive
type Hive struct {
	ID        int
	Name      string
	Lat       *float64
	Lon       *float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CollectionCycle is one timestamped attempt to gather weather and sensor data for a hive
type CollectionCycle struct {
	ID                  int64
	HiveID              int
	CollectionTimestamp time.Time
	WeatherSuccess      bool
	SensorSuccess       bool
	WeatherCalls        int
	SensorCalls         int
	SkippedCalls        int
	Errors              []string
}

// SynchronizedRecord merges weather and sensor samples taken under one timestamp.
// Every measurement is nullable; a missing source leaves its fields nil.
type SynchronizedRecord struct {
	ID                  int64     `json:"id"`
	CycleID             int64     `json:"cycle_id"`
	HiveID              int       `json:"hive_id"`
	CollectionTimestamp time.Time `json:"collection_timestamp"`

	WeatherTemperature    *float64 `json:"weather_temperature"`
	WeatherHumidity       *float64 `json:"weather_humidity"`
	WeatherWindSpeed      *float64 `json:"weather_wind_speed"`
	WeatherLightIntensity *float64 `json:"weather_light_intensity"`
	WeatherRainfall       *float64 `json:"weather_rainfall"`

	SensorTemperature *float64 `json:"sensor_temperature"`
	SensorHumidity    *float64 `json:"sensor_humidity"`
	SensorSound       *float64 `json:"sensor_sound"`
	SensorWeight      *float64 `json:"sensor_weight"`

	// SensorStatus keeps non-numeric feed values keyed by metric name.
	SensorStatus map[string]string `json:"sensor_status,omitempty"`

	TempDifferential     *float64 `json:"temp_differential"`
	HumidityDifferential *float64 `json:"humidity_differential"`
	FavorableForaging    *bool    `json:"favorable_foraging"`
	ThermalStress        *bool    `json:"thermal_stress"`
	// Sound on a fixed 0-100 dB scale. Window-relative activity is derived at aggregation time.
	SoundActivity        *float64 `json:"sound_activity"`

	// Estimated proxies, not physical measurements.
	VibrationHz        *float64 `json:"vibration_hz"`
	VibrationVariance  *float64 `json:"vibration_variance"`
	SoundPeakFrequency *float64 `json:"sound_peak_frequency"`

	CreatedAt time.Time `json:"created_at"`
}

// DataQualityScore returns the percentage of weather and sensor fields present.
func (r *SynchronizedRecord) DataQualityScore() float64 {
	fields := []*float64{
		r.WeatherTemperature, r.WeatherHumidity, r.WeatherWindSpeed,
		r.WeatherLightIntensity, r.WeatherRainfall,
		r.SensorTemperature, r.SensorHumidity, r.SensorSound, r.SensorWeight,
	}
	present := 0
	for _, f := range fields {
		if f != nil {
			present++
		}
	}
	return float64(present) / float64(len(fields)) * 100
}

// IsAligned reports whether both weather and hive temperatures were captured.
func (r *SynchronizedRecord) IsAligned() bool {
	return r.WeatherTemperature != nil && r.SensorTemperature != nil
}

// WeeklyAggregate is the materialized hive-week feature vector
type WeeklyAggregate struct {
	HiveID           int                `json:"hive_id"`
	ISOYear          int                `json:"iso_year"`
	ISOWeek          int                `json:"iso_week"`
	WeekStart        time.Time          `json:"week_start"`
	WeekEnd          time.Time          `json:"week_end"`
	DataPoints       int                `json:"data_points"`
	WeightChangePct  float64            `json:"weight_change_pct"`
	PerformanceLevel int                `json:"performance_level"`
	Features         map[string]float64 `json:"features"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// AlignmentStats summarizes how often both sources were captured together
type AlignmentStats struct {
	TotalRecords      int     `json:"total_records"`
	PerfectlyAligned  int     `json:"perfectly_aligned"`
	WeatherOnly       int     `json:"weather_only"`
	SensorOnly        int     `json:"sensor_only"`
	AlignmentRatePct  float64 `json:"alignment_rate_pct"`
	AverageQualityPct float64 `json:"average_quality_pct"`
}
