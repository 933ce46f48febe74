package aggregation

import (
	"math"
	"sort"
	"time"

	"github.com/smukkama/hive-monitor/internal/database"
)

// DefaultMinRecords is the smallest group that yields a weekly aggregate
const DefaultMinRecords = 100

// ActivityRatioEpsilon keeps the day/night ratio finite when the night bucket is empty or silent
const ActivityRatioEpsilon = 0.001

// Feature names. FeatureColumns lists the subset, in order, that performance models consume.
const (
	FeatAvgWeatherTemp         = "avg_weather_temp"
	FeatMinWeatherTemp         = "min_weather_temp"
	FeatMaxWeatherTemp         = "max_weather_temp"
	FeatAvgWeatherHumidity     = "avg_weather_humidity"
	FeatMinWeatherHumidity     = "min_weather_humidity"
	FeatMaxWeatherHumidity     = "max_weather_humidity"
	FeatAvgWeatherWind         = "avg_weather_wind"
	FeatMaxWeatherWind         = "max_weather_wind"
	FeatAvgWeatherLight        = "avg_weather_light"
	FeatMaxWeatherLight        = "max_weather_light"
	FeatTotalWeatherRainfall   = "total_weather_rainfall"
	FeatAvgSensorTemp          = "avg_sensor_temp"
	FeatStdSensorTemp          = "std_sensor_temp"
	FeatMinSensorTemp          = "min_sensor_temp"
	FeatMaxSensorTemp          = "max_sensor_temp"
	FeatAvgSensorHumidity      = "avg_sensor_humidity"
	FeatMinSensorHumidity      = "min_sensor_humidity"
	FeatMaxSensorHumidity      = "max_sensor_humidity"
	FeatAvgSensorSound         = "avg_sensor_sound"
	FeatMinSensorSound         = "min_sensor_sound"
	FeatMaxSensorSound         = "max_sensor_sound"
	FeatStartWeight            = "start_weight"
	FeatEndWeight              = "end_weight"
	FeatAvgWeight              = "avg_weight"
	FeatMinWeight              = "min_weight"
	FeatMaxWeight              = "max_weight"
	FeatWeightChangeAbs        = "weight_change_abs"
	FeatWeightChangePct        = "weight_change_pct"
	FeatAvgTempDifferential    = "avg_temp_differential"
	FeatMaxTempDifferential    = "max_temp_differential"
	FeatMinTempDifferential    = "min_temp_differential"
	FeatAvgHumidityDiff        = "avg_humidity_differential"
	FeatPctFavorableForaging   = "pct_favorable_foraging"
	FeatTotalForagingMinutes   = "total_favorable_foraging_minutes"
	FeatPctThermalStress       = "pct_thermal_stress"
	FeatTotalStressMinutes     = "total_thermal_stress_minutes"
	FeatSoundActivityDaytime   = "avg_sound_activity_daytime"
	FeatSoundActivityNighttime = "avg_sound_activity_nighttime"
	FeatSoundActivityRatio     = "sound_activity_ratio"
	FeatAvgTempVariance        = "avg_temp_variance"
	FeatMaxTempVariance        = "max_temp_variance"
	FeatPeakActivityHour       = "peak_activity_hour"
	FeatActivityMorning        = "activity_morning"
	FeatActivityAfternoon      = "activity_afternoon"
	FeatActivityEvening        = "activity_evening"
	FeatMonth                  = "month"
	FeatYalaSeason             = "yala_season"
	FeatMahaSeason             = "maha_season"
)

// FeatureColumns is the default model input order
var FeatureColumns = []string{
	FeatAvgWeatherTemp, FeatMinWeatherTemp, FeatMaxWeatherTemp,
	FeatAvgWeatherHumidity, FeatAvgWeatherWind,
	FeatAvgWeatherLight, FeatTotalWeatherRainfall,

	FeatAvgSensorTemp, FeatStdSensorTemp, FeatMinSensorTemp, FeatMaxSensorTemp,
	FeatAvgSensorHumidity,
	FeatAvgSensorSound, FeatMaxSensorSound,

	FeatStartWeight, FeatEndWeight, FeatAvgWeight, FeatMinWeight, FeatMaxWeight,

	FeatAvgTempDifferential, FeatMaxTempDifferential, FeatMinTempDifferential,
	FeatAvgHumidityDiff,

	FeatPctFavorableForaging, FeatTotalForagingMinutes,
	FeatPctThermalStress, FeatTotalStressMinutes,

	FeatSoundActivityDaytime, FeatSoundActivityNighttime, FeatSoundActivityRatio,

	FeatAvgTempVariance, FeatMaxTempVariance,

	FeatPeakActivityHour,

	FeatMonth, FeatYalaSeason, FeatMahaSeason,
}

// Aggregate is a statistical summary of a group of records
type Aggregate struct {
	HiveID           int
	ISOYear          int
	ISOWeek          int
	WeekStart        time.Time
	WeekEnd          time.Time
	DataPoints       int
	Features         map[string]float64
	WeightChangePct  float64
	PerformanceLevel int
	// LowConfidence marks a serving-time aggregate backed by fewer records than the floor.
	LowConfidence bool
}

// Record converts the aggregate to its persisted form
func (a *Aggregate) Record() *database.WeeklyAggregate {
	return &database.WeeklyAggregate{
		HiveID:           a.HiveID,
		ISOYear:          a.ISOYear,
		ISOWeek:          a.ISOWeek,
		WeekStart:        a.WeekStart,
		WeekEnd:          a.WeekEnd,
		DataPoints:       a.DataPoints,
		WeightChangePct:  a.WeightChangePct,
		PerformanceLevel: a.PerformanceLevel,
		Features:         a.Features,
	}
}

// Aggregator rolls synchronized records into weekly feature vectors
type Aggregator struct {
	MinRecords int
	// Location is used for hour-of-day and month features. Defaults to UTC.
	Location *time.Location
}

// NewAggregator creates an aggregator with the given record floor
func NewAggregator(minRecords int, loc *time.Location) *Aggregator {
	if minRecords <= 0 {
		minRecords = DefaultMinRecords
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{MinRecords: minRecords, Location: loc}
}

type weekKey struct {
	hive, year, week int
}

// Weekly groups records by (hive, ISO year, ISO week) and aggregates every group
// backed by at least MinRecords records. Sound activity is normalized over all
// records passed in. Results are ordered by hive, year, week.
func (a *Aggregator) Weekly(records []*database.SynchronizedRecord) []*Aggregate {
	sorted := sortedCopy(records)
	activity := NormalizeSound(sorted)
	meanSensorTemp := sensorTempMean(sorted)

	groups := make(map[weekKey][]int)
	var keys []weekKey
	for i, r := range sorted {
		year, week := r.CollectionTimestamp.In(a.Location).ISOWeek()
		k := weekKey{hive: r.HiveID, year: year, week: week}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].hive != keys[j].hive {
			return keys[i].hive < keys[j].hive
		}
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].week < keys[j].week
	})

	var out []*Aggregate
	for _, k := range keys {
		idx := groups[k]
		if len(idx) < a.MinRecords {
			continue
		}
		group := make([]*database.SynchronizedRecord, len(idx))
		groupActivity := make([]*float64, len(idx))
		for j, i := range idx {
			group[j] = sorted[i]
			groupActivity[j] = activity[i]
		}

		agg := a.summarize(group, groupActivity, meanSensorTemp)
		agg.HiveID = k.hive
		agg.ISOYear = k.year
		agg.ISOWeek = k.week
		out = append(out, agg)
	}
	return out
}

// summarize computes the feature map for one group of records sorted by time
func (a *Aggregator) summarize(group []*database.SynchronizedRecord, activity []*float64, meanSensorTemp *float64) *Aggregate {
	var (
		wTemp, wHum, wWind, wLight, wRain series
		sTemp, sHum, sSound, sWeight      series
		tDiff, hDiff                      series
		dayAct, nightAct                  series
		tVar                              series
		morning, afternoon, evening       series
	)
	var foraging, stress int
	peakHour := 0
	var peakSound *float64

	for i, r := range group {
		wTemp.add(r.WeatherTemperature)
		wHum.add(r.WeatherHumidity)
		wWind.add(r.WeatherWindSpeed)
		wLight.add(r.WeatherLightIntensity)
		wRain.add(r.WeatherRainfall)
		sTemp.add(r.SensorTemperature)
		sHum.add(r.SensorHumidity)
		sSound.add(r.SensorSound)
		sWeight.add(r.SensorWeight)
		tDiff.add(Differential(r.SensorTemperature, r.WeatherTemperature))
		hDiff.add(Differential(r.SensorHumidity, r.WeatherHumidity))

		if f := FavorableForaging(r.WeatherTemperature, r.WeatherRainfall, r.WeatherWindSpeed, r.WeatherLightIntensity); f != nil && *f {
			foraging++
		}
		if s := ThermalStress(r.WeatherTemperature); s != nil && *s {
			stress++
		}

		hour := r.CollectionTimestamp.In(a.Location).Hour()
		if hour >= 6 && hour <= 18 {
			dayAct.add(activity[i])
		} else {
			nightAct.add(activity[i])
		}

		if r.SensorTemperature != nil && meanSensorTemp != nil {
			v := math.Abs(*r.SensorTemperature - *meanSensorTemp)
			tVar.add(&v)
		}

		if r.SensorSound != nil {
			if peakSound == nil || *r.SensorSound > *peakSound {
				peakSound = r.SensorSound
				peakHour = hour
			}
			switch {
			case hour >= 6 && hour < 12:
				morning.add(r.SensorSound)
			case hour >= 12 && hour < 18:
				afternoon.add(r.SensorSound)
			case hour >= 18 && hour < 22:
				evening.add(r.SensorSound)
			}
		}
	}

	n := float64(len(group))
	startWeight, endWeight := sWeight.first(), sWeight.last()
	changeAbs, changePct := WeightChange(startWeight, endWeight)

	dayMean, nightMean := dayAct.mean(), nightAct.mean()
	month := int(group[0].CollectionTimestamp.In(a.Location).Month())

	f := map[string]float64{
		FeatAvgWeatherTemp:         wTemp.mean(),
		FeatMinWeatherTemp:         wTemp.min(),
		FeatMaxWeatherTemp:         wTemp.max(),
		FeatAvgWeatherHumidity:     wHum.mean(),
		FeatMinWeatherHumidity:     wHum.min(),
		FeatMaxWeatherHumidity:     wHum.max(),
		FeatAvgWeatherWind:         wWind.mean(),
		FeatMaxWeatherWind:         wWind.max(),
		FeatAvgWeatherLight:        wLight.mean(),
		FeatMaxWeatherLight:        wLight.max(),
		FeatTotalWeatherRainfall:   wRain.sum(),
		FeatAvgSensorTemp:          sTemp.mean(),
		FeatStdSensorTemp:          sTemp.std(),
		FeatMinSensorTemp:          sTemp.min(),
		FeatMaxSensorTemp:          sTemp.max(),
		FeatAvgSensorHumidity:      sHum.mean(),
		FeatMinSensorHumidity:      sHum.min(),
		FeatMaxSensorHumidity:      sHum.max(),
		FeatAvgSensorSound:         sSound.mean(),
		FeatMinSensorSound:         sSound.min(),
		FeatMaxSensorSound:         sSound.max(),
		FeatStartWeight:            startWeight,
		FeatEndWeight:              endWeight,
		FeatAvgWeight:              sWeight.mean(),
		FeatMinWeight:              sWeight.min(),
		FeatMaxWeight:              sWeight.max(),
		FeatWeightChangeAbs:        changeAbs,
		FeatWeightChangePct:        changePct,
		FeatAvgTempDifferential:    tDiff.mean(),
		FeatMaxTempDifferential:    tDiff.max(),
		FeatMinTempDifferential:    tDiff.min(),
		FeatAvgHumidityDiff:        hDiff.mean(),
		FeatPctFavorableForaging:   float64(foraging) / n * 100,
		FeatTotalForagingMinutes:   float64(foraging),
		FeatPctThermalStress:       float64(stress) / n * 100,
		FeatTotalStressMinutes:     float64(stress),
		FeatSoundActivityDaytime:   dayMean,
		FeatSoundActivityNighttime: nightMean,
		FeatSoundActivityRatio:     dayMean / (nightMean + ActivityRatioEpsilon),
		FeatAvgTempVariance:        tVar.mean(),
		FeatMaxTempVariance:        tVar.max(),
		FeatPeakActivityHour:       float64(peakHour),
		FeatActivityMorning:        morning.mean(),
		FeatActivityAfternoon:      afternoon.mean(),
		FeatActivityEvening:        evening.mean(),
		FeatMonth:                  float64(month),
		FeatYalaSeason:             boolFloat(IsYalaSeason(month)),
		FeatMahaSeason:             boolFloat(IsMahaSeason(month)),
	}

	return &Aggregate{
		WeekStart:        group[0].CollectionTimestamp,
		WeekEnd:          group[len(group)-1].CollectionTimestamp,
		DataPoints:       len(group),
		Features:         f,
		WeightChangePct:  changePct,
		PerformanceLevel: PerformanceLevel(changePct),
	}
}

// WeightChange returns the absolute and percentage change from start to end.
// A non-positive start weight yields 0, 0.
func WeightChange(start, end float64) (abs, pct float64) {
	if start <= 0 {
		return 0, 0
	}
	abs = end - start
	return abs, abs / start * 100
}

// PerformanceLevel buckets a weekly weight change percentage into 1 (Excellent) .. 5 (Critical)
func PerformanceLevel(weightChangePct float64) int {
	switch {
	case weightChangePct > 3:
		return 1
	case weightChangePct >= 1:
		return 2
	case weightChangePct >= -1:
		return 3
	case weightChangePct >= -3:
		return 4
	default:
		return 5
	}
}

// IsYalaSeason reports whether month falls in the May-August monsoon
func IsYalaSeason(month int) bool {
	return month >= 5 && month <= 8
}

// IsMahaSeason reports whether month falls in the October-January monsoon
func IsMahaSeason(month int) bool {
	return month >= 10 || month == 1
}

func sortedCopy(records []*database.SynchronizedRecord) []*database.SynchronizedRecord {
	out := make([]*database.SynchronizedRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HiveID != out[j].HiveID {
			return out[i].HiveID < out[j].HiveID
		}
		return out[i].CollectionTimestamp.Before(out[j].CollectionTimestamp)
	})
	return out
}

func sensorTempMean(records []*database.SynchronizedRecord) *float64 {
	var s series
	for _, r := range records {
		s.add(r.SensorTemperature)
	}
	if len(s) == 0 {
		return nil
	}
	m := s.mean()
	return &m
}
