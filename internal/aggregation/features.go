package aggregation

import (
	"github.com/smukkama/hive-monitor/internal/database"
)

// Foraging and thermal-stress thresholds on weather conditions
const (
	ForagingMinTemp  = 15.0   // °C, exclusive
	ForagingMaxWind  = 25.0   // km/h, exclusive
	ForagingMinLight = 1000.0 // lux proxy, exclusive
	StressHighTemp   = 35.0   // °C, exclusive
	StressLowTemp    = 18.0   // °C, exclusive
)

// DeriveRecord fills the derived fields of r from its measured fields.
// Estimated proxy fields are left untouched.
func DeriveRecord(r *database.SynchronizedRecord) {
	r.TempDifferential = Differential(r.SensorTemperature, r.WeatherTemperature)
	r.HumidityDifferential = Differential(r.SensorHumidity, r.WeatherHumidity)
	r.FavorableForaging = FavorableForaging(r.WeatherTemperature, r.WeatherRainfall, r.WeatherWindSpeed, r.WeatherLightIntensity)
	r.ThermalStress = ThermalStress(r.WeatherTemperature)
	r.SoundActivity = RecordSoundActivity(r.SensorSound)
}

// Differential returns hive - outside, or nil if either side is missing
func Differential(hive, outside *float64) *float64 {
	if hive == nil || outside == nil {
		return nil
	}
	d := *hive - *outside
	return &d
}

// FavorableForaging is temp>15 and no rain and wind<25 and light>1000.
// Nil when any input is missing.
func FavorableForaging(temp, rain, wind, light *float64) *bool {
	if temp == nil || rain == nil || wind == nil || light == nil {
		return nil
	}
	ok := *temp > ForagingMinTemp && *rain == 0 && *wind < ForagingMaxWind && *light > ForagingMinLight
	return &ok
}

// ThermalStress is temp>35 or temp<18. Nil when temperature is missing.
func ThermalStress(temp *float64) *bool {
	if temp == nil {
		return nil
	}
	stressed := *temp > StressHighTemp || *temp < StressLowTemp
	return &stressed
}

// RecordSoundActivity scales a single sound reading onto [0,1] on a fixed 0-100 dB scale.
// Window-relative activity is computed by NormalizeSound.
func RecordSoundActivity(sound *float64) *float64 {
	if sound == nil {
		return nil
	}
	a := *sound / 100
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}
	return &a
}

// NormalizeSound min-max normalizes the sound readings of records onto [0,1].
// Records without sound map to nil. When all readings are equal every value is 0.
func NormalizeSound(records []*database.SynchronizedRecord) []*float64 {
	out := make([]*float64, len(records))

	var lo, hi float64
	seen := false
	for _, r := range records {
		if r.SensorSound == nil {
			continue
		}
		s := *r.SensorSound
		if !seen || s < lo {
			lo = s
		}
		if !seen || s > hi {
			hi = s
		}
		seen = true
	}

	for i, r := range records {
		if r.SensorSound == nil {
			continue
		}
		v := 0.0
		if hi != lo {
			v = (*r.SensorSound - lo) / (hi - lo)
		}
		out[i] = &v
	}
	return out
}
