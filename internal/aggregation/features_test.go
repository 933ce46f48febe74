package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/hive-monitor/internal/database"
)

func TestFavorableForaging(t *testing.T) {
	tests := []struct {
		name                    string
		temp, rain, wind, light *float64
		want                    *bool
	}{
		{"all favorable", num(20), num(0), num(10), num(2000), boolPtr(true)},
		{"too cold", num(15), num(0), num(10), num(2000), boolPtr(false)},
		{"raining", num(20), num(0.2), num(10), num(2000), boolPtr(false)},
		{"windy", num(20), num(0), num(25), num(2000), boolPtr(false)},
		{"dark", num(20), num(0), num(10), num(1000), boolPtr(false)},
		{"missing light", num(20), num(0), num(10), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FavorableForaging(tt.temp, tt.rain, tt.wind, tt.light))
		})
	}
}

func TestThermalStress(t *testing.T) {
	assert.Equal(t, boolPtr(true), ThermalStress(num(36)))
	assert.Equal(t, boolPtr(true), ThermalStress(num(17.9)))
	assert.Equal(t, boolPtr(false), ThermalStress(num(35)))
	assert.Equal(t, boolPtr(false), ThermalStress(num(18)))
	assert.Nil(t, ThermalStress(nil))
}

func TestDeriveRecord(t *testing.T) {
	r := &database.SynchronizedRecord{
		WeatherTemperature:    num(29),
		WeatherHumidity:       num(80),
		WeatherWindSpeed:      num(12),
		WeatherLightIntensity: num(8000),
		WeatherRainfall:       num(0),
		SensorTemperature:     num(35),
		SensorHumidity:        num(62),
		SensorSound:           num(150),
	}

	DeriveRecord(r)

	require.NotNil(t, r.TempDifferential)
	assert.Equal(t, 6.0, *r.TempDifferential)
	assert.Equal(t, -18.0, *r.HumidityDifferential)
	assert.True(t, *r.FavorableForaging)
	assert.False(t, *r.ThermalStress)
	assert.Equal(t, 1.0, *r.SoundActivity)
}

func TestDeriveRecord_MissingSide(t *testing.T) {
	r := &database.SynchronizedRecord{SensorTemperature: num(35)}

	DeriveRecord(r)

	assert.Nil(t, r.TempDifferential)
	assert.Nil(t, r.HumidityDifferential)
	assert.Nil(t, r.FavorableForaging)
	assert.Nil(t, r.ThermalStress)
	assert.Nil(t, r.SoundActivity)
}

func TestNormalizeSound(t *testing.T) {
	records := []*database.SynchronizedRecord{
		{SensorSound: num(50)},
		{SensorSound: nil},
		{SensorSound: num(100)},
		{SensorSound: num(75)},
	}

	got := NormalizeSound(records)

	require.Len(t, got, 4)
	assert.Equal(t, 0.0, *got[0])
	assert.Nil(t, got[1])
	assert.Equal(t, 1.0, *got[2])
	assert.Equal(t, 0.5, *got[3])
}

func TestNormalizeSound_Constant(t *testing.T) {
	records := []*database.SynchronizedRecord{
		{SensorSound: num(62)},
		{SensorSound: num(62)},
		{SensorSound: num(62)},
	}

	for _, v := range NormalizeSound(records) {
		require.NotNil(t, v)
		assert.Equal(t, 0.0, *v)
	}
}

func TestSoundActivity_StoredScaleVersusWindow(t *testing.T) {
	quiet := &database.SynchronizedRecord{SensorSound: num(40)}
	loud := &database.SynchronizedRecord{SensorSound: num(80)}
	DeriveRecord(quiet)
	DeriveRecord(loud)

	// Stored value depends only on the record itself.
	assert.InDelta(t, 0.4, *quiet.SoundActivity, 1e-9)
	assert.InDelta(t, 0.8, *loud.SoundActivity, 1e-9)

	// Window normalization depends on the neighbours.
	alone := NormalizeSound([]*database.SynchronizedRecord{quiet, loud})
	assert.Equal(t, 0.0, *alone[0])
	assert.Equal(t, 1.0, *alone[1])

	louder := &database.SynchronizedRecord{SensorSound: num(120)}
	wider := NormalizeSound([]*database.SynchronizedRecord{quiet, loud, louder})
	assert.InDelta(t, 0.5, *wider[1], 1e-9)
	assert.InDelta(t, 0.8, *loud.SoundActivity, 1e-9)
}

func boolPtr(b bool) *bool { return &b }
