package collector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/pkg/config"
)

// WeatherSample is one weather observation in metric units
type WeatherSample struct {
	Temperature    float64 `json:"temperature"`     // °C
	Humidity       float64 `json:"humidity"`        // %
	WindSpeed      float64 `json:"wind_speed"`      // km/h
	LightIntensity float64 `json:"light_intensity"` // visibility used as a lux proxy
	Rainfall       float64 `json:"rainfall"`        // mm over the last hour
}

type weatherResponse struct {
	Main *struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Wind *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Visibility *float64           `json:"visibility"`
	Rain       map[string]float64 `json:"rain"`
}

// WeatherClient fetches current conditions from an OpenWeatherMap-compatible API
type WeatherClient struct {
	httpClient *resty.Client
	endpoint   string
	apiKey     string
	units      string
	logger     *zap.Logger
}

// NewWeatherClient creates a client with a bounded timeout and no retries
func NewWeatherClient(cfg config.WeatherConfig, logger *zap.Logger) *WeatherClient {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &WeatherClient{
		httpClient: client,
		endpoint:   cfg.BaseURL,
		apiKey:     cfg.APIKey,
		units:      cfg.Units,
		logger:     logger,
	}
}

// Current returns the weather at the given coordinates.
// All failures wrap ErrUpstreamUnavailable.
func (c *WeatherClient) Current(ctx context.Context, lat, lon float64) (*WeatherSample, error) {
	var body weatherResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   strconv.FormatFloat(lat, 'f', -1, 64),
			"lon":   strconv.FormatFloat(lon, 'f', -1, 64),
			"appid": c.apiKey,
			"units": c.units,
		}).
		SetResult(&body).
		ForceContentType("application/json").
		Get(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: weather request: %w", ErrUpstreamUnavailable, err)
	}
	if resp.IsError() {
		c.logger.Warn("weather provider returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", truncate(resp.String(), 200)),
		)
		return nil, fmt.Errorf("%w: weather provider status %d", ErrUpstreamUnavailable, resp.StatusCode())
	}

	return parseWeather(&body)
}

func parseWeather(body *weatherResponse) (*WeatherSample, error) {
	if body.Main == nil || body.Main.Temp == nil || body.Main.Humidity == nil {
		return nil, fmt.Errorf("%w: weather response missing main.temp/main.humidity", ErrUpstreamUnavailable)
	}
	if body.Wind == nil || body.Wind.Speed == nil {
		return nil, fmt.Errorf("%w: weather response missing wind.speed", ErrUpstreamUnavailable)
	}

	sample := &WeatherSample{
		Temperature: *body.Main.Temp,
		Humidity:    *body.Main.Humidity,
		WindSpeed:   *body.Wind.Speed * 3.6,
	}
	if body.Visibility != nil {
		sample.LightIntensity = *body.Visibility
	}
	if rain, ok := body.Rain["1h"]; ok {
		sample.Rainfall = rain
	}
	return sample, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
