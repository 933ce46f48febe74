package collector

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/pkg/config"
)

// Sensor metrics fetched per cycle, one feed each.
const (
	MetricTemperature = "temperature"
	MetricHumidity    = "humidity"
	MetricSound       = "sound"
	MetricWeight      = "weight"
)

// Metrics lists the sensor metrics in fetch order
var Metrics = []string{MetricTemperature, MetricHumidity, MetricSound, MetricWeight}

// FeedName returns the feed key for a hive metric, e.g. "hive-1-temperature"
func FeedName(hiveID int, metric string) string {
	return fmt.Sprintf("hive-%d-%s", hiveID, metric)
}

// FeedValue is the latest datum of a feed. Exactly one of Value or Status is set.
type FeedValue struct {
	Value  *float64
	Status string
}

type feedDatum struct {
	Value any `json:"value"`
}

// FeedClient reads the latest value of sensor feeds
type FeedClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewFeedClient creates a client authenticating with a static key header
func NewFeedClient(cfg config.FeedConfig, logger *zap.Logger) *FeedClient {
	client := resty.New().
		SetBaseURL(cfg.FeedsURL()).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("X-AIO-Key", cfg.APIKey).
		SetHeader("Accept", "application/json")

	return &FeedClient{
		httpClient: client,
		logger:     logger,
	}
}

// Latest returns the most recent value of a feed.
// All failures wrap ErrUpstreamUnavailable.
func (c *FeedClient) Latest(ctx context.Context, feed string) (*FeedValue, error) {
	var data []feedDatum
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("feed", feed).
		SetQueryParam("limit", "1").
		SetResult(&data).
		ForceContentType("application/json").
		Get("/{feed}/data")
	if err != nil {
		return nil, fmt.Errorf("%w: feed %s: %w", ErrUpstreamUnavailable, feed, err)
	}
	if resp.IsError() {
		c.logger.Warn("feed provider returned error",
			zap.String("feed", feed),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, fmt.Errorf("%w: feed %s status %d", ErrUpstreamUnavailable, feed, resp.StatusCode())
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: feed %s has no data", ErrUpstreamUnavailable, feed)
	}

	return parseFeedValue(data[0].Value), nil
}

// parseFeedValue keeps numeric values as numbers and anything else as an opaque status string
func parseFeedValue(raw any) *FeedValue {
	switch v := raw.(type) {
	case float64:
		return &FeedValue{Value: &v}
	case string:
		s := strings.TrimSpace(v)
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return &FeedValue{Value: &f}
		}
		return &FeedValue{Status: s}
	case nil:
		return &FeedValue{Status: "null"}
	default:
		return &FeedValue{Status: fmt.Sprint(v)}
	}
}
