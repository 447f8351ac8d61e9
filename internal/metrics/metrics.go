package metrics

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
)

const (
	RequestLatency  = "damage_api.http.request.latency"
	RequestTotal    = "damage_api.http.request.total"
	StageLatency    = "damage_api.inference.stage.latency"
	PredictionTotal = "damage_api.inference.prediction.total"
	WorkerWait      = "damage_api.inference.worker.wait"
)

// full sampling
const samplingRate = 1.0

// Client is safe for concurrent use. The zero value is not usable, use New
// or NoOp.
type Client struct {
	statsd statsd.ClientInterface
}

// New returns a DogStatsD-backed client for addr, or a no-op client when addr
// is empty.
func New(addr string, globalTags []string, opts ...statsd.Option) (*Client, error) {
	if addr == "" {
		return NoOp(), nil
	}
	opts = append([]statsd.Option{statsd.WithTags(globalTags)}, opts...)
	c, err := statsd.New(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client for %s: %w", addr, err)
	}
	log.Info().Str("addr", addr).Strs("tags", globalTags).Msg("metrics client initialized")
	return &Client{statsd: c}, nil
}

// NoOp drops every metric.
func NoOp() *Client {
	return &Client{statsd: &statsd.NoOpClient{}}
}

// GlobalTags builds the env/service tags attached to every metric.
func GlobalTags(service, env string) []string {
	return []string{"env:" + env, "service:" + service}
}

func (c *Client) Timing(name string, value time.Duration, tags []string) {
	if err := c.statsd.Timing(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd timing failed")
	}
}

func (c *Client) Count(name string, value int64, tags []string) {
	if err := c.statsd.Count(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd count failed")
	}
}

func (c *Client) Flush() error {
	return c.statsd.Flush()
}

func (c *Client) Close() error {
	return c.statsd.Close()
}
