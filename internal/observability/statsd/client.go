package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sink accepts StatsD-style counters, gauges, and timings.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to reach a StatsD-compatible endpoint and how to
// qualify the metrics sent to it.
type Config struct {
	Enabled    bool
	Address    string
	Prefix     string
	Logger     *slog.Logger
	GlobalTags map[string]string
}

// Metric kind markers from the StatsD line protocol.
const (
	kindCounter = "c"
	kindGauge   = "g"
	kindTiming  = "ms"
)

// dialTimeout bounds endpoint resolution when the client starts.
const dialTimeout = 5 * time.Second

// Client emits metrics over UDP using the StatsD line protocol. A nil or
// disabled Client discards everything, so emission sites never need a guard.
// All methods are safe for concurrent use.
type Client struct {
	prefix     string
	globalTags map[string]string
	logger     *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	enabled bool
}

var _ Sink = (*Client)(nil)

// NewClient dials the configured endpoint. When disabled, or when the
// address is blank, it returns a client that discards all metrics.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		prefix:     cleanMetricName(cfg.Prefix),
		globalTags: cleanTags(cfg.GlobalTags),
		logger:     logger,
	}

	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}

	c.conn = conn
	c.enabled = true
	return c, nil
}

// Enabled reports whether the client actively emits metrics.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && c.conn != nil
}

// Count adds value to the named counter.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	if c == nil {
		return
	}
	c.emit(name, strconv.FormatInt(value, 10), kindCounter, tags)
}

// Gauge records the current value of the named gauge.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	if c == nil {
		return
	}
	c.emit(name, formatValue(value), kindGauge, tags)
}

// Timing records a duration in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	if c == nil {
		return
	}
	ms := float64(value) / float64(time.Millisecond)
	c.emit(name, formatValue(ms), kindTiming, tags)
}

// Close stops emission and releases the UDP socket.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) emit(name, value, kind string, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || c.conn == nil {
		return
	}

	metric := c.qualifiedName(name)
	if metric == "" {
		return
	}

	var line strings.Builder
	line.Grow(len(metric) + len(value) + len(kind) + 2)
	line.WriteString(metric)
	line.WriteByte(':')
	line.WriteString(value)
	line.WriteByte('|')
	line.WriteString(kind)
	line.WriteString(c.tagSuffix(tags))

	if _, err := c.conn.Write([]byte(line.String())); err != nil {
		c.logger.Debug("statsd write failed", "metric", metric, "error", err)
	}
}

func (c *Client) qualifiedName(name string) string {
	metric := cleanMetricName(name)
	if metric == "" {
		return ""
	}
	if c.prefix == "" {
		return metric
	}
	return c.prefix + "." + metric
}

// tagSuffix serializes global and local tags into the "|#k:v,k:v" form.
// Local tags win over global ones of the same key, and pairs are sorted so
// output is stable for a given tag set.
func (c *Client) tagSuffix(local map[string]string) string {
	if len(c.globalTags)+len(local) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(c.globalTags)+len(local))
	seen := make(map[string]struct{}, len(local))
	for k, v := range local {
		key := strings.Map(tagKeyRune, strings.TrimSpace(k))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		pairs = append(pairs, key+":"+strings.Map(tagValueRune, strings.TrimSpace(v)))
	}
	for k, v := range c.globalTags {
		if _, shadowed := seen[k]; !shadowed {
			pairs = append(pairs, k+":"+v)
		}
	}
	if len(pairs) == 0 {
		return ""
	}

	sort.Strings(pairs)
	return "|#" + strings.Join(pairs, ",")
}

// cleanMetricName rewrites runes the line protocol reserves and drops empty
// name segments, so a sloppy caller cannot corrupt the emitted line.
func cleanMetricName(name string) string {
	parts := strings.Split(name, ".")
	kept := parts[:0]
	for _, part := range parts {
		part = strings.Map(metricRune, strings.TrimSpace(part))
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ".")
}

// metricRune replaces the delimiters of the line protocol, plus characters
// some aggregators choke on, with underscores.
func metricRune(r rune) rune {
	switch r {
	case ':', '|', '#', '@', ',', ' ', '/':
		return '_'
	}
	return r
}

// tagKeyRune additionally rewrites ':' since the first colon in a pair
// separates key from value.
func tagKeyRune(r rune) rune {
	if r == ':' {
		return '_'
	}
	return tagValueRune(r)
}

func tagValueRune(r rune) rune {
	switch r {
	case ',', '|', '#':
		return '_'
	}
	return r
}

func cleanTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		key := strings.Map(tagKeyRune, strings.TrimSpace(k))
		if key == "" {
			continue
		}
		out[key] = strings.Map(tagValueRune, strings.TrimSpace(v))
	}
	return out
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
