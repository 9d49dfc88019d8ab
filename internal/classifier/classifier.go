// Package classifier tags issue text with a category, severity and
// confidence. A remote service is tried first; any failure falls back to
// keyword rules, so Classify never returns an error.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Origin tells where a Result came from.
type Origin string

const (
	OriginRemote   Origin = "remote"
	OriginFallback Origin = "fallback"
)

// Fallback reasons, also used as metric labels.
const (
	ReasonNotConfigured = "not_configured"
	ReasonTimeout       = "timeout"
	ReasonNetwork       = "network"
	ReasonStatus        = "status"
	ReasonMalformed     = "malformed"
)

const (
	DefaultTimeout = 3 * time.Second
	maxResponse    = 1 << 20
)

var (
	classificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civictrack_classifier_classifications_total",
		Help: "Classifications by origin",
	}, []string{"origin"})

	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civictrack_classifier_fallbacks_total",
		Help: "Keyword fallbacks by reason",
	}, []string{"reason"})

	remoteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "civictrack_classifier_remote_duration_seconds",
		Help:    "Remote classifier call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

var errMalformed = errors.New("malformed classifier response")

type Config struct {
	// BaseURL of the remote service; empty means fallback only.
	BaseURL string
	Timeout time.Duration
}

// Result is a classification. Category and Severity may be empty when the
// remote service chose not to predict them.
type Result struct {
	Category   string
	Severity   string
	Confidence float64
	IsFlagged  bool
	Origin     Origin
	// Reason is set for fallback results.
	Reason string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	rand       func() float64
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRand replaces the source of fallback confidence; f must return values
// in [0, 1).
func WithRand(f func() float64) Option {
	return func(c *Client) { c.rand = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		rand:       rand.Float64,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify returns the remote classification when available and the keyword
// fallback otherwise. It blocks for at most the configured timeout.
func (c *Client) Classify(ctx context.Context, text string) Result {
	if c.cfg.BaseURL == "" {
		return c.fallback(text, ReasonNotConfigured)
	}

	start := time.Now()
	res, err := c.remote(ctx, text)
	remoteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := reasonFor(err)
		c.logger.Warn("classifier unavailable, using keyword fallback",
			"reason", reason,
			"error", err.Error(),
		)
		return c.fallback(text, reason)
	}

	classificationsTotal.WithLabelValues(string(OriginRemote)).Inc()
	return res
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	PredictedCategory string   `json:"predictedCategory"`
	Severity          string   `json:"severity"`
	ConfidenceScore   *float64 `json:"confidenceScore"`
}

type statusError int

func (e statusError) Error() string {
	return fmt.Sprintf("classifier returned status %d", int(e))
}

func (c *Client) remote(ctx context.Context, text string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, statusError(resp.StatusCode)
	}

	var out analyzeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponse)).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if err := out.validate(); err != nil {
		return Result{}, err
	}

	score := *out.ConfidenceScore
	return Result{
		Category:   out.PredictedCategory,
		Severity:   out.Severity,
		Confidence: score,
		IsFlagged:  score < models.FlagThreshold,
		Origin:     OriginRemote,
	}, nil
}

func (r analyzeResponse) validate() error {
	if r.PredictedCategory != "" && !models.IsMember(models.Categories, r.PredictedCategory) {
		return fmt.Errorf("%w: unknown category %q", errMalformed, r.PredictedCategory)
	}
	if r.Severity != "" && !models.IsMember(models.Severities, r.Severity) {
		return fmt.Errorf("%w: unknown severity %q", errMalformed, r.Severity)
	}
	if r.ConfidenceScore == nil {
		return fmt.Errorf("%w: missing confidenceScore", errMalformed)
	}
	s := *r.ConfidenceScore
	if math.IsNaN(s) || s < 0 || s > 1 {
		return fmt.Errorf("%w: confidenceScore %v out of range", errMalformed, s)
	}
	return nil
}

func reasonFor(err error) string {
	var se statusError
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return ReasonTimeout
	case errors.As(err, &se):
		return ReasonStatus
	case errors.Is(err, errMalformed):
		return ReasonMalformed
	}
	return ReasonNetwork
}

func (c *Client) fallback(text string, reason string) Result {
	fallbacksTotal.WithLabelValues(reason).Inc()
	classificationsTotal.WithLabelValues(string(OriginFallback)).Inc()

	category, severity := Keywords(text)
	// Uniform in [0.70, 0.95], two decimals.
	score := math.Round((0.70+c.rand()*0.25)*100) / 100
	return Result{
		Category:   category,
		Severity:   severity,
		Confidence: score,
		IsFlagged:  score < models.FlagThreshold,
		Origin:     OriginFallback,
		Reason:     reason,
	}
}
