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
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/splax/moodjournal/internal/domain"
	"github.com/splax/moodjournal/internal/metrics"
)

const (
	defaultBaseURL    = "https://api-inference.huggingface.co/models"
	defaultModel      = "j-hartmann/emotion-english-distilroberta-base"
	defaultTimeout    = 30 * time.Second
	defaultTopK       = 7
	maxResponseBody   = 1 << 20
	maxErrorBodySize  = 4096
	outcomeOK         = "ok"
	outcomeTimeout    = "fallback_timeout"
	outcomeFallback   = "fallback_error"
	outcomeBadPayload = "fallback_invalid_response"
)

var (
	// ErrUnauthorized indicates the inference API rejected the credential.
	ErrUnauthorized = errors.New("classifier: unauthorized")
	// ErrModelUnavailable indicates the model is loading or overloaded.
	ErrModelUnavailable = errors.New("classifier: model unavailable")
	// ErrInvalidResponse indicates the inference API returned an unusable payload.
	ErrInvalidResponse = errors.New("classifier: invalid response")
)

// Config configures the Hugging Face inference client.
type Config struct {
	BaseURL string
	Model   string
	Token   string
	TopK    int
	Timeout time.Duration
}

// HuggingFace classifies text through the hosted inference API.
type HuggingFace struct {
	endpoint string
	token    string
	topK     int
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

var _ Classifier = (*HuggingFace)(nil)

// NewHuggingFace builds a client for cfg. A nil http client gets one bounded by cfg.Timeout.
func NewHuggingFace(cfg Config, client *http.Client, logger *slog.Logger, m *metrics.Metrics) (*HuggingFace, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid inference base url: %w", err)
	}
	model := strings.Trim(strings.TrimSpace(cfg.Model), "/")
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	} else if client.Timeout == 0 {
		client.Timeout = timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HuggingFace{
		endpoint: base + "/" + model,
		token:    strings.TrimSpace(cfg.Token),
		topK:     topK,
		timeout:  timeout,
		client:   client,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}, nil
}

type prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classify returns the highest scoring label, or the fallback pair on any failure.
func (h *HuggingFace) Classify(ctx context.Context, text string) (string, float64) {
	start := h.now()
	label, score, err := h.classify(ctx, text)
	elapsed := h.now().Sub(start)
	if err != nil {
		outcome := outcomeFor(err)
		h.logger.Warn("classification failed, using fallback",
			"error", err,
			"outcome", outcome,
			"duration_ms", elapsed.Milliseconds(),
		)
		h.metrics.Classification(outcome, elapsed)
		return FallbackLabel, FallbackScore
	}
	h.metrics.Classification(outcomeOK, elapsed)
	return label, score
}

func (h *HuggingFace) classify(ctx context.Context, text string) (string, float64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"inputs":     text,
		"parameters": map[string]any{"top_k": h.topK},
	})
	if err != nil {
		return "", 0, fmt.Errorf("encode inference request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("send inference request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", 0, errorForStatus(resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", 0, fmt.Errorf("read inference response: %w", err)
	}
	predictions, err := decodePredictions(raw)
	if err != nil {
		return "", 0, err
	}
	return best(predictions)
}

// decodePredictions accepts both the flat [{label,score}] and the batched
// [[{label,score}]] shapes returned by the inference API.
func decodePredictions(raw []byte) ([]prediction, error) {
	var batched [][]prediction
	if err := json.Unmarshal(raw, &batched); err == nil {
		if len(batched) == 0 {
			return nil, fmt.Errorf("%w: empty result", ErrInvalidResponse)
		}
		return batched[0], nil
	}
	var flat []prediction
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return flat, nil
}

func best(predictions []prediction) (string, float64, error) {
	var (
		label string
		score = math.Inf(-1)
	)
	for _, p := range predictions {
		name := strings.ToLower(strings.TrimSpace(p.Label))
		if !domain.IsEmotion(name) || math.IsNaN(p.Score) {
			continue
		}
		if p.Score > score {
			label, score = name, p.Score
		}
	}
	if label == "" {
		return "", 0, fmt.Errorf("%w: no known emotion labels", ErrInvalidResponse)
	}
	return label, math.Min(math.Max(score, 0), 1), nil
}

func errorForStatus(resp *http.Response) error {
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	summary := strings.TrimSpace(string(buf))
	if summary == "" {
		summary = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, summary)
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrModelUnavailable, summary)
	default:
		return fmt.Errorf("inference request failed (%d): %s", resp.StatusCode, summary)
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return outcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return outcomeTimeout
	}
	if errors.Is(err, ErrInvalidResponse) {
		return outcomeBadPayload
	}
	return outcomeFallback
}
