package recognizer

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Anmol9893/botservice/pkg/dialog"
	"github.com/Anmol9893/botservice/pkg/urlvalidation"
)

// HTTPConfig describes how to call a remote classifier.
type HTTPConfig struct {
	URL        string            `yaml:"url"         json:"url"`
	AuthType   string            `yaml:"auth_type"   json:"auth_type"`   // "bearer", "hmac", "none"
	AuthSecret string            `yaml:"auth_secret" json:"auth_secret"` // token or HMAC key
	Timeout    time.Duration     `yaml:"timeout"     json:"timeout"`
	Headers    map[string]string `yaml:"headers"     json:"headers,omitempty"`
}

// classifyRequest is the body posted to the classifier.
type classifyRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Locale         string `json:"locale,omitempty"`
}

// classifyResponse follows the common top-scoring-intent shape.
type classifyResponse struct {
	TopScoringIntent struct {
		Intent string  `json:"intent"`
		Score  float64 `json:"score"`
	} `json:"topScoringIntent"`
	Entities []struct {
		Type   string `json:"type"`
		Entity string `json:"entity"`
	} `json:"entities"`
}

// HTTPRecognizer calls a remote classifier over HTTP.
type HTTPRecognizer struct {
	cfg        HTTPConfig
	httpClient *http.Client
}

// NewHTTPRecognizer creates a remote recognizer. The URL is validated once here.
func NewHTTPRecognizer(cfg HTTPConfig, validateOpts ...urlvalidation.Option) (*HTTPRecognizer, error) {
	if err := urlvalidation.ValidateOutboundURL(cfg.URL, validateOpts...); err != nil {
		return nil, fmt.Errorf("recognizer URL validation: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPRecognizer{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}, nil
}

func (r *HTTPRecognizer) Recognize(ctx context.Context, activity dialog.Activity) (Result, error) {
	if activity.Text == "" {
		return NoMatch(), nil
	}

	body, err := json.Marshal(classifyRequest{
		Query:          activity.Text,
		ConversationID: activity.ConversationID,
		UserID:         activity.UserID,
		Locale:         activity.Locale,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal classify request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create classify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	switch r.cfg.AuthType {
	case "bearer":
		httpReq.Header.Set("Authorization", "Bearer "+r.cfg.AuthSecret)
	case "hmac":
		httpReq.Header.Set("X-Bot-Signature-256", hmacSign(r.cfg.AuthSecret, body))
	}

	for k, v := range r.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("classify request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	// Drain remainder for connection reuse.
	_, _ = io.Copy(io.Discard, resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read classify response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("classifier returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var cr classifyResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return Result{}, fmt.Errorf("unmarshal classify response: %w", err)
	}

	res := Result{
		Intent:   cr.TopScoringIntent.Intent,
		Score:    cr.TopScoringIntent.Score,
		Entities: make(map[string]any, len(cr.Entities)),
	}
	if res.Intent == "" {
		res.Intent = None
	}
	for _, e := range cr.Entities {
		if _, seen := res.Entities[e.Type]; !seen {
			res.Entities[e.Type] = e.Entity
		}
	}
	return res, nil
}

func hmacSign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%x", mac.Sum(nil))
}
