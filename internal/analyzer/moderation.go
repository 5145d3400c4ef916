package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ModerationSource queries an external content moderation HTTP API.
//
// The endpoint is expected to accept {"input": "<text>"} and respond with
// {"results": [{"category_scores": {"<category>": <score>, ...}}]}, the
// shape used by hosted moderation services. Category keys are normalized
// (e.g. "self_harm" → "self-harm") before merging.
type ModerationSource struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewModerationSource creates a moderation client. The http.Client carries
// no timeout of its own; the analyzer bounds each call via context.
func NewModerationSource(endpoint, apiKey string) *ModerationSource {
	return &ModerationSource{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
	}
}

func (m *ModerationSource) Name() string {
	return "moderation_api"
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

func (m *ModerationSource) Scores(ctx context.Context, text string) (map[string]float64, error) {
	body, err := json.Marshal(moderationRequest{Input: text})
	if err != nil {
		return nil, fmt.Errorf("ModerationSource: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ModerationSource: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ModerationSource: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ModerationSource: unexpected status %s", resp.Status)
	}

	var parsed moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("ModerationSource: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, fmt.Errorf("ModerationSource: empty results")
	}

	scores := make(map[string]float64, len(parsed.Results[0].CategoryScores))
	for category, score := range parsed.Results[0].CategoryScores {
		scores[normalizeCategory(category)] = score
	}
	return scores, nil
}

// normalizeCategory maps vendor category spellings onto local labels.
func normalizeCategory(category string) string {
	category = strings.ToLower(category)
	category = strings.ReplaceAll(category, "_", "-")
	// Vendors report subtyped categories like "violence/graphic"; keep the
	// top-level label.
	if i := strings.IndexByte(category, '/'); i > 0 {
		category = category[:i]
	}
	return category
}
