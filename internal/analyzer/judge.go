package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// judgePromptTemplate asks the model to self-report per-category risk as a
// bare JSON object. %s slots are the category list and the content.
const judgePromptTemplate = `You are a content safety rater. Rate the following content for risk in each of these categories: %s.

Respond with a single JSON object mapping each category to a risk score between 0.0 (no risk) and 1.0 (severe risk). No prose.

Content:
%s`

// JudgeSource asks a language model to score content risk per category.
// It talks to a chat-completions-shaped HTTP endpoint and tolerates the
// slightly malformed JSON models tend to emit.
type JudgeSource struct {
	endpoint   string
	apiKey     string
	model      string
	categories []string
	client     *http.Client
}

// NewJudgeSource creates an LLM judge client.
func NewJudgeSource(endpoint, apiKey, model string, categories []string) *JudgeSource {
	return &JudgeSource{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		categories: categories,
		client:     &http.Client{},
	}
}

func (j *JudgeSource) Name() string {
	return "llm_judge"
}

type judgeRequest struct {
	Model       string         `json:"model"`
	Messages    []judgeMessage `json:"messages"`
	Temperature float64        `json:"temperature"`
}

type judgeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type judgeResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (j *JudgeSource) Scores(ctx context.Context, text string) (map[string]float64, error) {
	prompt := fmt.Sprintf(judgePromptTemplate, strings.Join(j.categories, ", "), text)

	body, err := json.Marshal(judgeRequest{
		Model:       j.model,
		Messages:    []judgeMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("JudgeSource: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("JudgeSource: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if j.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+j.apiKey)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("JudgeSource: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JudgeSource: unexpected status %s", resp.Status)
	}

	var parsed judgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("JudgeSource: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("JudgeSource: empty choices")
	}

	return parseJudgeScores(parsed.Choices[0].Message.Content)
}

// parseJudgeScores extracts the score object from the model's reply.
// Models wrap JSON in code fences or truncate it; repair before decoding.
func parseJudgeScores(content string) (map[string]float64, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return nil, fmt.Errorf("parseJudgeScores: %w", err)
	}

	var raw map[string]float64
	if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
		return nil, fmt.Errorf("parseJudgeScores: %w", err)
	}

	// Spellings like "self_harm" and "self-harm" normalize to the same
	// label; the stronger signal wins.
	scores := make(map[string]float64, len(raw))
	for category, score := range raw {
		normalized := normalizeCategory(category)
		score = clampScore(score)
		if existing, ok := scores[normalized]; !ok || score > existing {
			scores[normalized] = score
		}
	}
	return scores, nil
}
