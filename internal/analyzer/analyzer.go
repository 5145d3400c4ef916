package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Result holds per-category risk scores for one piece of content.
type Result struct {
	// CategoryScores maps each evaluated category to a score in [0,1].
	CategoryScores map[string]float64 `json:"category_scores"`
	// FlaggedCategories lists categories whose score met the threshold,
	// in evaluation order.
	FlaggedCategories []string `json:"flagged_categories"`
	// NeedsModification is true iff any category was flagged.
	NeedsModification bool `json:"needs_modification"`
	// OverallSafetyScore is 1.0 minus the highest category score, or 1.0
	// when no scores were computed.
	OverallSafetyScore float64 `json:"overall_safety_score"`
}

// Source is an optional deeper signal layer (moderation API, LLM judge).
// Scores returns per-category risk scores in [0,1]. Implementations must
// respect the context deadline; errors mean the layer is skipped, never
// that content is unsafe.
type Source interface {
	Name() string
	Scores(ctx context.Context, text string) (map[string]float64, error)
}

// Analyzer produces category risk scores from a cascade of signal sources.
//
// The pattern layer always runs. Deeper sources run in order only while no
// category has been flagged yet: a single strong signal is sufficient, so
// the expensive layers are skipped once the cheap one has found something.
// Scores from multiple sources merge by maximum, never by average.
type Analyzer struct {
	categories []string
	threshold  float64
	patterns   *PatternSource
	sources    []Source
	timeout    time.Duration
	logger     *zap.Logger
}

// NewAnalyzer builds an analyzer for the given categories and flagging
// threshold. Sources beyond the pattern layer are optional and run in the
// order given, each bounded by timeout.
func NewAnalyzer(categories []string, threshold float64, patterns *PatternSource, sources []Source, timeout time.Duration, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		categories: categories,
		threshold:  threshold,
		patterns:   patterns,
		sources:    sources,
		timeout:    timeout,
		logger:     logger,
	}
}

// Analyze scores a piece of text.
func (a *Analyzer) Analyze(ctx context.Context, text string) Result {
	res := Result{
		CategoryScores:     make(map[string]float64, len(a.categories)),
		OverallSafetyScore: 1.0,
	}

	for _, category := range a.categories {
		score := a.patterns.CategoryScore(category, text)
		res.CategoryScores[category] = score
		if score >= a.threshold {
			res.FlaggedCategories = append(res.FlaggedCategories, category)
		}
	}

	for _, src := range a.sources {
		if len(res.FlaggedCategories) > 0 {
			break
		}
		a.mergeSource(ctx, src, text, &res)
	}

	res.NeedsModification = len(res.FlaggedCategories) > 0

	if len(res.CategoryScores) > 0 {
		var maxScore float64
		for _, s := range res.CategoryScores {
			if s > maxScore {
				maxScore = s
			}
		}
		res.OverallSafetyScore = 1.0 - maxScore
	}

	return res
}

// mergeSource queries one deeper source and folds its scores into res.
// A failing or timed-out source contributes nothing.
func (a *Analyzer) mergeSource(ctx context.Context, src Source, text string, res *Result) {
	sctx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	scores, err := src.Scores(sctx, text)
	if err != nil {
		a.logger.Warn("signal source unavailable, skipping layer",
			zap.String("source", src.Name()),
			zap.Error(err),
		)
		return
	}

	for _, category := range a.categories {
		score, ok := scores[category]
		if !ok {
			continue
		}
		// Vendor scores are not trusted to stay in range.
		score = clampScore(score)
		if score > res.CategoryScores[category] {
			res.CategoryScores[category] = score
		}
		if score >= a.threshold && !contains(res.FlaggedCategories, category) {
			res.FlaggedCategories = append(res.FlaggedCategories, category)
		}
	}
}

// clampScore bounds a risk score to [0,1].
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// AnalyzeValue scores arbitrary content by projecting it to text first.
// Content with no usable projection yields a default non-flagged result:
// structured payloads that cannot be scored pass rather than crash.
func (a *Analyzer) AnalyzeValue(ctx context.Context, content any) Result {
	text, ok := ProjectText(content)
	if !ok {
		return Result{
			CategoryScores:     map[string]float64{},
			OverallSafetyScore: 1.0,
		}
	}
	return a.Analyze(ctx, text)
}

// ProjectText converts content to a best-effort string form for scoring.
func ProjectText(content any) (string, bool) {
	switch v := content.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	case nil:
		return "", false
	}
	b, err := json.Marshal(content)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
