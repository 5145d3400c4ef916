package analyzer

import (
	"testing"
)

func TestCategoryScore_NoMatch(t *testing.T) {
	src, err := NewPatternSource(DefaultPatterns())
	if err != nil {
		t.Fatalf("NewPatternSource: %v", err)
	}

	score := src.CategoryScore(CategoryViolence, "a calm report about local gardening")
	if score != 0 {
		t.Errorf("expected 0 for benign text, got %v", score)
	}
}

func TestCategoryScore_SingleMatch(t *testing.T) {
	src, err := NewPatternSource(DefaultPatterns())
	if err != nil {
		t.Fatalf("NewPatternSource: %v", err)
	}

	score := src.CategoryScore(CategoryViolence, "they want to kill all those people")
	if score != 0.2 {
		t.Errorf("expected 0.2 for one match, got %v", score)
	}
}

func TestCategoryScore_SaturatesAtOne(t *testing.T) {
	src, err := NewPatternSource(map[string][]string{
		"spam": {`(?i)\bbuy now\b`},
	})
	if err != nil {
		t.Fatalf("NewPatternSource: %v", err)
	}

	// Seven matches: 7 * 0.2 = 1.4, clamped to 1.0.
	text := "buy now buy now buy now buy now buy now buy now buy now"
	score := src.CategoryScore("spam", text)
	if score != 1.0 {
		t.Errorf("expected score clamped to 1.0, got %v", score)
	}
}

func TestCategoryScore_MaxAcrossPatterns(t *testing.T) {
	src, err := NewPatternSource(map[string][]string{
		"toxic": {
			`(?i)\bonce\b`,
			`(?i)\btwice\b`,
		},
	})
	if err != nil {
		t.Fatalf("NewPatternSource: %v", err)
	}

	// First pattern matches once (0.2), second twice (0.4): max wins.
	score := src.CategoryScore("toxic", "once, then twice, and twice again")
	if score != 0.4 {
		t.Errorf("expected max across patterns 0.4, got %v", score)
	}
}

func TestCategoryScore_UnknownCategory(t *testing.T) {
	src, err := NewPatternSource(DefaultPatterns())
	if err != nil {
		t.Fatalf("NewPatternSource: %v", err)
	}

	if score := src.CategoryScore("no-such-category", "anything"); score != 0 {
		t.Errorf("expected 0 for unknown category, got %v", score)
	}
}

func TestNewPatternSource_InvalidRegex(t *testing.T) {
	_, err := NewPatternSource(map[string][]string{
		"broken": {`(unclosed`},
	})
	if err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

func TestDefaultPatterns_AllCompile(t *testing.T) {
	if _, err := NewPatternSource(DefaultPatterns()); err != nil {
		t.Fatalf("built-in patterns must compile: %v", err)
	}
}

func TestDefaultCategories_Order(t *testing.T) {
	cats := DefaultCategories()
	want := []string{"hate", "harassment", "self-harm", "sexual", "violence", "misleading"}
	if len(cats) != len(want) {
		t.Fatalf("expected %d categories, got %d", len(want), len(cats))
	}
	for i, c := range want {
		if cats[i] != c {
			t.Errorf("category %d: expected %q, got %q", i, c, cats[i])
		}
	}
}
