package core

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"permitdesk/pkg/domain"
)

func TestFallbackEstimateTable(t *testing.T) {
	cases := []struct {
		projectType string
		wantCost    float64
		wantDays    int
	}{
		{"renovation", 15000, 30},
		{"new_construction", 250000, 180},
		{"demolition", 20000, 14},
		{"electrical", 5000, 7},
		{"plumbing", 4000, 7},
		{"RENOVATION", 15000, 30}, // case-insensitive
		{"landscaping", 10000, 30},
		{"", 10000, 30},
	}
	for _, c := range cases {
		got := FallbackEstimate(c.projectType)
		if got.EstimatedCost != c.wantCost || got.EstimatedTimelineDays != c.wantDays {
			t.Fatalf("FallbackEstimate(%q) = %+v, want cost=%v days=%v", c.projectType, got, c.wantCost, c.wantDays)
		}
	}
}

func TestAnalyzeWithFallback(t *testing.T) {
	ctx := context.Background()

	working := analyzerFunc(func(context.Context, string, string) (domain.Analysis, error) {
		return domain.Analysis{EstimatedCost: 42000, EstimatedTimelineDays: 45}, nil
	})
	if got := AnalyzeWithFallback(ctx, working, zerolog.Nop(), "file:///doc", "renovation"); got.EstimatedCost != 42000 {
		t.Fatalf("working analyzer ignored: %+v", got)
	}

	broken := analyzerFunc(func(context.Context, string, string) (domain.Analysis, error) {
		return domain.Analysis{}, errors.New("model unavailable")
	})
	got := AnalyzeWithFallback(ctx, broken, zerolog.Nop(), "file:///doc", "demolition")
	if got.EstimatedCost != 20000 || got.EstimatedTimelineDays != 14 {
		t.Fatalf("fallback not applied: %+v", got)
	}

	if got := AnalyzeWithFallback(ctx, nil, zerolog.Nop(), "file:///doc", "electrical"); got.EstimatedCost != 5000 {
		t.Fatalf("nil analyzer fallback: %+v", got)
	}
}
