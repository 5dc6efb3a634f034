package core

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"permitdesk/pkg/domain"
)

// fallbackEstimates is the deterministic per-type estimate table used when
// document analysis is unavailable or fails.
var fallbackEstimates = map[string]domain.Analysis{
	"renovation":       {EstimatedCost: 15000, EstimatedTimelineDays: 30, RequiredPermits: []string{"building"}},
	"new_construction": {EstimatedCost: 250000, EstimatedTimelineDays: 180, RequiredPermits: []string{"building", "electric", "plumber"}},
	"demolition":       {EstimatedCost: 20000, EstimatedTimelineDays: 14, RequiredPermits: []string{"demolition"}},
	"electrical":       {EstimatedCost: 5000, EstimatedTimelineDays: 7, RequiredPermits: []string{"electric"}},
	"plumbing":         {EstimatedCost: 4000, EstimatedTimelineDays: 7, RequiredPermits: []string{"plumber"}},
}

// defaultEstimate covers project types absent from the table.
var defaultEstimate = domain.Analysis{EstimatedCost: 10000, EstimatedTimelineDays: 30}

// FallbackEstimate returns the deterministic estimate for a project type.
func FallbackEstimate(projectType string) domain.Analysis {
	if a, ok := fallbackEstimates[strings.ToLower(projectType)]; ok {
		return a
	}
	return defaultEstimate
}

// AnalyzeWithFallback runs the analyzer and substitutes the type-keyed
// default estimate on any failure. Analysis failure never surfaces to the
// upload path; it only costs estimate precision.
func AnalyzeWithFallback(ctx context.Context, analyzer domain.DocumentAnalyzer, log zerolog.Logger, documentURL, projectType string) domain.Analysis {
	if analyzer == nil {
		return FallbackEstimate(projectType)
	}
	a, err := analyzer.Extract(ctx, documentURL, projectType)
	if err != nil {
		log.Warn().Err(err).Str("type", projectType).Msg("document analysis failed, using fallback estimate")
		return FallbackEstimate(projectType)
	}
	return a
}
