package search

import "sort"

// MergedResult is one result from a cross-silo search, tagged with the silo
// it came from so callers (the MCP/CLI surface) can report provenance.
type MergedResult struct {
	Silo   string
	Result *SearchResult
}

// SearchMerger fuses independently-ranked per-silo result sets into one
// globally-ordered list. Each silo's Engine already normalizes its own
// fused score to 0-1 (see RRFFusion.normalize in fusion.go); without a
// second calibration pass across silos, a corpus whose RRF scores happen to
// cluster near 1.0 for most queries would dominate a corpus whose scores
// cluster lower even when the latter's top hit is the better match. Grounded
// on that same normalize-by-max pattern, applied one level up: across silos
// instead of across rankers.
type SearchMerger struct{}

// NewSearchMerger creates a SearchMerger.
func NewSearchMerger() *SearchMerger {
	return &SearchMerger{}
}

// Merge calibrates each silo's result scores by that silo's own max score,
// then interleaves every silo's results into one slice sorted by calibrated
// score descending, truncated to limit. A silo with zero results contributes
// nothing; a silo whose results are all zero-score is left unscaled to avoid
// dividing by zero.
func (m *SearchMerger) Merge(perSilo map[string][]*SearchResult, limit int) []*MergedResult {
	var out []*MergedResult

	for silo, results := range perSilo {
		calibrated := CalibrateScores(results)
		for _, r := range calibrated {
			out = append(out, &MergedResult{Silo: silo, Result: r})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Result.Score > out[j].Result.Score
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CalibrateScores returns a copy of results with Score rescaled by the
// group's own maximum score, so the top result in any silo always reads as
// 1.0 before cross-silo comparison. A nil or all-zero-score input is
// returned unmodified (copied) rather than dividing by zero.
func CalibrateScores(results []*SearchResult) []*SearchResult {
	if len(results) == 0 {
		return nil
	}

	maxScore := 0.0
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}

	out := make([]*SearchResult, len(results))
	for i, r := range results {
		cp := *r
		if maxScore > 0 {
			cp.Score = r.Score / maxScore
		}
		out[i] = &cp
	}
	return out
}
