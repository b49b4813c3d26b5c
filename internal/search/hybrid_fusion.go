package search

import "sort"

// RankedList is one ranker's ordered output, already sorted best-first.
// Score is preserved for display/debugging; only rank position feeds RRF.
type RankedList struct {
	Name   string // "vector", "bm25", "trigram", "filepath"
	Weight float64
	Hits   []RankedHit
}

// RankedHit is a single scored document within a RankedList.
type RankedHit struct {
	DocID string
	Score float64
}

// HybridPreset names a fixed weighting across the four rankers HybridSearch
// fuses: vector similarity, BM25 keyword relevance, trigram fuzzy matching,
// and file path matching.
type HybridPreset string

const (
	PresetBalanced HybridPreset = "balanced"
	PresetSemantic HybridPreset = "semantic"
	PresetKeyword  HybridPreset = "keyword"
	PresetCode     HybridPreset = "code"
)

// HybridWeights holds the per-ranker weight for one preset.
type HybridWeights struct {
	Vector   float64
	BM25     float64
	Trigram  float64
	FilePath float64
}

// PresetWeights returns the ranker weights for a named preset, defaulting to
// PresetBalanced for an unrecognized name.
func PresetWeights(preset HybridPreset) HybridWeights {
	switch preset {
	case PresetSemantic:
		return HybridWeights{Vector: 0.7, BM25: 0.2, Trigram: 0.05, FilePath: 0.05}
	case PresetKeyword:
		return HybridWeights{Vector: 0.15, BM25: 0.65, Trigram: 0.1, FilePath: 0.1}
	case PresetCode:
		return HybridWeights{Vector: 0.35, BM25: 0.3, Trigram: 0.15, FilePath: 0.2}
	case PresetBalanced:
		fallthrough
	default:
		return HybridWeights{Vector: 0.4, BM25: 0.35, Trigram: 0.15, FilePath: 0.1}
	}
}

// HybridFusedResult is a single document's combined ranking across every
// ranker that surfaced it.
type HybridFusedResult struct {
	DocID       string
	Score       float64        // normalized 0-1 combined RRF score
	RankerHits  map[string]int // ranker name -> 1-indexed rank, absent if not matched
	ListsHit    int            // number of rankers that surfaced this document
}

// GeneralizedRRF fuses an arbitrary number of ranked lists into one ranking
// using weighted Reciprocal Rank Fusion:
//
//	score(d) = Σ_lists weight_i / (k + rank_i(d))
//
// Lists that don't contain d contribute nothing (no missing-rank penalty is
// applied here, unlike the two-list RRFFusion; with four independent
// rankers, most documents are legitimately absent from most lists, so
// penalizing absence would wash out every score toward the same floor).
func GeneralizedRRF(lists []RankedList, k int) []*HybridFusedResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[string]*HybridFusedResult)
	for _, list := range lists {
		weight := list.Weight
		if weight <= 0 {
			weight = 1.0
		}
		for rank, hit := range list.Hits {
			r, ok := scores[hit.DocID]
			if !ok {
				r = &HybridFusedResult{DocID: hit.DocID, RankerHits: map[string]int{}}
				scores[hit.DocID] = r
			}
			r.Score += weight / float64(k+rank+1)
			r.RankerHits[list.Name] = rank + 1
			r.ListsHit++
		}
	}

	results := make([]*HybridFusedResult, 0, len(scores))
	for _, r := range scores {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].ListsHit != results[j].ListsHit {
			return results[i].ListsHit > results[j].ListsHit
		}
		return results[i].DocID < results[j].DocID
	})

	if len(results) > 0 && results[0].Score > 0 {
		max := results[0].Score
		for _, r := range results {
			r.Score /= max
		}
	}

	return results
}

// ToEngineWeights collapses a four-ranker HybridWeights preset down to the
// two-ranker Weights Engine.Search accepts, preserving the BM25/vector split
// and folding trigram+filepath weight proportionally into both (Engine folds
// those two rankers in separately via EngineConfig.FuzzyWeight/FilePathWeight,
// so only the BM25-vs-semantic balance needs to travel through SearchOptions).
func (w HybridWeights) ToEngineWeights() Weights {
	total := w.Vector + w.BM25
	if total <= 0 {
		return DefaultWeights()
	}
	return Weights{
		BM25:     w.BM25 / total,
		Semantic: w.Vector / total,
	}
}

// RankedListFromBM25 adapts BM25Result hits (already sorted by the caller)
// into a generic RankedList.
func RankedListFromIDs(name string, weight float64, ids []string, scores []float64) RankedList {
	hits := make([]RankedHit, len(ids))
	for i, id := range ids {
		score := 0.0
		if i < len(scores) {
			score = scores[i]
		}
		hits[i] = RankedHit{DocID: id, Score: score}
	}
	return RankedList{Name: name, Weight: weight, Hits: hits}
}
