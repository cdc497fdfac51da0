// Package reviews condenses a product's reviews into a summary.
package reviews

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// Coverage grades how many reviews back a summary.
type Coverage string

const (
	CoverageNone   Coverage = "none"
	CoverageLow    Coverage = "low"
	CoverageMedium Coverage = "medium"
	CoverageHigh   Coverage = "high"
)

const (
	// MaxReviews caps how many reviews feed one summary.
	MaxReviews = 100

	maxPros = 5
	maxCons = 3
	maxTop  = 5
)

// NoReviewsMessage is the summary of a product nobody reviewed.
const NoReviewsMessage = "No reviews available for this product"

// Breakdown splits the reviews by source type.
type Breakdown struct {
	ProReviews     int
	UserReviews    int
	AvgCredibility float64
}

// Summary is the condensed view of a product's reviews.
type Summary struct {
	Coverage           Coverage
	Count              int
	AverageRating      float64
	AverageCredibility float64
	ProConsensus       []string
	ConConsensus       []string
	Text               string
	Breakdown          Breakdown
	// Top holds the most credible reviews, best first.
	Top []storage.Review
}

// CoverageOf grades a review count.
func CoverageOf(n int) Coverage {
	switch {
	case n < 1:
		return CoverageNone
	case n < 5:
		return CoverageLow
	case n < 10:
		return CoverageMedium
	default:
		return CoverageHigh
	}
}

// Summarize condenses reviews. Input order does not matter; reviews are
// ranked by credibility and only the first MaxReviews are used.
func Summarize(reviews []storage.Review) Summary {
	ranked := make([]storage.Review, len(reviews))
	copy(ranked, reviews)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CredibilityScore > ranked[j].CredibilityScore
	})
	if len(ranked) > MaxReviews {
		ranked = ranked[:MaxReviews]
	}

	s := Summary{
		Coverage:     CoverageOf(len(ranked)),
		Count:        len(ranked),
		ProConsensus: []string{},
		ConConsensus: []string{},
		Top:          []storage.Review{},
	}
	if len(ranked) == 0 {
		s.Text = NoReviewsMessage
		return s
	}

	var ratingSum, credSum float64
	for _, r := range ranked {
		ratingSum += r.Rating
		credSum += r.CredibilityScore
		if r.SourceType == storage.SourceTypePro {
			s.Breakdown.ProReviews++
		} else {
			s.Breakdown.UserReviews++
		}
		s.ProConsensus = appendDistinct(s.ProConsensus, r.Pros, maxPros)
		s.ConConsensus = appendDistinct(s.ConConsensus, r.Cons, maxCons)
	}
	s.AverageRating = ratingSum / float64(len(ranked))
	s.AverageCredibility = credSum / float64(len(ranked))
	s.Breakdown.AvgCredibility = s.AverageCredibility

	top := ranked
	if len(top) > maxTop {
		top = top[:maxTop]
	}
	s.Top = append(s.Top, top...)
	s.Text = s.sentence()
	return s
}

func (s Summary) sentence() string {
	var b strings.Builder
	switch s.Coverage {
	case CoverageLow:
		fmt.Fprintf(&b, "Limited reviews available (%d professional, %d user reviews). The available reviews suggest ",
			s.Breakdown.ProReviews, s.Breakdown.UserReviews)
	case CoverageMedium:
		fmt.Fprintf(&b, "Based on %d professional reviews and %d user reviews, ",
			s.Breakdown.ProReviews, s.Breakdown.UserReviews)
	default:
		fmt.Fprintf(&b, "Well-reviewed product with %d professional sources. Consensus shows ", s.Breakdown.ProReviews)
	}
	fmt.Fprintf(&b, "an average rating of %.1f/10.", s.AverageRating)

	if len(s.ProConsensus) > 0 {
		fmt.Fprintf(&b, " Main strengths: %s.", strings.Join(head(s.ProConsensus, 3), ", "))
	}
	if len(s.ConConsensus) > 0 {
		fmt.Fprintf(&b, " Common concerns: %s.", strings.Join(head(s.ConConsensus, 2), ", "))
	}
	return b.String()
}

// appendDistinct appends unseen, non-blank items until dst holds max.
func appendDistinct(dst, items []string, max int) []string {
	for _, item := range items {
		if len(dst) >= max {
			break
		}
		item = strings.TrimSpace(item)
		if item == "" || contains(dst, item) {
			continue
		}
		dst = append(dst, item)
	}
	return dst
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func head(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}
