package ranking

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nao1215/xspider/internal/model"
)

// ErrUnknownScoreField is returned by ParseScoreField.
var ErrUnknownScoreField = errors.New("unknown score field")

// ScoreField selects the score TopK orders by.
type ScoreField int

const (
	// ScoreHidden orders by hidden score.
	ScoreHidden ScoreField = iota

	// ScoreAuthority orders by authority.
	ScoreAuthority

	// ScoreSeedFollowers orders by how many seeds follow the account.
	ScoreSeedFollowers
)

// String returns the flag spelling of the field.
func (f ScoreField) String() string {
	switch f {
	case ScoreHidden:
		return "hidden"
	case ScoreAuthority:
		return "authority"
	case ScoreSeedFollowers:
		return "seed-followers"
	default:
		return "unknown"
	}
}

func (f ScoreField) value(r model.RankingRecord) float64 {
	switch f {
	case ScoreAuthority:
		return r.Authority
	case ScoreSeedFollowers:
		return float64(r.SeedFollowers)
	default:
		return r.Hidden
	}
}

// TopK returns the k highest records by field, ties broken by lower node
// id. The input is not modified. k <= 0 returns nil.
func TopK(records []model.RankingRecord, k int, field ScoreField) []model.RankingRecord {
	if k <= 0 || len(records) == 0 {
		return nil
	}
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b model.RankingRecord) int {
		return compareRecords(a, b, field)
	})
	if k < len(sorted) {
		sorted = sorted[:k]
	}
	return sorted
}

// compareRecords orders by descending score, then ascending id.
func compareRecords(a, b model.RankingRecord, field ScoreField) int {
	if c := cmp.Compare(field.value(b), field.value(a)); c != 0 {
		return c
	}
	return strings.Compare(a.NodeID, b.NodeID)
}

// ParseScoreField converts "hidden", "authority" or "seed-followers" into a
// ScoreField.
func ParseScoreField(s string) (ScoreField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hidden", "":
		return ScoreHidden, nil
	case "authority", "pagerank":
		return ScoreAuthority, nil
	case "seed-followers", "seed_followers", "seeds":
		return ScoreSeedFollowers, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownScoreField, s)
	}
}
