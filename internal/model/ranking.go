package model

import (
	"errors"
	"strings"
	"time"
)

// unknownStr is the string representation for unknown values.
const unknownStr = "unknown"

// ErrUnknownCategory is returned by ParseCategory for unrecognized labels.
var ErrUnknownCategory = errors.New("unknown category")

// Category is the label assigned to a ranked node.
type Category string

const (
	// CategoryHiddenGem is a low-follower account followed by several seeds.
	CategoryHiddenGem Category = "hidden_gem"

	// CategoryRisingStar is a mid-follower account followed by at least one seed.
	CategoryRisingStar Category = "rising_star"

	// CategoryEstablished is an account at or above the established ceiling.
	CategoryEstablished Category = "established"

	// CategoryPotential is everything else.
	CategoryPotential Category = "potential"
)

// Categories lists every category in rule-evaluation order.
func Categories() []Category {
	return []Category{CategoryEstablished, CategoryHiddenGem, CategoryRisingStar, CategoryPotential}
}

// String returns the label.
func (c Category) String() string {
	return string(c)
}

// ParseCategory converts a label (case-insensitive, "-" or "_" separated)
// into a Category.
func ParseCategory(s string) (Category, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, c := range Categories() {
		if string(c) == normalized {
			return c, nil
		}
	}
	return "", ErrUnknownCategory
}

// RankingRecord is one row of the ranking table.
//
// The table is replaced wholesale on every ranking run; readers (export,
// reports) never mutate it.
type RankingRecord struct {
	NodeID         string    `json:"node_id"`
	Handle         string    `json:"handle"`
	Authority      float64   `json:"authority"`
	InDegree       int       `json:"in_degree"`
	OutDegree      int       `json:"out_degree"`
	FollowersCount int64     `json:"followers_count"`
	SeedFollowers  int       `json:"seed_followers"`
	Hidden         float64   `json:"hidden"`
	Category       Category  `json:"category"`
	Rank           int       `json:"rank"`
	ComputedAt     time.Time `json:"computed_at"`
}
