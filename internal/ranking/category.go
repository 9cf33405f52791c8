package ranking

import (
	"errors"
	"math"

	"github.com/nao1215/xspider/internal/model"
)

// ErrInvalidThresholds is returned by Thresholds.Validate.
var ErrInvalidThresholds = errors.New("invalid category thresholds")

// Thresholds are the category boundaries.
//
// Rules are evaluated in order and the first match wins:
//
//  1. established: followers >= EstablishedFollowerCeiling
//  2. hidden_gem:  followers <  HiddenGemFollowerCeiling and
//     seed followers >= HiddenGemMinSeedFollowers
//  3. rising_star: followers <  RisingStarFollowerCeiling and
//     seed followers >= 1
//  4. potential:   everything else
//
// Ceilings are exclusive and the established floor is inclusive, so an
// account with exactly RisingStarFollowerCeiling followers and one seed
// follower is potential.
type Thresholds struct {
	HiddenGemFollowerCeiling   int64
	HiddenGemMinSeedFollowers  int
	RisingStarFollowerCeiling  int64
	EstablishedFollowerCeiling int64

	// MinAuthority is the authority a node needs to be labeled hidden_gem
	// or rising_star. Zero admits every node.
	MinAuthority float64
}

// DefaultThresholds returns the stock boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HiddenGemFollowerCeiling:   5000,
		HiddenGemMinSeedFollowers:  3,
		RisingStarFollowerCeiling:  20000,
		EstablishedFollowerCeiling: 50000,
	}
}

// Validate checks that ceilings are positive, the seed minimum is at
// least 1, and the ceilings are ordered.
func (t Thresholds) Validate() error {
	switch {
	case t.HiddenGemFollowerCeiling <= 0, t.RisingStarFollowerCeiling <= 0, t.EstablishedFollowerCeiling <= 0:
		return errors.Join(ErrInvalidThresholds, errors.New("ceilings must be positive"))
	case t.HiddenGemMinSeedFollowers < 1:
		return errors.Join(ErrInvalidThresholds, errors.New("hidden gem min seed followers must be at least 1"))
	case t.HiddenGemFollowerCeiling > t.RisingStarFollowerCeiling || t.RisingStarFollowerCeiling > t.EstablishedFollowerCeiling:
		return errors.Join(ErrInvalidThresholds, errors.New("ceilings must satisfy hidden gem <= rising star <= established"))
	case t.MinAuthority < 0 || math.IsNaN(t.MinAuthority):
		return errors.Join(ErrInvalidThresholds, errors.New("min authority must be non-negative"))
	}
	return nil
}

// Categorize labels a node.
func Categorize(authority float64, followers int64, seedFollowers int, t Thresholds) model.Category {
	if followers >= t.EstablishedFollowerCeiling {
		return model.CategoryEstablished
	}
	if authority < t.MinAuthority {
		return model.CategoryPotential
	}
	if followers < t.HiddenGemFollowerCeiling && seedFollowers >= t.HiddenGemMinSeedFollowers {
		return model.CategoryHiddenGem
	}
	if followers < t.RisingStarFollowerCeiling && seedFollowers >= 1 {
		return model.CategoryRisingStar
	}
	return model.CategoryPotential
}

// ComputeHiddenScore returns authority / ln(followers + 2).
// The +2 keeps the denominator positive for accounts with no followers.
// Negative follower counts are treated as zero.
func ComputeHiddenScore(authority float64, followers int64) float64 {
	return authority / math.Log(float64(max(followers, 0))+2)
}
