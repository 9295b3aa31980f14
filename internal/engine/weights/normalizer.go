package weights

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MinWeight and MaxWeight bound every stored sibling weight. Clamping to
	// this band after redistribution can drift the sum away from 1.0 by up to
	// (n-1) * SumTolerance, which callers must tolerate.
	MinWeight = 0.01
	MaxWeight = 0.99

	// SumTolerance is the user-facing tolerance on a sibling set summing to 1.0.
	SumTolerance = 0.01

	epsilon = 1e-6
)

var ErrInvalidOperation = errors.New("weight redistribution requires at least two siblings")

type SumInvariantError struct {
	ParentID string
	Sum      float64
}

func (e *SumInvariantError) Error() string {
	return fmt.Sprintf("sibling weights for %s sum to %.4f, outside 1.0 ± %.2f", e.ParentID, e.Sum, SumTolerance)
}

// SetWeight assigns newWeight to the target sibling and spreads the remainder
// evenly across the others. It is a pure function: the input map is never
// modified and a fresh map is returned.
func SetWeight(siblings map[string]float64, targetID string, newWeight float64) (map[string]float64, error) {
	if len(siblings) < 2 {
		return nil, ErrInvalidOperation
	}
	if _, ok := siblings[targetID]; !ok {
		return nil, fmt.Errorf("unknown sibling %s", targetID)
	}

	newWeight = Clamp(newWeight)
	eachOther := (1.0 - newWeight) / float64(len(siblings)-1)

	result := make(map[string]float64, len(siblings))
	for id := range siblings {
		if id == targetID {
			result[id] = newWeight
		} else {
			result[id] = Clamp(eachOther)
		}
	}

	return result, nil
}

// Clamp forces a weight into the [MinWeight, MaxWeight] band.
func Clamp(w float64) float64 {
	if w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}

// SumOK reports whether a sibling set satisfies the sum invariant.
func SumOK(siblings map[string]float64) bool {
	sum := 0.0
	for _, w := range siblings {
		sum += w
	}
	return math.Abs(sum-1.0) <= SumTolerance+epsilon
}

func sum(siblings map[string]float64) float64 {
	total := 0.0
	for _, w := range siblings {
		total += w
	}
	return total
}
