package resource

import (
	"errors"
	"fmt"
)

// ErrNoResource is returned when no candidate satisfies the requirement flags.
var ErrNoResource = errors.New("no matching resource")

// Select picks exactly one resource from candidates.
//
// restrict, when non-nil, limits candidates to the listed resource IDs.
// Every bit in required must be present on the chosen resource. Candidates
// are then ranked by how many preferred bits they satisfy, descending, with
// ties broken by lowest ID so identical inputs always pick the same backend.
func Select(candidates []Resource, restrict []int, required, preferred Flags) (Resource, error) {
	allowed := candidates
	if restrict != nil {
		allowed = allowed[:0:0]
		for _, r := range candidates {
			for _, id := range restrict {
				if r.ID == id {
					allowed = append(allowed, r)
					break
				}
			}
		}
	}

	best := -1
	bestScore := -1
	for i, r := range allowed {
		if !r.Flags.Has(required) {
			continue
		}
		score := (r.Flags & preferred).Count()
		if score > bestScore || (score == bestScore && r.ID < allowed[best].ID) {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return Resource{}, fmt.Errorf("%w: required flags %s", ErrNoResource, required)
	}
	return allowed[best], nil
}
