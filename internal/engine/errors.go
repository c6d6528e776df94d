package engine

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidInstance is returned for unknown or finalized instance ids.
	ErrInvalidInstance = errors.New("invalid instance")

	// ErrInvalidLikelihood is returned when aggregation produces a
	// non-positive site likelihood, which signals an invalid model or
	// parameter combination rather than a fault in the engine.
	ErrInvalidLikelihood = errors.New("non-positive site likelihood")

	// ErrBadArguments is returned when parallel argument arrays disagree in
	// length.
	ErrBadArguments = errors.New("mismatched argument lengths")
)

// SiteError reports the sites whose aggregate likelihood was non-positive.
// All other sites in the same call still carry their computed values.
type SiteError struct {
	Sites []int
}

func (e *SiteError) Error() string {
	return fmt.Sprintf("%v at %d site(s) %v", ErrInvalidLikelihood, len(e.Sites), e.Sites)
}

func (e *SiteError) Unwrap() error { return ErrInvalidLikelihood }

func newSiteError(sites map[int]bool) error {
	if len(sites) == 0 {
		return nil
	}
	list := make([]int, 0, len(sites))
	for s := range sites {
		list = append(list, s)
	}
	sort.Ints(list)
	return &SiteError{Sites: list}
}
