// Package store persists the position map. Every implementation replaces
// the whole map in a single atomic step.
package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gregtusar/pairs/pkg/models"
)

var ErrInvalidState = errors.New("invalid position state")

func validate(positions models.Positions) error {
	for key, state := range positions {
		if !state.Valid() {
			return fmt.Errorf("%w: %q for %s", ErrInvalidState, state, key)
		}
	}
	return nil
}

func sortedKeys(positions models.Positions) []string {
	keys := make([]string, 0, len(positions))
	for k := range positions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
