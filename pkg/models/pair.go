package models

import (
	"fmt"
	"strings"
)

// Pair identifies two instruments. Symbol1 is the dependent leg (y) and
// Symbol2 the hedge leg (x).
type Pair struct {
	Symbol1 string `json:"symbol_1"`
	Symbol2 string `json:"symbol_2"`
}

func NewPair(symbol1, symbol2 string) Pair {
	return Pair{Symbol1: symbol1, Symbol2: symbol2}
}

// Key is the position-store key, "SYMBOL1_SYMBOL2".
func (p Pair) Key() string {
	return p.Symbol1 + "_" + p.Symbol2
}

func (p Pair) String() string {
	return fmt.Sprintf("%s-%s", p.Symbol1, p.Symbol2)
}

// ParsePairKey is the inverse of Pair.Key.
func ParsePairKey(key string) (Pair, error) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid pair key %q", key)
	}
	return NewPair(parts[0], parts[1]), nil
}
