package postgres

import (
	"fmt"
	"math/big"
)

// Amounts are stored as NUMERIC and moved across the wire as decimal text
// ($n::numeric on the way in, col::text on the way out) so no precision is
// lost at 2^256.

func numText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func numTextPtr(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func parseNum(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: bad numeric %q", s)
	}
	return v, nil
}

func parseNumPtr(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	return parseNum(*s)
}
