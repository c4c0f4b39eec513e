package domain

import (
	"fmt"
	"strings"
)

// Quarter identifies one of the four review quarters within a year.
type Quarter int

const (
	Q1 Quarter = 1
	Q2 Quarter = 2
	Q3 Quarter = 3
	Q4 Quarter = 4
)

// ParseQuarter converts a textual quarter ("Q1".."Q4", case-insensitive) into a Quarter.
func ParseQuarter(value string) (Quarter, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "Q1", "1":
		return Q1, nil
	case "Q2", "2":
		return Q2, nil
	case "Q3", "3":
		return Q3, nil
	case "Q4", "4":
		return Q4, nil
	default:
		return 0, fmt.Errorf("invalid quarter %q", value)
	}
}

// Valid reports whether the quarter ordinal is within Q1..Q4.
func (q Quarter) Valid() bool {
	return q >= Q1 && q <= Q4
}

func (q Quarter) String() string {
	if !q.Valid() {
		return fmt.Sprintf("Q?(%d)", int(q))
	}
	return fmt.Sprintf("Q%d", int(q))
}

// QuarterKey addresses a single review period. All temporal comparisons in
// the engine go through Compare so cross-year ordering cannot regress into
// string-based sorting.
type QuarterKey struct {
	Year    int
	Quarter Quarter
}

// Valid reports whether the key denotes a usable review period.
func (k QuarterKey) Valid() bool {
	return k.Year > 0 && k.Quarter.Valid()
}

// Compare returns -1, 0, or 1 ordering keys by (year, quarter ordinal).
func (k QuarterKey) Compare(other QuarterKey) int {
	if k.Year != other.Year {
		if k.Year < other.Year {
			return -1
		}
		return 1
	}
	if k.Quarter != other.Quarter {
		if k.Quarter < other.Quarter {
			return -1
		}
		return 1
	}
	return 0
}

// Before reports whether k is strictly earlier than other.
func (k QuarterKey) Before(other QuarterKey) bool {
	return k.Compare(other) < 0
}

func (k QuarterKey) String() string {
	return fmt.Sprintf("%d-%s", k.Year, k.Quarter)
}
