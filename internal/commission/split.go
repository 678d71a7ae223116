package commission

import (
	"slices"

	"bengkelpos/backend/internal/domain"
)

var fixedSplits = [][]int{
	1: {100},
	2: {70, 30},
	3: {60, 20, 20},
	4: {55, 15, 15, 15},
	5: {52, 12, 12, 12, 12},
}

// DefaultSplits returns the work percentages for n mechanics by position.
// Above five mechanics the first gets 51 and the rest share 49 by floor
// division, so the total can fall short of 100.
func DefaultSplits(n int) []int {
	if n <= 0 {
		return []int{}
	}
	if n < len(fixedSplits) {
		return slices.Clone(fixedSplits[n])
	}
	splits := make([]int, n)
	splits[0] = 51
	rest := (100 - 51) / (n - 1)
	for i := 1; i < n; i++ {
		splits[i] = rest
	}
	return splits
}

type Balance int

const (
	BalanceUnder Balance = iota - 1
	BalanceExact
	BalanceOver
)

func (b Balance) String() string {
	switch b {
	case BalanceUnder:
		return "under"
	case BalanceOver:
		return "over"
	default:
		return "exact"
	}
}

// Assignment is the ordered list of mechanics on one job. Every Add and
// Remove reassigns default splits to all positions, discarding manual
// edits made through SetPercentage.
type Assignment struct {
	mechanics []domain.AssignedMechanic
}

func (a *Assignment) Add(id, name string) {
	if a.index(id) >= 0 {
		return
	}
	a.mechanics = append(a.mechanics, domain.AssignedMechanic{ID: id, Name: name})
	a.rebalance()
}

func (a *Assignment) Remove(id string) {
	i := a.index(id)
	if i < 0 {
		return
	}
	a.mechanics = slices.Delete(a.mechanics, i, i+1)
	a.rebalance()
}

func (a *Assignment) SetPercentage(id string, pct int) {
	if i := a.index(id); i >= 0 {
		a.mechanics[i].Percentage = pct
	}
}

func (a *Assignment) Mechanics() []domain.AssignedMechanic {
	return slices.Clone(a.mechanics)
}

func (a *Assignment) Len() int {
	return len(a.mechanics)
}

func (a *Assignment) TotalPercentage() int {
	total := 0
	for _, m := range a.mechanics {
		total += m.Percentage
	}
	return total
}

// Balance flags the soft "sums to 100" rule. It never blocks checkout.
func (a *Assignment) Balance() Balance {
	switch total := a.TotalPercentage(); {
	case total < 100:
		return BalanceUnder
	case total > 100:
		return BalanceOver
	default:
		return BalanceExact
	}
}

func (a *Assignment) Clear() {
	a.mechanics = nil
}

func (a *Assignment) index(id string) int {
	return slices.IndexFunc(a.mechanics, func(m domain.AssignedMechanic) bool {
		return m.ID == id
	})
}

func (a *Assignment) rebalance() {
	splits := DefaultSplits(len(a.mechanics))
	for i := range a.mechanics {
		a.mechanics[i].Percentage = splits[i]
	}
}
