package pipeline

import (
	"github.com/spiffcs/devexport/internal/checkpoint"
	"github.com/spiffcs/devexport/internal/model"
)

// accumulator owns the completed unit results of one run. Only the
// sequential control flow appends to it.
type accumulator struct {
	units []model.UnitResult
	index map[string]int
}

// newAccumulator seeds an accumulator from a resumed checkpoint.
func newAccumulator(cp *checkpoint.Checkpoint) *accumulator {
	a := &accumulator{index: make(map[string]int)}
	if cp == nil {
		return a
	}
	for _, u := range cp.Units {
		a.add(u)
	}
	return a
}

func (a *accumulator) has(unit string) bool {
	_, ok := a.index[unit]
	return ok
}

func (a *accumulator) get(unit string) (model.UnitResult, bool) {
	i, ok := a.index[unit]
	if !ok {
		return model.UnitResult{}, false
	}
	return a.units[i], true
}

// add appends u. A unit already present is replaced.
func (a *accumulator) add(u model.UnitResult) {
	if i, ok := a.index[u.Unit]; ok {
		a.units[i] = u
		return
	}
	a.index[u.Unit] = len(a.units)
	a.units = append(a.units, u)
}

// retain drops units for which keep returns false and returns how many
// were dropped.
func (a *accumulator) retain(keep func(model.UnitResult) bool) int {
	kept := a.units[:0]
	for _, u := range a.units {
		if keep(u) {
			kept = append(kept, u)
		}
	}
	dropped := len(a.units) - len(kept)
	a.units = kept
	a.index = make(map[string]int, len(kept))
	for i, u := range kept {
		a.index[u.Unit] = i
	}
	return dropped
}

// snapshot returns a copy of the accumulated units for persistence.
func (a *accumulator) snapshot() []model.UnitResult {
	out := make([]model.UnitResult, len(a.units))
	copy(out, a.units)
	return out
}

func (a *accumulator) len() int {
	return len(a.units)
}
