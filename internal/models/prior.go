package models

// PriorOI is the open interest published for one strike by the previous run.
type PriorOI struct {
	Call int64
	Put  int64
}

// Side returns the prior open interest for one leg.
func (p PriorOI) Side(s Side) int64 {
	if s == Put {
		return p.Put
	}
	return p.Call
}

// PriorState maps strikes of the last published table to their open interest.
// A nil PriorState is valid and means "no history".
type PriorState map[StrikeKey]PriorOI

// Get returns the prior open interest of a strike, zero when absent.
func (p PriorState) Get(k StrikeKey) PriorOI {
	if p == nil {
		return PriorOI{}
	}
	return p[k]
}
