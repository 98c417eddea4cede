package models

import "fmt"

// Pipeline stages that may skip an item.
const (
	StagePrior    = "prior"
	StageFetch    = "fetch"
	StageAssemble = "assemble"
	StageSpot     = "spot"
)

// Skip records one item dropped by a skip-and-continue policy.
type Skip struct {
	Stage  string
	Key    string
	Reason string
}

func (s Skip) String() string {
	return fmt.Sprintf("%s[%s]: %s", s.Stage, s.Key, s.Reason)
}

// Diagnostics accumulates skipped items next to a successful result.
type Diagnostics []Skip

// Add records a skipped item. A nil err records an empty reason.
func (d *Diagnostics) Add(stage, key string, err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	*d = append(*d, Skip{Stage: stage, Key: key, Reason: reason})
}

// Merge appends other to d.
func (d *Diagnostics) Merge(other Diagnostics) {
	*d = append(*d, other...)
}

// Count returns the number of skips recorded for a stage.
func (d Diagnostics) Count(stage string) int {
	n := 0
	for _, s := range d {
		if s.Stage == stage {
			n++
		}
	}
	return n
}

// ByStage groups counts per stage, for metrics.
func (d Diagnostics) ByStage() map[string]int {
	out := make(map[string]int)
	for _, s := range d {
		out[s.Stage]++
	}
	return out
}
