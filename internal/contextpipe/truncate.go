// Package contextpipe keeps conversation context bounded: tool-result
// truncation under a context budget, history compression, per-turn read
// de-duplication, and the explore aggregator backing the live UI block.
package contextpipe

// TruncationMarker is appended verbatim when a result is cut.
const TruncationMarker = "\n…(truncated)"

// TruncateConfig bounds how much of one tool result may enter the context.
type TruncateConfig struct {
	// ContextLimit is the model context size in characters.
	ContextLimit int `json:"contextLimit"`
	// MaxShare is the fraction of the remaining context one result may use.
	MaxShare float64 `json:"toolResultMaxContextShare"`
	// HardMax caps a single result regardless of remaining room.
	HardMax int `json:"toolResultHardMax"`
	// MinKeep is always granted, even with the context nearly full.
	MinKeep int `json:"toolResultMinKeep"`
}

func DefaultTruncateConfig() TruncateConfig {
	return TruncateConfig{
		ContextLimit: 400_000,
		MaxShare:     0.25,
		HardMax:      30_000,
		MinKeep:      2_000,
	}
}

// Available returns the character budget for one tool result given the
// current context occupancy.
func (c TruncateConfig) Available(occupancy int) int {
	share := int(c.MaxShare*float64(c.ContextLimit)) - occupancy
	avail := c.HardMax
	if share < avail {
		avail = share
	}
	if avail < c.MinKeep {
		avail = c.MinKeep
	}
	return avail
}

// Truncate returns s unchanged when it fits the budget, otherwise a prefix
// of s followed by the truncation marker. The marker counts against the
// budget so the returned string never exceeds it.
func Truncate(s string, cfg TruncateConfig, occupancy int) string {
	avail := cfg.Available(occupancy)
	if len(s) <= avail {
		return s
	}
	keep := avail - len(TruncationMarker)
	if keep < 0 {
		keep = 0
	}
	return s[:keep] + TruncationMarker
}
