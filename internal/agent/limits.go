package agent

// Limits bounds the workflow's retry loops and tunes candidate selection.
// TotalLoops is the single authoritative circuit breaker; the per-kind
// counters only choose which recovery path to take.
type Limits struct {
	// MaxSQLRetry bounds guard/execution-driven SQL regeneration.
	MaxSQLRetry int
	// MaxTableExpand bounds table expansion events per turn.
	MaxTableExpand int
	// MaxValidationRetry bounds validation-driven regeneration.
	MaxValidationRetry int
	// MaxTotalLoops bounds all retry-causing events combined.
	MaxTotalLoops int

	// RetrieveK is the candidate count requested from the table search port.
	RetrieveK int
	// TopK is the fallback selection size when reranking fails.
	TopK int
	// ExpandStep is the candidate batch size per expansion.
	ExpandStep int
	// ElbowThreshold is the adjacent score gap that marks the rerank cut.
	ElbowThreshold float64
	// MinKeep / MaxKeep bound the reranked selection size.
	MinKeep int
	MaxKeep int

	// Timezone names the zone used for "now" and defaulted time ranges.
	Timezone string
}

// DefaultLimits returns the production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxSQLRetry:        2,
		MaxTableExpand:     2,
		MaxValidationRetry: 1,
		MaxTotalLoops:      10,
		RetrieveK:          15,
		TopK:               5,
		ExpandStep:         5,
		ElbowThreshold:     0.15,
		MinKeep:            3,
		MaxKeep:            5,
		Timezone:           "UTC",
	}
}
