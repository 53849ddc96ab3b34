package domain

import "time"

// Regime is the name of a discrete risk band.
// Ordering comes from the policy's band list, not from the name.
type Regime string

// Default regime names shipped with the embedded policy
const (
	RegimeNormal   Regime = "NORMAL"
	RegimeElevated Regime = "ELEVATED"
	RegimeHighRisk Regime = "HIGH_RISK"
	RegimeExtreme  Regime = "EXTREME"
)

// Transition describes how the regime moved in a cycle
type Transition string

const (
	TransitionNone    Transition = "none"
	TransitionUp      Transition = "up"
	TransitionDown    Transition = "down"
	TransitionInitial Transition = "initial"
)

// RegimeState is the persisted hysteresis state of the regime classifier.
// Exactly one instance exists; it is loaded, mutated and stored once per cycle.
type RegimeState struct {
	UpdatedAt        time.Time `json:"updated_at" msgpack:"updated_at"`
	LastScore        *float64  `json:"last_score,omitempty" msgpack:"last_score"`
	Regime           Regime    `json:"regime" msgpack:"regime"`
	PendingTarget    Regime    `json:"pending_target,omitempty" msgpack:"pending_target"`
	PendingDirection int       `json:"pending_direction" msgpack:"pending_direction"` // +1 up, -1 down, 0 none
	PendingCount     int       `json:"pending_count" msgpack:"pending_count"`
}

// Bucket is a named slice of the portfolio with its own target weight
type Bucket string

const (
	BucketStrategicCore    Bucket = "strategic_core"
	BucketGrowthEngine     Bucket = "growth_engine"
	BucketIncomeStrategy   Bucket = "income_strategy"
	BucketSpeculativeAlpha Bucket = "speculative_alpha"
	BucketInsuranceHedge   Bucket = "insurance_hedge"
	BucketHardAssetReserve Bucket = "hard_asset_reserve"
	BucketCashReserve      Bucket = "cash_reserve"
)

// AllBuckets returns every bucket in reporting order
func AllBuckets() []Bucket {
	return []Bucket{
		BucketStrategicCore,
		BucketGrowthEngine,
		BucketIncomeStrategy,
		BucketSpeculativeAlpha,
		BucketInsuranceHedge,
		BucketHardAssetReserve,
		BucketCashReserve,
	}
}

// Valid reports whether b is one of the known buckets
func (b Bucket) Valid() bool {
	for _, known := range AllBuckets() {
		if b == known {
			return true
		}
	}
	return false
}

// AllocationTarget maps each bucket to its target weight in percent
type AllocationTarget map[Bucket]float64

// Total returns the sum of all target weights
func (a AllocationTarget) Total() float64 {
	var sum float64
	for _, w := range a {
		sum += w
	}
	return sum
}
