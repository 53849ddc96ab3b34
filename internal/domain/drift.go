package domain

import "time"

// BucketDrift is the deviation of one bucket from its target
type BucketDrift struct {
	Bucket      Bucket  `json:"bucket" msgpack:"bucket"`
	Actual      float64 `json:"actual" msgpack:"actual"`
	Target      float64 `json:"target" msgpack:"target"`
	Signed      float64 `json:"signed" msgpack:"signed"`
	Absolute    float64 `json:"absolute" msgpack:"absolute"`
	ActualValue float64 `json:"actual_value" msgpack:"actual_value"`
	TargetValue float64 `json:"target_value" msgpack:"target_value"`
}

// DriftReport summarises how far actual holdings are from the targets.
// TotalValue is the sum of non-negative bucket values that the weights are
// measured against; NetValue is the plain sum of market values.
type DriftReport struct {
	Items        []BucketDrift `json:"items"`
	ShortBuckets []Bucket      `json:"short_buckets,omitempty"`
	Aggregate    float64       `json:"aggregate"`
	Trend        float64       `json:"trend"`
	TotalValue   float64       `json:"total_value"`
	NetValue     float64       `json:"net_value"`
	HasPrior     bool          `json:"has_prior"`
}

// Item returns the drift entry for a bucket
func (r DriftReport) Item(b Bucket) (BucketDrift, bool) {
	for _, item := range r.Items {
		if item.Bucket == b {
			return item, true
		}
	}
	return BucketDrift{}, false
}

// DriftSnapshot is the persisted previous drift used for trend computation
type DriftSnapshot struct {
	RecordedAt time.Time     `msgpack:"recorded_at"`
	Items      []BucketDrift `msgpack:"items"`
	Aggregate  float64       `msgpack:"aggregate"`
}
