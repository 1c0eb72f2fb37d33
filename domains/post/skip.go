package post

type SkipReason string

const (
	SkipDuplicateHash     SkipReason = "duplicate_hash"
	SkipSimilarityTooHigh SkipReason = "similarity_too_high"
	SkipSlotTaken         SkipReason = "slot_taken"
	SkipCircuitBreaker    SkipReason = "circuit_breaker"
	SkipStale             SkipReason = "stale"
	SkipDailyCapReached   SkipReason = "daily_cap_reached"
	SkipSlotPosted        SkipReason = "slot_posted"
	SkipBatchDuplicate    SkipReason = "batch_duplicate"
	SkipNoLongerDue       SkipReason = "no_longer_due"
	SkipUnscheduled       SkipReason = "unscheduled"
)

// Skip records why a candidate was not committed or not published.
// It is a result, never an error.
type Skip struct {
	PostID     string     `json:"post_id,omitempty"`
	SlotID     string     `json:"slot_id,omitempty"`
	Reason     SkipReason `json:"reason"`
	MatchedID  string     `json:"matched_id,omitempty"`
	Similarity float64    `json:"similarity,omitempty"`
}
