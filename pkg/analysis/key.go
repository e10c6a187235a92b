package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// keyNamespace seeds the deterministic v5 UUIDs used as document keys, so
// the same identity always maps to the same key in every environment.
var keyNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("runsight.analysis"))

// RecordKey identifies the lifecycle record for one (activity, plan) pair.
// One record exists per pair; re-analyses of new input reuse the slot.
func RecordKey(activityID, planID string) string {
	return uuid.NewSHA1(keyNamespace, []byte("record|"+activityID+"|"+planID)).String()
}

// ResultKey identifies one immutable result: the (activity, plan) identity
// plus the hash of the exact input that produced it. A new input yields a
// new key, never an in-place update of an old result.
func ResultKey(activityID, planID, inputHash string) string {
	return uuid.NewSHA1(keyNamespace, []byte("result|"+activityID+"|"+planID+"|"+inputHash)).String()
}

// HashInput fingerprints the engine input. The JSON encoding of Input is
// canonical (fixed struct field order, no maps), so byte-identical inputs
// hash identically and any change to samples, baseline or plan changes the
// hash.
func HashInput(in Input) string {
	data, err := json.Marshal(in)
	if err != nil {
		// Input contains only plain values and pointers; Marshal cannot
		// fail on it. Keep a stable fallback anyway.
		data = []byte(in.ActivityID + "|" + in.PlanID)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
