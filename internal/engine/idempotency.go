package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rendis/procura/pkg/schema"
)

// entityKeys are the trigger_data fields that identify the business entity a
// trigger is about, most specific first. Party ids (client, vendor) are not
// entities: one client raises many distinct triggers.
var entityKeys = []string{
	schema.KeyRequestID,
	schema.KeyOfferID,
	schema.KeyOrderID,
}

// EntityID returns the first present entity id in data and the key it came from.
func EntityID(data schema.TriggerData) (key, id string) {
	for _, k := range entityKeys {
		if v := data.String(k); v != "" {
			return k, v
		}
	}
	return "", ""
}

// IdempotencyKey derives the deduplication key for running ruleID against a
// trigger. Returns "" when data names no entity, in which case no dedup applies.
func IdempotencyKey(ruleID, triggerType string, data schema.TriggerData) string {
	k, id := EntityID(data)
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{ruleID, triggerType, k + "=" + id}, "|")))
	return hex.EncodeToString(sum[:])
}
