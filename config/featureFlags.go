package config

import (
	"os"
	"strings"
)

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// StrictCapTableInvariant fails the accept transaction when the post-mutation
// cap-table sum for the project drifts from 100%. Default on; disable only
// for backfills against known-dirty data.
//
// Set via env:
// - STRICT_CAP_TABLE_INVARIANT=false
func StrictCapTableInvariant() bool {
	return boolFromEnv("STRICT_CAP_TABLE_INVARIANT", true)
}

// ExpirePendingOffersInBatch lets the vesting batch run sweep PENDING offers
// past their expiry into the explicit EXPIRED state.
//
// Set via env:
// - EXPIRE_PENDING_OFFERS=false
func ExpirePendingOffersInBatch() bool {
	return boolFromEnv("EXPIRE_PENDING_OFFERS", true)
}
