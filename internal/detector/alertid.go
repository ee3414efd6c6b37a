package detector

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const alertIDSeed = "BreachLedger:alert:v1"

// ComputeAlertID derives the deterministic alert identifier for one
// (trading_day, instrument, rule_version). The same inputs always produce
// the same id, so re-emission after a crash converges downstream.
func ComputeAlertID(tradingDay, instrument string, ruleVersion int64) string {
	h := sha256.New()
	h.Write([]byte(alertIDSeed))
	h.Write([]byte(fmt.Sprintf("|%s|%s|%d", tradingDay, instrument, ruleVersion)))
	return hex.EncodeToString(h.Sum(nil))
}
