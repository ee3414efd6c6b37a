package query

import "time"

// Response types for the ops/query HTTP surface. Percentages are fixed-point
// ppm; the human-readable pct field is derived for dashboards only.

type BreachResponse struct {
	AlertID       string    `json:"alert_id"`
	InstrumentID  string    `json:"instrument_id"`
	TradingDay    string    `json:"trading_day"`
	RuleVersion   int64     `json:"rule_version"`
	FirstBreachTs time.Time `json:"ts_first_breach"`
	PctChangePPM  int64     `json:"pct_change_ppm"`
	Direction     string    `json:"direction"`
}

type NotificationStatusResponse struct {
	UserID       string     `json:"user_id"`
	TradingDay   string     `json:"trading_day"`
	InstrumentID string     `json:"instrument_id"`
	Notified     bool       `json:"notified"`
	AlertID      string     `json:"alert_id,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

type DayStatsResponse struct {
	TradingDay        string     `json:"trading_day"`
	BreachCount       int64      `json:"breach_count"`
	NotificationCount int64      `json:"notification_count"`
	SubscriptionCount int64      `json:"subscription_count"`
	LatestBreachTs    *time.Time `json:"latest_breach_ts,omitempty"`
}
