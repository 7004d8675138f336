package model

import "time"

// Account is a prepaid user account. Balance is held in minutes; it is the
// single source of truth for remaining entitlement.
type Account struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Balance   int       `json:"balance"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionEntry is one settled session as appended to the session log.
type SessionEntry struct {
	ClientIP        string    `json:"client_ip"`
	Username        string    `json:"username"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Tier            string    `json:"tier"`
}
