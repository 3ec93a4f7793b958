// Package types holds the data model shared across the edge coordinator's
// components: the wire shapes exchanged with door nodes and the origin,
// and the small set of in-memory records the coordinator loop mutates.
package types

import "time"

// LogTimestamp is the layout used for every timestamp that crosses the
// wire or hits the access log: "YYYY-MM-DD HH:MM:SS".
const LogTimestamp = "2006-01-02 15:04:05"

// AuthEvent is the inbound message on /authenticate. It is never
// persisted as a structure — only its fields are written to the access
// log as a CSV line.
type AuthEvent struct {
	UID    string    `json:"uid"`
	NodeID string    `json:"node_id"`
	TS     time.Time `json:"-"`
	Date   string    `json:"date"`
	Result bool      `json:"result"`
}

// AuthDecision is the outbound message on /allow_authentication.
type AuthDecision struct {
	UID       string `json:"uid"`
	NodeID    string `json:"node_id"`
	Result    bool   `json:"result"`
	Signature string `json:"signature"`
}

// SignedUIDList is published on /access_list and /response_access_list.
type SignedUIDList struct {
	UIDs      []string `json:"uids"`
	Signature string   `json:"signature"`
}

// RemoveUID is published on /remove_uid when the Lockout Engine fires.
type RemoveUID struct {
	UID       string `json:"uid"`
	Signature string `json:"signature"`
}

// AccessListItem is a single element of the origin's
// GET /access_list/ response body.
type AccessListItem struct {
	UID string `json:"uid"`
}

// NexxgateAccessEvent is relayed to the origin's MQTT bus on
// /nexxgate/access. Result is deliberately a string ("True"/"False"),
// not a bool, for wire compatibility with the origin (spec.md §9).
type NexxgateAccessEvent struct {
	UID    string `json:"uid"`
	NodeID string `json:"node_id"`
	Date   string `json:"date"`
	Result string `json:"result"`
	APIKey string `json:"api_key"`
}

// LockoutEntry records the last time and node a UID was seen granting
// access. One entry per UID ever seen; never evicted within process
// lifetime.
type LockoutEntry struct {
	LastTS   time.Time
	LastNode string
}

// BoolString renders a bool the way the origin bus expects it.
func BoolString(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
