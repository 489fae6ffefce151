package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies one of the telemetry ledgers.
type Kind string

const (
	KindHeartbeat Kind = "heartbeat"
	KindLocation  Kind = "location"
	KindEvent     Kind = "event"
)

// Kinds lists every ledger kind in a fixed order.
var Kinds = []Kind{KindHeartbeat, KindLocation, KindEvent}

// ParseKind normalizes a kind name. The dashboard historically used plural
// forms in URLs, so both "location" and "locations" are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heartbeat", "heartbeats":
		return KindHeartbeat, nil
	case "location", "locations":
		return KindLocation, nil
	case "event", "events":
		return KindEvent, nil
	}
	return "", fmt.Errorf("invalid kind: %q", s)
}

// Record is one ingested telemetry observation. The payload is free-form;
// only deviceId, collectedAt and serverReceivedAt have reserved meaning.
type Record map[string]interface{}

// DeviceID returns the record's device identifier, or "" when absent.
func (r Record) DeviceID() string {
	if v, ok := r["deviceId"].(string); ok {
		return v
	}
	return ""
}

// SortTime returns the timestamp the record sorts by: collectedAt when
// present and parseable, otherwise serverReceivedAt. Missing or unparseable
// timestamps sort as the Unix epoch.
func (r Record) SortTime() time.Time {
	for _, key := range []string{"collectedAt", "serverReceivedAt"} {
		s, ok := r[key].(string)
		if !ok || s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.UnixMilli(0)
}
