package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Telemetry feed timestamps use a space-separated UTC layout.
const FeedTimeLayout = "2006-01-02 15:04:05"

// DetailsDocument is the parsed form of the details feed payload.
type DetailsDocument struct {
	Published string       `json:"relays_published"`
	Relays    []NodeRecord `json:"relays"`
}

// UptimeDocument is the parsed form of the uptime feed payload.
type UptimeDocument struct {
	Published string         `json:"relays_published"`
	Relays    []UptimeRecord `json:"relays"`
}

// DecodeDetails parses a details feed payload.
func DecodeDetails(payload []byte) (*DetailsDocument, error) {
	var doc DetailsDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decoding details document: %w", err)
	}
	return &doc, nil
}

// DecodeUptime parses an uptime feed payload.
func DecodeUptime(payload []byte) (*UptimeDocument, error) {
	var doc UptimeDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decoding uptime document: %w", err)
	}
	return &doc, nil
}

// ParseFeedTime parses a feed timestamp; zero time and error for empty input.
func ParseFeedTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty feed timestamp")
	}
	t, err := time.Parse(FeedTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing feed timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
