package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Snapshot is an immutable copy of one raw record as fetched.
type Snapshot struct {
	ID             string
	RunID          string
	EntityKind     EntityKind
	EntityID       string
	ExternalID     string
	ExternalSource string
	Collection     string
	PayloadHash    string
	Payload        json.RawMessage
	SizeBytes      int64
	ObjectKey      string
	CapturedAt     time.Time
}

func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("snapshot id is required")
	}
	if strings.TrimSpace(s.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(string(s.EntityKind)) == "" {
		return errors.New("entity kind is required")
	}
	if strings.TrimSpace(s.PayloadHash) == "" {
		return errors.New("payload hash is required")
	}
	if len(s.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}
