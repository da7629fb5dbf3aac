package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type Tier string

const (
	TierLongLived Tier = "long-lived"
	TierSession   Tier = "session"
)

// StorageRecord is the serialized form of a cart snapshot in one tier.
type StorageRecord struct {
	Tier    Tier           `json:"tier"`
	Items   []CartLineItem `json:"items"`
	SavedAt time.Time      `json:"savedAt"`
}

func EncodeRecord(tier Tier, snap CartSnapshot, savedAt time.Time) ([]byte, error) {
	items := snap.Items
	if items == nil {
		items = []CartLineItem{}
	}
	b, err := json.Marshal(StorageRecord{Tier: tier, Items: items, SavedAt: savedAt})
	if err != nil {
		return nil, fmt.Errorf("marshal %s record: %w", tier, err)
	}
	return b, nil
}

// DecodeRecord parses a record read from the want tier. A record tagged
// with another tier is rejected with ErrTierMismatch.
func DecodeRecord(b []byte, want Tier) (StorageRecord, error) {
	var rec StorageRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return StorageRecord{}, fmt.Errorf("unmarshal storage record: %w", err)
	}
	if rec.Tier != want {
		return StorageRecord{}, fmt.Errorf("%w: want %s, got %q", ErrTierMismatch, want, rec.Tier)
	}
	return rec, nil
}
