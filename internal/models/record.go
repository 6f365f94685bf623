package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// recordNamespace seeds name-based record ids. Changing it changes every id.
var recordNamespace = uuid.MustParse("6f3d1c52-8a4e-4b7a-9d0e-2c1b5f7a9e33")

// DeriveID maps an upstream Torii event id to a stable record id, so replays
// of the same upstream event collapse onto the same row.
func DeriveID(selector, upstreamID string) uuid.UUID {
	return uuid.NewSHA1(recordNamespace, []byte(selector+"/"+upstreamID))
}

// StoredEvent is a decoded event with its identity and occurrence time.
type StoredEvent struct {
	ID   uuid.UUID
	At   time.Time
	Data EventData
}

// StoredModel is one snapshot of a model at a point in time.
type StoredModel struct {
	ID   uuid.UUID
	At   time.Time
	Data ModelData
}

type storedJSON struct {
	ID   uuid.UUID       `json:"id"`
	At   time.Time       `json:"at"`
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func (e StoredEvent) MarshalJSON() ([]byte, error) {
	if e.Data == nil {
		return nil, fmt.Errorf("event %s has no data", e.ID)
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(storedJSON{ID: e.ID, At: e.At, Kind: string(e.Data.Kind()), Data: data})
}

func (e *StoredEvent) UnmarshalJSON(b []byte) error {
	var raw storedJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := unmarshalEventData(EventKind(raw.Kind), raw.Data)
	if err != nil {
		return err
	}
	e.ID, e.At, e.Data = raw.ID, raw.At, data
	return nil
}

func (m StoredModel) MarshalJSON() ([]byte, error) {
	if m.Data == nil {
		return nil, fmt.Errorf("model %s has no data", m.ID)
	}
	data, err := json.Marshal(m.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(storedJSON{ID: m.ID, At: m.At, Kind: string(m.Data.Kind()), Data: data})
}

func (m *StoredModel) UnmarshalJSON(b []byte) error {
	var raw storedJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var data ModelData
	switch ModelKind(raw.Kind) {
	case KindLand:
		var v Land
		if err := json.Unmarshal(raw.Data, &v); err != nil {
			return err
		}
		data = v
	case KindLandStake:
		var v LandStake
		if err := json.Unmarshal(raw.Data, &v); err != nil {
			return err
		}
		data = v
	default:
		return fmt.Errorf("unknown model kind %q", raw.Kind)
	}
	m.ID, m.At, m.Data = raw.ID, raw.At, data
	return nil
}

func unmarshalEventData(kind EventKind, b []byte) (EventData, error) {
	switch kind {
	case KindAuctionFinished:
		return unmarshalAs[AuctionFinished](b)
	case KindLandBought:
		return unmarshalAs[LandBought](b)
	case KindLandNuked:
		return unmarshalAs[LandNuked](b)
	case KindNewAuction:
		return unmarshalAs[NewAuction](b)
	case KindRemainingStake:
		return unmarshalAs[RemainingStake](b)
	case KindAddressAuthorized:
		return unmarshalAs[AddressAuthorized](b)
	case KindAddressRemoved:
		return unmarshalAs[AddressRemoved](b)
	case KindVerifierUpdated:
		return unmarshalAs[VerifierUpdated](b)
	}
	return nil, fmt.Errorf("unknown event kind %q", kind)
}

func unmarshalAs[T EventData](b []byte) (EventData, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
