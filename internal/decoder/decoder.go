// Package decoder turns raw Torii records into typed events and models.
// Both wire shapes go through the same per-kind field logic.
package decoder

import (
	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/torii"
)

type eventDecoder func(r *reader) models.EventData
type modelDecoder func(r *reader) models.ModelData

var eventDecoders = map[models.EventKind]eventDecoder{
	models.KindAuctionFinished: func(r *reader) models.EventData {
		return models.AuctionFinished{
			Location:   r.location("land_location", "location"),
			Buyer:      r.address("buyer"),
			StartTime:  r.u64("start_time"),
			FinalTime:  r.u64("final_time"),
			FinalPrice: r.u256("final_price"),
		}
	},
	models.KindLandBought: func(r *reader) models.EventData {
		return models.LandBought{
			Buyer:     r.address("buyer"),
			Location:  r.location("land_location", "location"),
			SoldPrice: r.u256("sold_price"),
			Seller:    r.address("seller"),
			TokenUsed: r.address("token_used"),
		}
	},
	models.KindLandNuked: func(r *reader) models.EventData {
		return models.LandNuked{
			Owner:    r.address("owner_nuked"),
			Location: r.location("land_location", "location"),
		}
	},
	models.KindNewAuction: func(r *reader) models.EventData {
		return models.NewAuction{
			Location:   r.location("land_location", "location"),
			StartTime:  r.u64("start_time"),
			StartPrice: r.u256("start_price"),
			FloorPrice: r.u256("floor_price"),
		}
	},
	models.KindRemainingStake: func(r *reader) models.EventData {
		return models.RemainingStake{
			Location:       r.location("land_location", "location"),
			RemainingStake: r.u256("remaining_stake"),
		}
	},
	models.KindAddressAuthorized: func(r *reader) models.EventData {
		return models.AddressAuthorized{
			Address:      r.address("address"),
			AuthorizedAt: r.u64("authorized_at"),
		}
	},
	models.KindAddressRemoved: func(r *reader) models.EventData {
		// Older contract versions reused the authorized_at name.
		return models.AddressRemoved{
			Address:   r.address("address"),
			RemovedAt: r.u64("removed_at", "authorized_at"),
		}
	},
	models.KindVerifierUpdated: func(r *reader) models.EventData {
		return models.VerifierUpdated{
			NewVerifier: r.address("new_verifier"),
			OldVerifier: r.address("old_verifier"),
		}
	},
}

var modelDecoders = map[models.ModelKind]modelDecoder{
	models.KindLand: func(r *reader) models.ModelData {
		return models.Land{
			Location:        r.location("land_location", "location"),
			BlockDateBought: r.u64("block_date_bought"),
			Owner:           r.address("owner"),
			SellPrice:       r.u256("sell_price"),
			TokenUsed:       r.address("token_used"),
			Level:           r.level("level"),
		}
	},
	models.KindLandStake: func(r *reader) models.ModelData {
		return models.LandStake{
			Location:    r.location("land_location", "location"),
			LastPayTime: r.u64("last_pay_time"),
			Amount:      r.u256("amount"),
		}
	},
}

// DecodeEvent decodes an event record of either shape.
func DecodeEvent(raw torii.RawRecord) (models.EventData, error) {
	tag := raw.Tag()
	decode, ok := eventDecoders[models.EventKind(tag)]
	if !ok {
		return nil, &UnknownKindError{Tag: tag}
	}
	r, err := newReader(raw)
	if err != nil {
		return nil, withKind(err, tag)
	}
	data := decode(r)
	if r.err != nil {
		return nil, withKind(r.err, tag)
	}
	return data, nil
}

// DecodeModel decodes a model snapshot of either shape.
func DecodeModel(raw torii.RawRecord) (models.ModelData, error) {
	tag := raw.Tag()
	decode, ok := modelDecoders[models.ModelKind(tag)]
	if !ok {
		return nil, &UnknownKindError{Tag: tag}
	}
	r, err := newReader(raw)
	if err != nil {
		return nil, withKind(err, tag)
	}
	data := decode(r)
	if r.err != nil {
		return nil, withKind(r.err, tag)
	}
	return data, nil
}

func newReader(raw torii.RawRecord) (*reader, error) {
	switch {
	case raw.Struct != nil:
		return &reader{src: structFields{s: raw.Struct}}, nil
	case raw.JSON != nil:
		f, err := newJSONFields(raw.JSON.Data)
		if err != nil {
			return nil, err
		}
		return &reader{src: f}, nil
	}
	return nil, malformed("record", "carries no payload")
}
