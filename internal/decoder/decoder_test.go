package decoder

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/torii"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonRecord(name, data string) torii.RawRecord {
	return torii.RawRecord{Origin: torii.OriginCatchUp, EventID: "e", JSON: &torii.JSONRecord{Name: name, Data: json.RawMessage(data)}}
}

func structRecord(name string, children ...torii.Member) torii.RawRecord {
	return torii.RawRecord{Origin: torii.OriginLive, Struct: &torii.Struct{Name: name, Children: children}}
}

func prim(name, typ, value string) torii.Member {
	return torii.Member{Name: name, Ty: torii.Ty{Primitive: &torii.Primitive{Type: typ, Value: json.RawMessage(value)}}}
}

func enum(name, option string) torii.Member {
	return torii.Member{Name: name, Ty: torii.Ty{Enum: &torii.Enum{Name: "Level", Option: option}}}
}

func TestDecodeEventJSON(t *testing.T) {
	tests := []struct {
		name string
		tag  models.EventKind
		data string
		want models.EventData
	}{
		{
			name: "auction finished",
			tag:  models.KindAuctionFinished,
			data: `{"land_location":2080,"buyer":"0x0ABC","start_time":"1700000000","final_time":1700000600,"final_price":"0x0de0b6b3a7640000"}`,
			want: models.AuctionFinished{Location: 2080, Buyer: "0xabc", StartTime: 1700000000, FinalTime: 1700000600, FinalPrice: models.MustU256("1000000000000000000")},
		},
		{
			name: "land bought",
			tag:  models.KindLandBought,
			data: `{"buyer":"0x1","land_location":{"x":1,"y":2},"sold_price":"500","seller":"0x2","token_used":"0x3"}`,
			want: models.LandBought{Buyer: "0x1", Location: 66, SoldPrice: models.NewU256(500), Seller: "0x2", TokenUsed: "0x3"},
		},
		{
			name: "land nuked",
			tag:  models.KindLandNuked,
			data: `{"owner_nuked":"0x00ff","land_location":"7"}`,
			want: models.LandNuked{Owner: "0xff", Location: 7},
		},
		{
			name: "new auction",
			tag:  models.KindNewAuction,
			data: `{"land_location":12,"start_time":"0x10","start_price":"100","floor_price":"10"}`,
			want: models.NewAuction{Location: 12, StartTime: 16, StartPrice: models.NewU256(100), FloorPrice: models.NewU256(10)},
		},
		{
			name: "remaining stake",
			tag:  models.KindRemainingStake,
			data: `{"land_location":3,"remaining_stake":"0x0"}`,
			want: models.RemainingStake{Location: 3, RemainingStake: models.NewU256(0)},
		},
		{
			name: "address authorized",
			tag:  models.KindAddressAuthorized,
			data: `{"address":"0xaa","authorized_at":"42"}`,
			want: models.AddressAuthorized{Address: "0xaa", AuthorizedAt: 42},
		},
		{
			name: "address removed with legacy field",
			tag:  models.KindAddressRemoved,
			data: `{"address":"0xaa","authorized_at":43}`,
			want: models.AddressRemoved{Address: "0xaa", RemovedAt: 43},
		},
		{
			name: "address removed",
			tag:  models.KindAddressRemoved,
			data: `{"address":"0xaa","removed_at":44}`,
			want: models.AddressRemoved{Address: "0xaa", RemovedAt: 44},
		},
		{
			name: "verifier updated",
			tag:  models.KindVerifierUpdated,
			data: `{"new_verifier":"0x2","old_verifier":"0x1"}`,
			want: models.VerifierUpdated{NewVerifier: "0x2", OldVerifier: "0x1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent(jsonRecord(string(tt.tag), tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.tag, got.Kind())
		})
	}
}

func TestDecodeEventStruct(t *testing.T) {
	raw := structRecord(string(models.KindLandBought),
		prim("buyer", torii.TypeContractAddress, `"0x01"`),
		prim("land_location", torii.TypeU16, `2080`),
		prim("sold_price", torii.TypeU256, `"0x64"`),
		prim("seller", torii.TypeContractAddress, `"0x02"`),
		prim("token_used", torii.TypeContractAddress, `"0x03"`),
	)

	got, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, models.LandBought{Buyer: "0x1", Location: 2080, SoldPrice: models.NewU256(100), Seller: "0x2", TokenUsed: "0x3"}, got)
}

func TestBothShapesAgree(t *testing.T) {
	fromJSON, err := DecodeEvent(jsonRecord(string(models.KindAuctionFinished),
		`{"land_location":5,"buyer":"0xb","start_time":1,"final_time":2,"final_price":"3"}`))
	require.NoError(t, err)

	fromStruct, err := DecodeEvent(structRecord(string(models.KindAuctionFinished),
		prim("land_location", torii.TypeU16, `5`),
		prim("buyer", torii.TypeContractAddress, `"0xb"`),
		prim("start_time", torii.TypeU64, `"1"`),
		prim("final_time", torii.TypeU64, `2`),
		prim("final_price", torii.TypeU256, `"0x3"`),
	))
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromStruct)
}

func TestDecodeModel(t *testing.T) {
	land, err := DecodeModel(jsonRecord(string(models.KindLand), `{
		"block_date_bought":"0",
		"level":{"Zero":[]},
		"location":2080,
		"owner":"0x0",
		"sell_price":"0x000000000000000000000000000000000000000000000006f05b59d3b2000000",
		"token_used":"0x5735fa6be5dd248350866644c0a137e571f9d637bb4db6532ddd63a95854b58"
	}`))
	require.NoError(t, err)
	assert.Equal(t, models.Land{
		Location:  2080,
		Owner:     "0x0",
		SellPrice: models.MustU256("128000000000000000000"),
		TokenUsed: "0x5735fa6be5dd248350866644c0a137e571f9d637bb4db6532ddd63a95854b58",
		Level:     models.LevelZero,
	}, land)

	stake, err := DecodeModel(structRecord(string(models.KindLandStake),
		prim("location", torii.TypeU16, `9`),
		prim("last_pay_time", torii.TypeU64, `"1700000000"`),
		prim("amount", torii.TypeU256, `"0x10"`),
	))
	require.NoError(t, err)
	assert.Equal(t, models.LandStake{Location: 9, LastPayTime: 1700000000, Amount: models.NewU256(16)}, stake)

	leveled, err := DecodeModel(structRecord(string(models.KindLand),
		prim("land_location", torii.TypeU16, `1`),
		prim("block_date_bought", torii.TypeU64, `2`),
		prim("owner", torii.TypeContractAddress, `"0x1"`),
		prim("sell_price", torii.TypeU256, `"1"`),
		prim("token_used", torii.TypeContractAddress, `"0x2"`),
		enum("level", "Second"),
	))
	require.NoError(t, err)
	assert.Equal(t, models.LevelSecond, leveled.(models.Land).Level)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := DecodeEvent(jsonRecord("ponzi_land-UnheardOfEvent", `{}`))
	var unknown *UnknownKindError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ponzi_land-UnheardOfEvent", unknown.Tag)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = DecodeModel(structRecord("ponzi_land-Auction"))
	require.ErrorAs(t, err, &unknown)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		raw   torii.RawRecord
		field string
	}{
		{"missing field", jsonRecord(string(models.KindLandNuked), `{"owner_nuked":"0x1"}`), "land_location"},
		{"location too wide", jsonRecord(string(models.KindLandNuked), `{"owner_nuked":"0x1","land_location":70000}`), "land_location"},
		{"bad hex", jsonRecord(string(models.KindLandNuked), `{"owner_nuked":"0xnothex","land_location":1}`), "owner_nuked"},
		{"negative time", jsonRecord(string(models.KindAddressAuthorized), `{"address":"0x1","authorized_at":-1}`), "authorized_at"},
		{"payload not an object", jsonRecord(string(models.KindLandNuked), `[1,2]`), "data"},
		{"struct missing member", structRecord(string(models.KindLandNuked), prim("owner_nuked", torii.TypeContractAddress, `"0x1"`)), "land_location"},
		{"struct bad value", structRecord(string(models.KindLandNuked), prim("owner_nuked", torii.TypeContractAddress, `"0x1"`), prim("land_location", torii.TypeU16, `"abc"`)), "land_location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent(tt.raw)
			var m *MalformedError
			require.ErrorAs(t, err, &m)
			assert.Equal(t, tt.field, m.Field)
			assert.Equal(t, tt.raw.Tag(), m.Kind)
			assert.True(t, errors.Is(err, ErrDecode))
		})
	}
}

func TestDecodeUnknownLevel(t *testing.T) {
	_, err := DecodeModel(jsonRecord(string(models.KindLand),
		`{"location":1,"block_date_bought":0,"owner":"0x1","sell_price":"1","token_used":"0x2","level":{"Third":[]}}`))
	var m *MalformedError
	require.ErrorAs(t, err, &m)
	assert.Equal(t, "level", m.Field)
}

func TestDecodeNotExtractable(t *testing.T) {
	_, err := DecodeEvent(structRecord(string(models.KindLandNuked),
		prim("owner_nuked", torii.TypeBool, `true`),
		prim("land_location", torii.TypeU16, `1`),
	))
	var ne *NotExtractableError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "owner_nuked", ne.Field)
	assert.Equal(t, "address", ne.Expected)
	assert.Equal(t, "bool", ne.Got)

	_, err = DecodeModel(structRecord(string(models.KindLand),
		prim("land_location", torii.TypeU16, `1`),
		prim("block_date_bought", torii.TypeU64, `2`),
		prim("owner", torii.TypeContractAddress, `"0x1"`),
		prim("sell_price", torii.TypeU256, `"1"`),
		prim("token_used", torii.TypeContractAddress, `"0x2"`),
		prim("level", torii.TypeU8, `0`),
	))
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "enum", ne.Expected)
	assert.Equal(t, string(models.KindLand), ne.Kind)
}

func TestDecodeEmptyRecord(t *testing.T) {
	_, err := DecodeEvent(torii.RawRecord{})
	assert.ErrorIs(t, err, ErrDecode)
}
