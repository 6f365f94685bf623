package models

import "strings"

// ModelKind is the Torii selector of a world model.
type ModelKind string

const (
	KindLand      ModelKind = "ponzi_land-Land"
	KindLandStake ModelKind = "ponzi_land-LandStake"
)

// ModelKinds lists the models whose history is kept. Auctions are not
// tracked because their on-chain layout is not stable yet.
var ModelKinds = []ModelKind{KindLand, KindLandStake}

func (k ModelKind) Short() string {
	return shortName(string(k))
}

// ModelData is implemented by every decoded model snapshot.
type ModelData interface {
	Kind() ModelKind
}

// Land is the on-chain state of a tile.
type Land struct {
	Location        Location `json:"location"`
	BlockDateBought uint64   `json:"block_date_bought"`
	Owner           Address  `json:"owner"`
	SellPrice       U256     `json:"sell_price"`
	TokenUsed       Address  `json:"token_used"`
	Level           Level    `json:"level"`
}

// LandStake is the stake attached to a tile.
type LandStake struct {
	Location    Location `json:"location"`
	LastPayTime uint64   `json:"last_pay_time"`
	Amount      U256     `json:"amount"`
}

func (Land) Kind() ModelKind      { return KindLand }
func (LandStake) Kind() ModelKind { return KindLandStake }

func shortName(selector string) string {
	if i := strings.IndexByte(selector, '-'); i >= 0 {
		return selector[i+1:]
	}
	return selector
}
