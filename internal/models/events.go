package models

// EventKind is the Torii selector ("namespace-Name") of an event.
type EventKind string

const (
	KindAuctionFinished   EventKind = "ponzi_land-AuctionFinishedEvent"
	KindLandBought        EventKind = "ponzi_land-LandBoughtEvent"
	KindLandNuked         EventKind = "ponzi_land-LandNukedEvent"
	KindNewAuction        EventKind = "ponzi_land-NewAuctionEvent"
	KindRemainingStake    EventKind = "ponzi_land-RemainingStakeEvent"
	KindAddressAuthorized EventKind = "ponzi_land-AddressAuthorizedEvent"
	KindAddressRemoved    EventKind = "ponzi_land-AddressRemovedEvent"
	KindVerifierUpdated   EventKind = "ponzi_land-VerifierUpdatedEvent"
)

// EventKinds lists every event the ingester understands, in a stable order.
var EventKinds = []EventKind{
	KindAuctionFinished,
	KindLandBought,
	KindLandNuked,
	KindNewAuction,
	KindRemainingStake,
	KindAddressAuthorized,
	KindAddressRemoved,
	KindVerifierUpdated,
}

// Short returns the name without the namespace prefix.
func (k EventKind) Short() string {
	return shortName(string(k))
}

// EventData is implemented by every decoded event payload.
type EventData interface {
	Kind() EventKind
}

type AuctionFinished struct {
	Location   Location `json:"land_location"`
	Buyer      Address  `json:"buyer"`
	StartTime  uint64   `json:"start_time"`
	FinalTime  uint64   `json:"final_time"`
	FinalPrice U256     `json:"final_price"`
}

type LandBought struct {
	Buyer     Address  `json:"buyer"`
	Location  Location `json:"land_location"`
	SoldPrice U256     `json:"sold_price"`
	Seller    Address  `json:"seller"`
	TokenUsed Address  `json:"token_used"`
}

type LandNuked struct {
	Owner    Address  `json:"owner_nuked"`
	Location Location `json:"land_location"`
}

type NewAuction struct {
	Location   Location `json:"land_location"`
	StartTime  uint64   `json:"start_time"`
	StartPrice U256     `json:"start_price"`
	FloorPrice U256     `json:"floor_price"`
}

type RemainingStake struct {
	Location       Location `json:"land_location"`
	RemainingStake U256     `json:"remaining_stake"`
}

type AddressAuthorized struct {
	Address      Address `json:"address"`
	AuthorizedAt uint64  `json:"authorized_at"`
}

type AddressRemoved struct {
	Address   Address `json:"address"`
	RemovedAt uint64  `json:"removed_at"`
}

type VerifierUpdated struct {
	NewVerifier Address `json:"new_verifier"`
	OldVerifier Address `json:"old_verifier"`
}

func (AuctionFinished) Kind() EventKind   { return KindAuctionFinished }
func (LandBought) Kind() EventKind        { return KindLandBought }
func (LandNuked) Kind() EventKind         { return KindLandNuked }
func (NewAuction) Kind() EventKind        { return KindNewAuction }
func (RemainingStake) Kind() EventKind    { return KindRemainingStake }
func (AddressAuthorized) Kind() EventKind { return KindAddressAuthorized }
func (AddressRemoved) Kind() EventKind    { return KindAddressRemoved }
func (VerifierUpdated) Kind() EventKind   { return KindVerifierUpdated }
