package constants

import "time"

// World namespace used by the PonziLand contracts on Torii
const DefaultNamespace = "ponzi_land"

// Redis keys
const (
	RedisKeyRecentEvents = "chaindata:events:recent"
	RedisKeyWatermark    = "chaindata:watermark:"
)

// Redis Pub/Sub channels
const (
	PubSubChannelEvents      = "chaindata:events"
	PubSubChannelEventPrefix = "chaindata:events:"
	PubSubChannelModels      = "chaindata:models"
)

// Limits
const (
	MaxRecentEvents = 200
	CatchUpPageSize = 100
)

// Loop timing
const (
	RestartCooldown      = 10 * time.Second
	SubscribeBackoff     = 1 * time.Second
	SubscribeMaxBackoff  = 30 * time.Second
	MaxSubscribeAttempts = 8
)

// Loop names, used as metric labels and log fields
const (
	LoopEvents = "events"
	LoopModels = "models"
)

// Torii tables read by the catch-up reader
const (
	ToriiEventsTable   = "event_messages_historical"
	ToriiEntitiesTable = "entities_historical"
)

// Torii timestamp layout for created_at columns
const ToriiTimeLayout = "2006-01-02 15:04:05"
