package domain

import (
	"context"
	"fmt"
	"time"
)

// EventType names a committed settlement event.
type EventType string

const (
	EventMarketCreated   EventType = "market_created"
	EventOrderPlaced     EventType = "order_placed"
	EventOrderCanceled   EventType = "order_canceled"
	EventSharesSold      EventType = "shares_sold"
	EventMarketResoluted EventType = "market_resoluted"
	EventMarketDisputed  EventType = "market_disputed"
	EventStakeAdded      EventType = "stake_added"
	EventStakeWithdrawn  EventType = "stake_withdrawn"
	EventMarketFinalized EventType = "market_finalized"
	EventEarningsClaimed EventType = "earnings_claimed"
)

// Event is emitted after an operation has committed.
type Event struct {
	ID       string         `json:"id"`
	Type     EventType      `json:"type"`
	MarketID uint64         `json:"market_id"`
	Account  string         `json:"account,omitempty"`
	At       time.Time      `json:"at"`
	Data     map[string]any `json:"data,omitempty"`
}

// Key is the partitioning key used when events leave the process.
func (e Event) Key() string {
	return fmt.Sprintf("market-%d", e.MarketID)
}

// Pub/sub channels and the capped history stream carrying committed
// events.
const (
	ChannelEvents = "ch:events"
	StreamEvents  = "stream:events"
)

// MarketChannel is the per-market event channel.
func MarketChannel(marketID uint64) string {
	return fmt.Sprintf("ch:market:%d", marketID)
}

// EventSink durably records events for later delivery.
type EventSink interface {
	Append(ctx context.Context, ev Event) error
}

// EventPublisher hands serialized events to a message broker.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
	Close() error
}
