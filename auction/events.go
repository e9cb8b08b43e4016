package auction

import (
	"context"
	"sync"

	"github.com/shadowbid/shadowbid/ledger"
)

// EventKind identifies a state-transition notification.
type EventKind string

const (
	EventAuctionCreated   EventKind = "auction-created"
	EventAuctionStarted   EventKind = "auction-started"
	EventBidPlaced        EventKind = "bid-placed"
	EventAuctionClosed    EventKind = "auction-closed"
	EventAuctionSettled   EventKind = "auction-settled"
	EventBidRefunded      EventKind = "bid-refunded"
	EventAuctionCancelled EventKind = "auction-cancelled"
)

// Valid returns true if the event kind is recognized.
func (k EventKind) Valid() bool {
	switch k {
	case EventAuctionCreated, EventAuctionStarted, EventBidPlaced,
		EventAuctionClosed, EventAuctionSettled, EventBidRefunded,
		EventAuctionCancelled:
		return true
	}
	return false
}

// Event is one entry in an auction's append-only notification stream.
// Events for the same auction are delivered in causal order; there is no
// ordering guarantee across auctions.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Auction   ledger.Address `json:"auction"`
	Timestamp int64          `json:"timestamp"`
	Payload   any            `json:"payload"`
}

// Event payloads mirror the record fields fixed by the transition that
// emitted them.
type (
	AuctionCreatedPayload struct {
		AuctionID uint64          `json:"auction_id"`
		Authority ledger.Identity `json:"authority"`
		StartTime int64           `json:"start_time"`
		EndTime   int64           `json:"end_time"`
		SessionID string          `json:"session_id"`
	}

	AuctionStartedPayload struct {
		AuctionID uint64 `json:"auction_id"`
	}

	BidPlacedPayload struct {
		AuctionID uint64          `json:"auction_id"`
		Bidder    ledger.Identity `json:"bidder"`
		// SealedBidHash commits to the envelope without revealing it,
		// hex-encoded sha256.
		SealedBidHash string `json:"sealed_bid_hash"`
	}

	AuctionClosedPayload struct {
		AuctionID     uint64          `json:"auction_id"`
		Winner        ledger.Identity `json:"winner"`
		WinningAmount uint64          `json:"winning_amount"`
		TotalBids     uint32          `json:"total_bids"`
	}

	AuctionSettledPayload struct {
		AuctionID uint64          `json:"auction_id"`
		Winner    ledger.Identity `json:"winner"`
		Amount    uint64          `json:"amount"`
	}

	BidRefundedPayload struct {
		AuctionID uint64          `json:"auction_id"`
		Bidder    ledger.Identity `json:"bidder"`
		Amount    uint64          `json:"amount"`
	}

	AuctionCancelledPayload struct {
		AuctionID uint64 `json:"auction_id"`
	}
)

// EventHandler receives published events. Handlers run synchronously on the
// publishing goroutine, inside the transition that emitted the event; they
// must not call back into the state machine.
type EventHandler func(Event)

// Bus routes events to subscribers keyed by event kind. Publishing happens
// after each successful state transition, before the operation returns, so
// per-auction causal order is the transition order.
type Bus struct {
	mu      sync.RWMutex
	subs    map[EventKind][]EventHandler
	streams map[EventKind][]*streamSub
}

type streamSub struct {
	ctx context.Context
	ch  chan Event
}

// NewBus creates an event bus with no subscribers.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[EventKind][]EventHandler),
		streams: make(map[EventKind][]*streamSub),
	}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind EventKind, h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[kind] = append(b.subs[kind], h)
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(h EventHandler) {
	for _, kind := range []EventKind{
		EventAuctionCreated, EventAuctionStarted, EventBidPlaced,
		EventAuctionClosed, EventAuctionSettled, EventBidRefunded,
		EventAuctionCancelled,
	} {
		b.Subscribe(kind, h)
	}
}

// SubscribeChan registers a buffered channel subscription for one event
// kind. The subscription lasts until ctx is cancelled; events published
// while the channel buffer is full are dropped for that subscriber rather
// than blocking the transition that emitted them.
func (b *Bus) SubscribeChan(ctx context.Context, kind EventKind, buffer int) <-chan Event {
	sub := &streamSub{ctx: ctx, ch: make(chan Event, buffer)}
	b.mu.Lock()
	b.streams[kind] = append(b.streams[kind], sub)
	b.mu.Unlock()
	return sub.ch
}

// Publish delivers the event to all handlers and channel subscriptions
// registered for its kind. Channel subscriptions whose context has ended
// are pruned on the way through.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := b.subs[ev.Kind]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}

	b.mu.Lock()
	live := b.streams[ev.Kind][:0]
	for _, sub := range b.streams[ev.Kind] {
		if sub.ctx.Err() != nil {
			continue
		}
		live = append(live, sub)
		select {
		case sub.ch <- ev:
		default:
		}
	}
	b.streams[ev.Kind] = live
	b.mu.Unlock()
}
