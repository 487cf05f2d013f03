// Package domain defines the lifecycle events emitted by a trade
// orchestration. The UI layer subscribes to these; the engine itself never
// renders anything.
package domain

import (
	"sync"
	"time"
)

// EventType represents the type of lifecycle event
type EventType int

const (
	EventValidating EventType = iota
	EventQuoted
	EventApprovalRequired
	EventApproving
	EventApprovalSettled
	EventSigning
	EventSubmitted
	EventConfirmed
	EventFailed
	EventCancelled
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventValidating:
		return "validating"
	case EventQuoted:
		return "quoted"
	case EventApprovalRequired:
		return "approval_required"
	case EventApproving:
		return "approving"
	case EventApprovalSettled:
		return "approval_settled"
	case EventSigning:
		return "signing"
	case EventSubmitted:
		return "submitted"
	case EventConfirmed:
		return "confirmed"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Event represents a single lifecycle event
type Event struct {
	Type      EventType   `json:"type"`
	IntentID  string      `json:"intent_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewEvent creates a new lifecycle event
func NewEvent(eventType EventType, intentID string, data interface{}) Event {
	return Event{
		Type:      eventType,
		IntentID:  intentID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Event data structures

// QuotedData carries the result of a successful quote
type QuotedData struct {
	SellToken  string `json:"sell_token"`
	BuyToken   string `json:"buy_token"`
	SellAmount string `json:"sell_amount"`
	BuyAmount  string `json:"buy_amount"`
	Generation uint64 `json:"generation"`
}

// ApprovalData carries details of a required or settled approval
type ApprovalData struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
	TxHash  string `json:"tx_hash,omitempty"`
}

// SubmittedData carries the hash of the submitted primary transaction
type SubmittedData struct {
	TxHash string `json:"tx_hash"`
}

// ConfirmedData carries settlement details
type ConfirmedData struct {
	TxHash   string        `json:"tx_hash"`
	GasUsed  uint64        `json:"gas_used"`
	Block    uint64        `json:"block"`
	Duration time.Duration `json:"duration"`
}

// FailedData carries a machine-readable reason code plus a human message
type FailedData struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Subscriber receives lifecycle events in the order they were emitted.
type Subscriber interface {
	OnEvent(event Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(Event)

func (f SubscriberFunc) OnEvent(event Event) { f(event) }

// Bus delivers events to subscribers in emission order. Delivery is
// synchronous: Publish returns after every subscriber has seen the event,
// which keeps terminal events strictly last.
type Bus struct {
	subscribers []Subscriber
	mu          sync.RWMutex
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a subscriber for all events
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Publish delivers an event to all subscribers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subscribers...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.OnEvent(event)
	}
}
