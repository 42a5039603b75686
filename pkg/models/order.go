package models

import "time"

// TxnType represents buy or sell.
type TxnType string

const (
	Buy  TxnType = "BUY"
	Sell TxnType = "SELL"
)

// OrderType represents the type of order. SL is a stop-market order
// (trigger only); SLLimit is a stop-limit order (trigger + price).
type OrderType string

const (
	Market  OrderType = "MARKET"
	Limit   OrderType = "LIMIT"
	SL      OrderType = "SL"
	SLLimit OrderType = "SL_LIMIT"
)

// Product represents the product type.
type Product string

const (
	MIS  Product = "MIS"  // Margin Intraday Square-off
	NRML Product = "NRML" // Normal (F&O overnight)
	CNC  Product = "CNC"  // Cash and Carry (delivery)
)

// Validity represents order validity.
type Validity string

const (
	Day Validity = "DAY"
	IOC Validity = "IOC"
)

// OrderStatus represents the broker-side state of an order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "OPEN"
	OrderComplete  OrderStatus = "COMPLETE"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
	OrderPartial   OrderStatus = "PARTIAL"
)

// PlaceOrderRequest is a request to place a new order through the gateway.
type PlaceOrderRequest struct {
	InstrumentToken   string    `json:"instrument_token"`
	Symbol            string    `json:"symbol,omitempty"`
	TxnType           TxnType   `json:"txn_type"`
	OrderType         OrderType `json:"order_type"`
	Quantity          int       `json:"quantity"`
	Product           Product   `json:"product"`
	Validity          Validity  `json:"validity"`
	Price             float64   `json:"price,omitempty"`
	TriggerPrice      float64   `json:"trigger_price,omitempty"`
	IsAMO             bool      `json:"is_amo"`
	Slice             bool      `json:"slice"`
	Tag               string    `json:"tag,omitempty"`
	DisclosedQuantity int       `json:"disclosed_quantity,omitempty"`
}

// PlaceOrderResponse is the gateway's answer to a placement.
type PlaceOrderResponse struct {
	OrderIDs  []string `json:"order_ids"`
	LatencyMs int64    `json:"latency_ms"`
	Duplicate bool     `json:"duplicate,omitempty"` // idempotent replay
}

// BrokerOrderID returns the first order id, or "".
func (r *PlaceOrderResponse) BrokerOrderID() string {
	if r == nil || len(r.OrderIDs) == 0 {
		return ""
	}
	return r.OrderIDs[0]
}

// ModifyOrderRequest modifies an open order.
type ModifyOrderRequest struct {
	OrderID      string    `json:"order_id"`
	OrderType    OrderType `json:"order_type,omitempty"`
	Quantity     int       `json:"quantity,omitempty"`
	Price        float64   `json:"price,omitempty"`
	TriggerPrice float64   `json:"trigger_price,omitempty"`
	Validity     Validity  `json:"validity,omitempty"`
}

// ModifyOrderResponse is the gateway's answer to a modification.
type ModifyOrderResponse struct {
	OrderID   string `json:"order_id"`
	LatencyMs int64  `json:"latency_ms"`
}

// CancelOrderResponse is the gateway's answer to a cancellation.
type CancelOrderResponse struct {
	OrderID   string `json:"order_id"`
	LatencyMs int64  `json:"latency_ms"`
}

// Order is a placed order as tracked locally. Owned by the orders service
// and mutated from the broker feed.
type Order struct {
	BrokerOrderID   string      `json:"broker_order_id"`
	ParentOrderID   string      `json:"parent_order_id,omitempty"`
	AdviceID        string      `json:"advice_id,omitempty"`
	InstrumentToken string      `json:"instrument_token"`
	Symbol          string      `json:"symbol"`
	OrderType       OrderType   `json:"order_type"`
	TxnType         TxnType     `json:"txn_type"`
	Qty             int         `json:"qty"`
	FilledQty       int         `json:"filled_qty"`
	PendingQty      int         `json:"pending_qty"`
	Product         Product     `json:"product"`
	Validity        Validity    `json:"validity"`
	Price           float64     `json:"price"`
	TriggerPrice    float64     `json:"trigger_price,omitempty"`
	Status          OrderStatus `json:"status"`
	AveragePrice    float64     `json:"average_price"`
	Message         string      `json:"message,omitempty"`
	PlacedAt        time.Time   `json:"placed_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	ExchangeTS      *time.Time  `json:"exchange_ts,omitempty"`
}
