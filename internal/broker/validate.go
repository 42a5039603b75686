package broker

import (
	"fmt"
	"strings"

	"github.com/seenimoa/tradecore/internal/errs"
	"github.com/seenimoa/tradecore/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Order Validation
// ════════════════════════════════════════════════════════════════════

// ValidationError is a single field-level order validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult holds the results of order validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// IsValid returns true if the order passed all validation checks.
func (v *ValidationResult) IsValid() bool {
	return v.Valid && len(v.Errors) == 0
}

// ErrorString returns a combined error string.
func (v *ValidationResult) ErrorString() string {
	if v.IsValid() {
		return ""
	}
	msgs := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// addError appends a validation error and marks the result invalid.
func (v *ValidationResult) addError(field, message string) {
	v.Valid = false
	v.Errors = append(v.Errors, ValidationError{Field: field, Message: message})
}

// Err converts an invalid result to a BadRequest error, or nil.
func (v *ValidationResult) Err() error {
	if v.IsValid() {
		return nil
	}
	return errs.New(errs.BadRequest, v.ErrorString())
}

// ValidateOrder validates a placement request against the order-type
// price matrix:
//
//	MARKET    no price, no trigger
//	LIMIT     price > 0
//	SL        trigger > 0 (stop-market, no limit price)
//	SL_LIMIT  price > 0 and trigger > 0
func ValidateOrder(req models.PlaceOrderRequest) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if req.InstrumentToken == "" {
		result.addError("instrument_token", "instrument token is required")
	}

	if req.TxnType != models.Buy && req.TxnType != models.Sell {
		result.addError("txn_type", fmt.Sprintf("invalid transaction type %q", req.TxnType))
	}

	if req.Quantity <= 0 {
		result.addError("quantity", "quantity must be positive")
	}
	if req.Price < 0 {
		result.addError("price", "price cannot be negative")
	}
	if req.TriggerPrice < 0 {
		result.addError("trigger_price", "trigger price cannot be negative")
	}
	if req.DisclosedQuantity < 0 || req.DisclosedQuantity > req.Quantity {
		result.addError("disclosed_quantity", "disclosed quantity must be between 0 and quantity")
	}

	switch req.OrderType {
	case models.Market:
		if req.Price > 0 {
			result.addError("price", "market orders must not carry a price")
		}
		if req.TriggerPrice > 0 {
			result.addError("trigger_price", "market orders must not carry a trigger price")
		}
	case models.Limit:
		if req.Price <= 0 {
			result.addError("price", "limit orders require a positive price")
		}
	case models.SL:
		if req.TriggerPrice <= 0 {
			result.addError("trigger_price", "SL orders require a positive trigger price")
		}
	case models.SLLimit:
		if req.Price <= 0 {
			result.addError("price", "SL_LIMIT orders require a positive price")
		}
		if req.TriggerPrice <= 0 {
			result.addError("trigger_price", "SL_LIMIT orders require a positive trigger price")
		}
	default:
		result.addError("order_type", fmt.Sprintf("invalid order type %q", req.OrderType))
	}

	switch req.Product {
	case models.MIS, models.NRML, models.CNC:
	default:
		result.addError("product", fmt.Sprintf("invalid product %q", req.Product))
	}

	switch req.Validity {
	case models.Day, models.IOC:
	default:
		result.addError("validity", fmt.Sprintf("invalid validity %q", req.Validity))
	}

	return result
}

// ValidateStopLoss checks that a stop-loss is on the correct side of entry.
func ValidateStopLoss(txn models.TxnType, entryPrice, stopLoss float64) error {
	if stopLoss <= 0 {
		return errs.New(errs.BadRequest, "stop_loss must be positive")
	}
	if txn == models.Buy && stopLoss >= entryPrice {
		return errs.Newf(errs.BadRequest,
			"for BUY orders, stop_loss (%.2f) must be below entry price (%.2f)", stopLoss, entryPrice)
	}
	if txn == models.Sell && stopLoss <= entryPrice {
		return errs.Newf(errs.BadRequest,
			"for SELL orders, stop_loss (%.2f) must be above entry price (%.2f)", stopLoss, entryPrice)
	}
	return nil
}

// ValidateTarget checks that a take-profit is on the correct side of entry.
func ValidateTarget(txn models.TxnType, entryPrice, target float64) error {
	if target <= 0 {
		return errs.New(errs.BadRequest, "target must be positive")
	}
	if txn == models.Buy && target <= entryPrice {
		return errs.Newf(errs.BadRequest,
			"for BUY orders, target (%.2f) must be above entry price (%.2f)", target, entryPrice)
	}
	if txn == models.Sell && target >= entryPrice {
		return errs.Newf(errs.BadRequest,
			"for SELL orders, target (%.2f) must be below entry price (%.2f)", target, entryPrice)
	}
	return nil
}

// ValidateModifyOrder checks that an order modification is structurally valid.
func ValidateModifyOrder(current *models.Order, req models.ModifyOrderRequest) error {
	if current == nil {
		return errs.New(errs.NotFound, "order not found")
	}
	if current.Status != models.OrderOpen && current.Status != models.OrderPartial {
		return errs.Newf(errs.BadRequest, "order cannot be modified: order is %s", current.Status)
	}
	if req.Quantity < 0 {
		return errs.New(errs.BadRequest, "modified quantity must be non-negative")
	}
	if req.Quantity > 0 && req.Quantity < current.FilledQty {
		return errs.Newf(errs.BadRequest,
			"modified quantity %d below filled quantity %d", req.Quantity, current.FilledQty)
	}
	if req.Price < 0 || req.TriggerPrice < 0 {
		return errs.New(errs.BadRequest, "modified prices cannot be negative")
	}
	return nil
}
