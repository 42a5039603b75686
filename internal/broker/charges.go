package broker

import "github.com/seenimoa/tradecore/pkg/models"

// ════════════════════════════════════════════════════════════════════
// Brokerage Calculator
// ════════════════════════════════════════════════════════════════════

// BrokerageCharges is the breakdown of Indian brokerage charges for a
// round trip. Rates follow the standard discount-broker fee structure.
type BrokerageCharges struct {
	Brokerage   float64 `json:"brokerage"`
	STT         float64 `json:"stt"`
	ExchangeTxn float64 `json:"exchange_txn"`
	SEBICharges float64 `json:"sebi_charges"`
	StampDuty   float64 `json:"stamp_duty"`
	GST         float64 `json:"gst"`
	Total       float64 `json:"total"`
	NetPnL      float64 `json:"net_pnl,omitempty"`
}

// CalculateBrokerage computes charges for a completed buy/sell round trip.
// Options (MIS/NRML on derivatives) use option-segment STT and exchange
// rates; CNC uses the delivery structure.
func CalculateBrokerage(buyPrice, sellPrice float64, qty int, product models.Product) BrokerageCharges {
	buyValue := buyPrice * float64(qty)
	sellValue := sellPrice * float64(qty)
	turnover := buyValue + sellValue

	var charges BrokerageCharges

	switch product {
	case models.CNC: // Delivery
		charges.Brokerage = 0
		charges.STT = turnover * 0.001        // 0.1% on buy + sell
		charges.StampDuty = buyValue * 0.00015 // 0.015% on buy side
		charges.ExchangeTxn = turnover * 0.0000345

	case models.MIS, models.NRML: // Options
		// ₹20 per executed order, flat
		charges.Brokerage = 40
		charges.STT = sellValue * 0.000625     // 0.0625% on sell premium
		charges.StampDuty = buyValue * 0.00003 // 0.003% on buy side
		charges.ExchangeTxn = turnover * 0.000503

	default:
		charges.STT = turnover * 0.001
		charges.StampDuty = buyValue * 0.00015
		charges.ExchangeTxn = turnover * 0.0000345
	}

	charges.SEBICharges = turnover * 0.000001 // ₹10 per crore
	charges.GST = (charges.Brokerage + charges.ExchangeTxn + charges.SEBICharges) * 0.18

	charges.Total = charges.Brokerage + charges.STT + charges.ExchangeTxn +
		charges.SEBICharges + charges.StampDuty + charges.GST

	grossPnL := (sellPrice - buyPrice) * float64(qty)
	charges.NetPnL = grossPnL - charges.Total

	return charges
}
