package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradecore/internal/errs"
	"github.com/seenimoa/tradecore/internal/infra"
	"github.com/seenimoa/tradecore/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Upstox Gateway
// ════════════════════════════════════════════════════════════════════

const (
	defaultUpstoxBaseURL = "https://api.upstox.com/v2"
	maxCallTimeout       = 10 * time.Second
)

// UpstoxGateway implements Gateway against the Upstox v2 REST API.
// All calls are rate limited and capped at 10 seconds.
type UpstoxGateway struct {
	client    *resty.Client
	session   *SessionState
	apiKey    string
	apiSecret string
	limiter   *infra.RateLimiter
	log       *logrus.Entry
}

// UpstoxConfig holds the gateway settings.
type UpstoxConfig struct {
	BaseURL     string
	APIKey      string
	APISecret   string
	AccessToken string
	Timeout     time.Duration
}

// NewUpstoxGateway creates a live Upstox gateway.
func NewUpstoxGateway(cfg UpstoxConfig, log *logrus.Logger) *UpstoxGateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultUpstoxBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > maxCallTimeout {
		timeout = maxCallTimeout
	}
	if log == nil {
		log = logrus.New()
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(1).
		SetRetryWaitTime(250 * time.Millisecond)

	return &UpstoxGateway{
		client:    client,
		session:   NewSessionState(cfg.AccessToken),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		// Upstox allows 25 req/s per app; stay well inside it.
		limiter: infra.NewRateLimiter(20, time.Second),
		log:     log.WithField("component", "upstox"),
	}
}

// Name returns "upstox".
func (g *UpstoxGateway) Name() string { return "upstox" }

// Session exposes the auth session for the token refresh job.
func (g *UpstoxGateway) Session() *SessionState { return g.session }

// IsAuthenticated reports whether a live token is held.
func (g *UpstoxGateway) IsAuthenticated() bool { return g.session.IsAuthenticated() }

// ════════════════════════════════════════════════════════════════════
// Wire Types
// ════════════════════════════════════════════════════════════════════

type upstoxEnvelope struct {
	Status string `json:"status"`
	Errors []struct {
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
	} `json:"errors,omitempty"`
}

type upstoxPlaceResponse struct {
	upstoxEnvelope
	Data struct {
		OrderIDs []string `json:"order_ids"`
	} `json:"data"`
}

type upstoxOrderIDResponse struct {
	upstoxEnvelope
	Data struct {
		OrderID string `json:"order_id"`
	} `json:"data"`
}

type upstoxOrderDetails struct {
	upstoxEnvelope
	Data struct {
		OrderID           string  `json:"order_id"`
		InstrumentToken   string  `json:"instrument_token"`
		TradingSymbol     string  `json:"trading_symbol"`
		OrderType         string  `json:"order_type"`
		TransactionType   string  `json:"transaction_type"`
		Quantity          int     `json:"quantity"`
		FilledQuantity    int     `json:"filled_quantity"`
		PendingQuantity   int     `json:"pending_quantity"`
		Product           string  `json:"product"`
		Validity          string  `json:"validity"`
		Price             float64 `json:"price"`
		TriggerPrice      float64 `json:"trigger_price"`
		Status            string  `json:"status"`
		AveragePrice      float64 `json:"average_price"`
		StatusMessage     string  `json:"status_message"`
		OrderTimestamp    string  `json:"order_timestamp"`
		ExchangeTimestamp string  `json:"exchange_timestamp"`
	} `json:"data"`
}

type upstoxLTPResponse struct {
	upstoxEnvelope
	Data map[string]struct {
		LastPrice       float64 `json:"last_price"`
		InstrumentToken string  `json:"instrument_token"`
	} `json:"data"`
}

type upstoxOHLCResponse struct {
	upstoxEnvelope
	Data map[string]struct {
		OHLC struct {
			Open  float64 `json:"open"`
			High  float64 `json:"high"`
			Low   float64 `json:"low"`
			Close float64 `json:"close"`
		} `json:"ohlc"`
		Volume    int64 `json:"volume"`
		Timestamp int64 `json:"ts"`
	} `json:"data"`
}

type upstoxQuoteResponse struct {
	upstoxEnvelope
	Data map[string]struct {
		Depth struct {
			Buy []struct {
				Price    float64 `json:"price"`
				Quantity int64   `json:"quantity"`
			} `json:"buy"`
			Sell []struct {
				Price    float64 `json:"price"`
				Quantity int64   `json:"quantity"`
			} `json:"sell"`
		} `json:"depth"`
	} `json:"data"`
}

// Candles arrive as positional arrays:
// [timestamp, open, high, low, close, volume, oi].
type upstoxCandleResponse struct {
	upstoxEnvelope
	Data struct {
		Candles [][]any `json:"candles"`
	} `json:"data"`
}

type upstoxChainResponse struct {
	upstoxEnvelope
	Data []struct {
		Expiry          string  `json:"expiry"`
		StrikePrice     float64 `json:"strike_price"`
		UnderlyingSpot  float64 `json:"underlying_spot_price"`
		CallOptions     upstoxChainLeg `json:"call_options"`
		PutOptions      upstoxChainLeg `json:"put_options"`
	} `json:"data"`
}

type upstoxChainLeg struct {
	InstrumentKey string `json:"instrument_key"`
	MarketData    struct {
		LTP      float64 `json:"ltp"`
		Volume   int64   `json:"volume"`
		OI       int64   `json:"oi"`
		PrevOI   int64   `json:"prev_oi"`
		BidPrice float64 `json:"bid_price"`
		AskPrice float64 `json:"ask_price"`
	} `json:"market_data"`
	OptionGreeks struct {
		Delta float64 `json:"delta"`
		Gamma float64 `json:"gamma"`
		Theta float64 `json:"theta"`
		Vega  float64 `json:"vega"`
		IV    float64 `json:"iv"`
	} `json:"option_greeks"`
}

type upstoxTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// ════════════════════════════════════════════════════════════════════
// Orders
// ════════════════════════════════════════════════════════════════════

// PlaceOrder submits a new order.
func (g *UpstoxGateway) PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.PlaceOrderResponse, error) {
	if v := ValidateOrder(req); !v.IsValid() {
		return nil, v.Err()
	}

	body := map[string]any{
		"instrument_token":   req.InstrumentToken,
		"transaction_type":   string(req.TxnType),
		"order_type":         wireOrderType(req.OrderType),
		"quantity":           req.Quantity,
		"product":            string(req.Product),
		"validity":           string(req.Validity),
		"price":              req.Price,
		"trigger_price":      req.TriggerPrice,
		"is_amo":             req.IsAMO,
		"slice":              req.Slice,
		"disclosed_quantity": req.DisclosedQuantity,
	}
	if req.Tag != "" {
		body["tag"] = req.Tag
	}

	start := time.Now()
	var out upstoxPlaceResponse
	if err := g.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).SetResult(&out).Post("/order/place")
	}, &out.upstoxEnvelope); err != nil {
		return nil, err
	}
	if len(out.Data.OrderIDs) == 0 {
		return nil, errs.New(errs.BrokerError, "placement returned no order ids")
	}

	return &models.PlaceOrderResponse{
		OrderIDs:  out.Data.OrderIDs,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// ModifyOrder modifies an open order.
func (g *UpstoxGateway) ModifyOrder(ctx context.Context, req models.ModifyOrderRequest) (*models.ModifyOrderResponse, error) {
	body := map[string]any{
		"order_id": req.OrderID,
	}
	if req.Quantity > 0 {
		body["quantity"] = req.Quantity
	}
	if req.Price > 0 {
		body["price"] = req.Price
	}
	if req.TriggerPrice > 0 {
		body["trigger_price"] = req.TriggerPrice
	}
	if req.OrderType != "" {
		body["order_type"] = wireOrderType(req.OrderType)
	}
	if req.Validity != "" {
		body["validity"] = string(req.Validity)
	}

	start := time.Now()
	var out upstoxOrderIDResponse
	if err := g.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).SetResult(&out).Put("/order/modify")
	}, &out.upstoxEnvelope); err != nil {
		return nil, err
	}

	return &models.ModifyOrderResponse{
		OrderID:   out.Data.OrderID,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// CancelOrder cancels an open order.
func (g *UpstoxGateway) CancelOrder(ctx context.Context, orderID string) (*models.CancelOrderResponse, error) {
	start := time.Now()
	var out upstoxOrderIDResponse
	if err := g.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("order_id", orderID).SetResult(&out).Delete("/order/cancel")
	}, &out.upstoxEnvelope); err != nil {
		return nil, err
	}

	return &models.CancelOrderResponse{
		OrderID:   out.Data.OrderID,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// GetOrderDetails returns the broker-side view of an order.
func (g *UpstoxGateway) GetOrderDetails(ctx context.Context, orderID string) (*models.Order, error) {
	var out upstoxOrderDetails
	if err := g.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("order_id", orderID).SetResult(&out).Get("/order/details")
	}, &out.upstoxEnvelope); err != nil {
		return nil, err
	}

	d := out.Data
	order := &models.Order{
		BrokerOrderID:   d.OrderID,
		InstrumentToken: d.InstrumentToken,
		Symbol:          d.TradingSymbol,
		OrderType:       localOrderType(d.OrderType),
		TxnType:         models.TxnType(d.TransactionType),
		Qty:             d.Quantity,
		FilledQty:       d.FilledQuantity,
		PendingQty:      d.PendingQuantity,
		Product:         models.Product(d.Product),
		Validity:        models.Validity(d.Validity),
		Price:           d.Price,
		TriggerPrice:    d.TriggerPrice,
		Status:          localOrderStatus(d.Status),
		AveragePrice:    d.AveragePrice,
		Message:         d.StatusMessage,
	}
	if ts, err := time.Parse("2006-01-02 15:04:05", d.OrderTimestamp); err == nil {
		order.PlacedAt = ts
	}
	if ts, err := time.Parse("2006-01-02 15:04:05", d.ExchangeTimestamp); err == nil {
		order.ExchangeTS = &ts
	}
	return order, nil
}

// IsOrderWorking reports whether an order is still live at the broker.
func (g *UpstoxGateway) IsOrderWorking(ctx context.Context, orderID string) (bool, error) {
	order, err := g.GetOrderDetails(ctx, orderID)
	if err != nil {
		return false, err
	}
	return order.Status == models.OrderOpen || order.Status == models.OrderPartial, nil
}

// ════════════════════════════════════════════════════════════════════
// Quotes & Candles
// ════════════════════════════════════════════════════════════════════

// GetLTPQuote returns the last traded price.
func (g *UpstoxGateway) GetLTPQuote(ctx context.Context, instrumentKey string) (*Quote, error) {
	var out upstoxLTPResponse
	if err := g.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("instrument_key", instrumentKey).SetResult(&out).Get("/market-quote/ltp")
	}, &out.upstoxEnvelope); err != nil {
		return nil, err
	}

	for _, q := range out.Data {
		return &Quote{InstrumentKey: instrumentKey, LTP: q.LastPrice, TS: time.Now()}, nil
	}
	return nil, errs.Newf(errs.NotFound, "no quote for %s", instrumentKey)
}

// GetOHLCQuote returns a live OHLC snapshot.
func (g *UpstoxGateway) GetOHLCQuote(ctx context.Context, instrumentKey, interval string) (*models.OHLCQuote, error) {
	var out upstoxOHLCResponse
	if err := g.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"instrument_key": instrumentKey,
			"interval":       interval,
		}).SetResult(&out).Get("/market-quote/ohlc")
	}, &out.upstoxEnvelope); err != nil {
		return nil, err
	}

	for _, q := range out.Data {
		return &models.OHLCQuote{
			Open: q.OHLC.Open, High: q.OHLC.High, Low: q.OHLC.Low, Close: q.OHLC.Close,
			Volume: q.Volume, TS: time.UnixMilli(q.Timestamp),
		}, nil
	}
	return nil, errs.Newf(errs.NotFound, "no OHLC for %s", instrumentKey)
}

// GetIntradayCandles returns today's candles.
func (g *UpstoxGateway) GetIntradayCandles(ctx context.Context, instrumentKey, interval string) ([]models.Candle, error) {
	var out upstoxCandleResponse
	path := fmt.Sprintf("/historical-candle/intraday/%s/%s", instrumentKey, interval)
	if err := g.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).Get(path)
	}, &out.upstoxEnvelope); err != nil {
		return nil, err
	}
	return parseCandles(instrumentKey, out.Data.Candles)
}

// GetHistoricalCandles returns candles in [from, to].
func (g *UpstoxGateway) GetHistoricalCandles(ctx context.Context, instrumentKey, interval string, from, to time.Time) ([]models.Candle, error) {
	var out upstoxCandleResponse
	path := fmt.Sprintf("/historical-candle/%s/%s/%s/%s",
		instrumentKey, interval, to.Format("2006-01-02"), from.Format("2006-01-02"))
	if err := g.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).Get(path)
	}, &out.upstoxEnvelope); err != nil {
		return nil, err
	}
	return parseCandles(instrumentKey, out.Data.Candles)
}

// GetBestBidAsk returns top-of-book depth from the full quote.
func (g *UpstoxGateway) GetBestBidAsk(ctx context.Context, instrumentKey string) (*BidAsk, error) {
	var out upstoxQuoteResponse
	if err := g.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("instrument_key", instrumentKey).SetResult(&out).Get("/market-quote/quotes")
	}, &out.upstoxEnvelope); err != nil {
		return nil, err
	}

	for _, q := range out.Data {
		ba := &BidAsk{TS: time.Now()}
		if len(q.Depth.Buy) > 0 {
			ba.Bid = q.Depth.Buy[0].Price
			ba.BidQty = q.Depth.Buy[0].Quantity
		}
		if len(q.Depth.Sell) > 0 {
			ba.Ask = q.Depth.Sell[0].Price
			ba.AskQty = q.Depth.Sell[0].Quantity
		}
		return ba, nil
	}
	return nil, errs.Newf(errs.NotFound, "no depth for %s", instrumentKey)
}

// ════════════════════════════════════════════════════════════════════
// Option Chain
// ════════════════════════════════════════════════════════════════════

// GetOptionChain returns the full chain for an underlying and expiry.
func (g *UpstoxGateway) GetOptionChain(ctx context.Context, underlyingKey, expiry string) (*models.OptionChain, error) {
	var out upstoxChainResponse
	if err := g.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"instrument_key": underlyingKey,
			"expiry_date":    expiry,
		}).SetResult(&out).Get("/option/chain")
	}, &out.upstoxEnvelope); err != nil {
		return nil, err
	}

	chain := &models.OptionChain{
		UnderlyingKey: underlyingKey,
		Expiry:        expiry,
		FetchedAt:     time.Now(),
	}
	for _, row := range out.Data {
		if chain.SpotPrice == 0 {
			chain.SpotPrice = row.UnderlyingSpot
		}
		if row.CallOptions.InstrumentKey != "" {
			chain.Contracts = append(chain.Contracts, chainContract(row.StrikePrice, row.Expiry, models.CE, row.CallOptions))
		}
		if row.PutOptions.InstrumentKey != "" {
			chain.Contracts = append(chain.Contracts, chainContract(row.StrikePrice, row.Expiry, models.PE, row.PutOptions))
		}
	}
	if len(chain.Contracts) == 0 {
		return nil, errs.Newf(errs.NotFound, "empty option chain for %s %s", underlyingKey, expiry)
	}
	return chain, nil
}

// GetOptionGreeks returns greeks for up to 50 contracts per call.
func (g *UpstoxGateway) GetOptionGreeks(ctx context.Context, instrumentKeys []string) (map[string]models.Greeks, error) {
	result := make(map[string]models.Greeks, len(instrumentKeys))

	const batchSize = 50
	for start := 0; start < len(instrumentKeys); start += batchSize {
		end := start + batchSize
		if end > len(instrumentKeys) {
			end = len(instrumentKeys)
		}

		var out struct {
			upstoxEnvelope
			Data map[string]struct {
				Delta float64 `json:"delta"`
				Gamma float64 `json:"gamma"`
				Theta float64 `json:"theta"`
				Vega  float64 `json:"vega"`
				Rho   float64 `json:"rho"`
			} `json:"data"`
		}
		if err := g.call(ctx, func(r *resty.Request) (*resty.Response, error) {
			return r.SetQueryParam("instrument_key", strings.Join(instrumentKeys[start:end], ",")).
				SetResult(&out).Get("/market-quote/option-greek")
		}, &out.upstoxEnvelope); err != nil {
			return nil, err
		}
		for key, gr := range out.Data {
			result[key] = models.Greeks{Delta: gr.Delta, Gamma: gr.Gamma, Theta: gr.Theta, Vega: gr.Vega, Rho: gr.Rho}
		}
	}
	return result, nil
}

// ════════════════════════════════════════════════════════════════════
// Auth
// ════════════════════════════════════════════════════════════════════

// RefreshAccessToken exchanges the API credentials for a fresh token.
func (g *UpstoxGateway) RefreshAccessToken(ctx context.Context) error {
	if g.apiKey == "" || g.apiSecret == "" {
		return errs.New(errs.Unauthenticated, "api key/secret not configured")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return errs.Wrap(errs.BrokerTimeout, "rate limit wait", err)
	}

	var out upstoxTokenResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     g.apiKey,
			"client_secret": g.apiSecret,
			"grant_type":    "client_credentials",
		}).
		SetResult(&out).
		Post("/login/authorization/token")
	if err != nil {
		return mapTransportErr(err)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return errs.Newf(errs.Unauthenticated, "token refresh rejected: HTTP %d", resp.StatusCode())
	}
	if resp.IsError() {
		return errs.Newf(errs.BrokerError, "token refresh failed: HTTP %d", resp.StatusCode())
	}
	if out.AccessToken == "" {
		return errs.New(errs.BrokerError, "token refresh returned empty token")
	}

	g.session.SetToken(out.AccessToken, nextTokenExpiry(time.Now()))
	g.log.Info("access token refreshed")
	return nil
}

// ════════════════════════════════════════════════════════════════════
// Internal Helpers
// ════════════════════════════════════════════════════════════════════

// call runs one authenticated API request with rate limiting and maps
// transport/HTTP failures onto the error taxonomy.
func (g *UpstoxGateway) call(ctx context.Context, do func(*resty.Request) (*resty.Response, error), env *upstoxEnvelope) error {
	token := g.session.Token()
	if token == "" {
		return errs.New(errs.Unauthenticated, "no access token")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return errs.Wrap(errs.BrokerTimeout, "rate limit wait", err)
	}

	req := g.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token)

	resp, err := do(req)
	if err != nil {
		return mapTransportErr(err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		g.session.Clear()
		return errs.Newf(errs.Unauthenticated, "broker rejected token: HTTP %d", resp.StatusCode())
	case resp.StatusCode() == http.StatusTooManyRequests:
		return errs.New(errs.RateLimit, "broker rate limit exceeded")
	case resp.IsError():
		return errs.Newf(errs.BrokerError, "broker error: HTTP %d %s", resp.StatusCode(), envelopeMessage(env))
	}
	if env != nil && env.Status == "error" {
		return errs.Newf(errs.BrokerError, "broker error: %s", envelopeMessage(env))
	}
	return nil
}

func envelopeMessage(env *upstoxEnvelope) string {
	if env == nil || len(env.Errors) == 0 {
		return ""
	}
	msgs := make([]string, len(env.Errors))
	for i, e := range env.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// mapTransportErr classifies resty transport failures.
func mapTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.BrokerTimeout, "broker call timed out", err)
	}
	return errs.Wrap(errs.BrokerError, "broker call failed", err)
}

// wireOrderType maps local order types onto Upstox wire strings.
func wireOrderType(t models.OrderType) string {
	switch t {
	case models.SL:
		return "SL-M"
	case models.SLLimit:
		return "SL"
	default:
		return string(t)
	}
}

// localOrderType maps Upstox wire strings back to local order types.
func localOrderType(s string) models.OrderType {
	switch s {
	case "SL-M":
		return models.SL
	case "SL":
		return models.SLLimit
	default:
		return models.OrderType(s)
	}
}

// localOrderStatus normalizes broker status strings.
func localOrderStatus(s string) models.OrderStatus {
	switch strings.ToLower(s) {
	case "open", "trigger pending", "pending", "validation pending", "put order req received":
		return models.OrderOpen
	case "complete":
		return models.OrderComplete
	case "cancelled":
		return models.OrderCancelled
	case "rejected":
		return models.OrderRejected
	case "partially filled":
		return models.OrderPartial
	default:
		return models.OrderStatus(strings.ToUpper(s))
	}
}

// parseCandles converts positional candle arrays into models.Candle.
// Rows arrive newest first; the result is oldest first.
func parseCandles(symbol string, rows [][]any) ([]models.Candle, error) {
	out := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		ts, ok := row[0].(string)
		if !ok {
			continue
		}
		openTime, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			continue
		}
		c := models.Candle{
			Symbol:   symbol,
			OpenTime: openTime,
			Open:     toFloat(row[1]),
			High:     toFloat(row[2]),
			Low:      toFloat(row[3]),
			Close:    toFloat(row[4]),
			Volume:   int64(toFloat(row[5])),
		}
		out = append(out, c)
	}
	// Reverse to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

// chainContract converts one chain leg to an OptionContract.
func chainContract(strike float64, expiry string, ot models.OptionType, leg upstoxChainLeg) models.OptionContract {
	return models.OptionContract{
		InstrumentKey: leg.InstrumentKey,
		StrikePrice:   strike,
		OptionType:    ot,
		ExpiryDate:    expiry,
		LTP:           leg.MarketData.LTP,
		Volume:        leg.MarketData.Volume,
		OI:            leg.MarketData.OI,
		OIChange:      leg.MarketData.OI - leg.MarketData.PrevOI,
		BidPrice:      leg.MarketData.BidPrice,
		AskPrice:      leg.MarketData.AskPrice,
		IV:            leg.OptionGreeks.IV,
		Greeks: models.Greeks{
			Delta: leg.OptionGreeks.Delta,
			Gamma: leg.OptionGreeks.Gamma,
			Theta: leg.OptionGreeks.Theta,
			Vega:  leg.OptionGreeks.Vega,
		},
	}
}
