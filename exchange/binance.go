package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/quantforge/hft/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// binanceAPI is the subset of the go-binance client this adapter drives.
// Narrowing it to an interface (rather than depending on *binance.Client
// directly) keeps the adapter testable with a fake.
type binanceAPI interface {
	Depth(ctx context.Context, symbol string, limit int) (*binance.DepthResponse, error)
	CreateOrder(ctx context.Context, p OrderParams) (*binance.CreateOrderResponse, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrder(ctx context.Context, symbol, orderID string) (*binance.Order, error)
	GetAccount(ctx context.Context) (*binance.Account, error)
}

// defaultBinanceAPI implements binanceAPI over the real client. HMAC
// signing of the sorted query string plus millisecond timestamp is done
// internally by go-binance on every authenticated call below — the
// adapter never touches raw signatures.
type defaultBinanceAPI struct {
	client *binance.Client
}

func (a *defaultBinanceAPI) Depth(ctx context.Context, symbol string, limit int) (*binance.DepthResponse, error) {
	return a.client.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
}

func (a *defaultBinanceAPI) CreateOrder(ctx context.Context, p OrderParams) (*binance.CreateOrderResponse, error) {
	svc := a.client.NewCreateOrderService().
		Symbol(p.Symbol).
		Side(binance.SideType(p.Side)).
		Type(binance.OrderType(p.Type)).
		Quantity(p.Quantity)
	if p.Type == models.OrderTypeLimit {
		svc = svc.Price(p.Price).TimeInForce(binance.TimeInForceTypeGTC)
	}
	if p.ClientID != "" {
		svc = svc.NewClientOrderID(p.ClientID)
	}
	return svc.Do(ctx)
}

func (a *defaultBinanceAPI) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binance: malformed order id %q: %w", orderID, err)
	}
	_, err = a.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	return err
}

func (a *defaultBinanceAPI) GetOrder(ctx context.Context, symbol, orderID string) (*binance.Order, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: malformed order id %q: %w", orderID, err)
	}
	return a.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
}

func (a *defaultBinanceAPI) GetAccount(ctx context.Context) (*binance.Account, error) {
	return a.client.NewGetAccountService().Do(ctx)
}

// BinanceAdapter implements Adapter over Binance's spot market, the
// reference ExchangeAdapter the core is written against.
type BinanceAdapter struct {
	api       binanceAPI
	limiter   *rate.Limiter
	stream    *streamClient
	connected bool
}

// NewBinanceAdapter constructs a spot adapter for the given tenant
// credentials. Decrypted by the caller (EngineManager) before reaching
// here — the adapter never sees ciphertext.
func NewBinanceAdapter(apiKey, apiSecret string, testnet bool) *BinanceAdapter {
	client := binance.NewClient(apiKey, apiSecret)
	if testnet {
		client.BaseURL = "https://testnet.binance.vision"
	}
	return &BinanceAdapter{
		api: &defaultBinanceAPI{client: client},
		// 10 requests/second sustained, burst of 5 — generous relative to
		// Binance's weight-based limits, but bounds worst-case local burst.
		limiter:   rate.NewLimiter(rate.Limit(10), 5),
		connected: true,
	}
}

func (b *BinanceAdapter) Name() string { return "binance" }

func (b *BinanceAdapter) wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

func symbolToBinance(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

func (b *BinanceAdapter) GetOrderbook(ctx context.Context, symbol string, depth int) (models.Orderbook, error) {
	if err := b.wait(ctx); err != nil {
		return models.Orderbook{}, NewTransientError("rate limit wait cancelled", err)
	}

	resp, err := b.api.Depth(ctx, symbolToBinance(symbol), depth)
	if err != nil {
		return models.Orderbook{}, classifyBinanceErr(err, "fetch orderbook")
	}

	book := models.Orderbook{
		Symbol:    symbol,
		UpdateSeq: resp.LastUpdateID,
		Bids:      make([]models.OrderbookLevel, 0, len(resp.Bids)),
		Asks:      make([]models.OrderbookLevel, 0, len(resp.Asks)),
	}
	for _, lvl := range resp.Bids {
		book.Bids = append(book.Bids, levelFromStrings(lvl.Price, lvl.Quantity))
	}
	for _, lvl := range resp.Asks {
		book.Asks = append(book.Asks, levelFromStrings(lvl.Price, lvl.Quantity))
	}
	return book, nil
}

func levelFromStrings(price, qty string) models.OrderbookLevel {
	p, _ := decimal.NewFromString(price)
	q, _ := decimal.NewFromString(qty)
	return models.OrderbookLevel{Price: p, Quantity: q}
}

func (b *BinanceAdapter) PlaceOrder(ctx context.Context, p OrderParams) (models.Order, error) {
	if err := b.wait(ctx); err != nil {
		return models.Order{}, NewTransientError("rate limit wait cancelled", err)
	}

	p.Symbol = symbolToBinance(p.Symbol)
	resp, err := b.api.CreateOrder(ctx, p)
	if err != nil {
		return models.Order{}, classifyBinanceErr(err, "place order")
	}

	return orderFromCreateResponse(p, resp), nil
}

func (b *BinanceAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := b.wait(ctx); err != nil {
		return NewTransientError("rate limit wait cancelled", err)
	}
	if err := b.api.CancelOrder(ctx, symbolToBinance(symbol), orderID); err != nil {
		return classifyBinanceErr(err, "cancel order")
	}
	return nil
}

func (b *BinanceAdapter) GetOrderStatus(ctx context.Context, symbol, orderID string) (models.Order, error) {
	if err := b.wait(ctx); err != nil {
		return models.Order{}, NewTransientError("rate limit wait cancelled", err)
	}
	o, err := b.api.GetOrder(ctx, symbolToBinance(symbol), orderID)
	if err != nil {
		return models.Order{}, classifyBinanceErr(err, "get order status")
	}
	return orderFromBinanceOrder(o), nil
}

func (b *BinanceAdapter) ValidateAPIKey(ctx context.Context) (ValidationResult, error) {
	acct, err := b.api.GetAccount(ctx)
	if err != nil {
		return ValidationResult{Valid: false, Error: err.Error()}, nil
	}
	return ValidationResult{
		Valid:       true,
		CanTrade:    acct.CanTrade,
		CanWithdraw: acct.CanWithdraw,
	}, nil
}

// SubscribeOrderbook opens a raw combined-stream websocket connection
// (rather than go-binance's own ws helpers) so reconnect/backoff policy is
// shared with SubscribeUserData through the same streamClient.
func (b *BinanceAdapter) SubscribeOrderbook(ctx context.Context, symbol string, onUpdate func(OrderbookUpdate)) error {
	stream := fmt.Sprintf("%s@depth20@100ms", strings.ToLower(symbolToBinance(symbol)))
	return newStreamClient(stream, func(payload []byte) {
		book, err := parseDepthPayload(symbol, payload)
		onUpdate(OrderbookUpdate{Book: book, Err: err})
	}).run(ctx)
}

// SubscribeUserData streams account order/fill events. It dials the stream
// name "userdata" directly; no user-data-stream listen key is obtained or
// renewed, by this adapter or by streamClient.
func (b *BinanceAdapter) SubscribeUserData(ctx context.Context, onUpdate func(UserDataEvent)) error {
	return newStreamClient("userdata", func(payload []byte) {
		order, trade, err := parseUserDataPayload(payload)
		onUpdate(UserDataEvent{Order: order, Trade: trade, Err: err})
	}).run(ctx)
}

func (b *BinanceAdapter) Disconnect() error {
	if !b.connected {
		return nil
	}
	b.connected = false
	if b.stream != nil {
		b.stream.close()
	}
	log.Info().Str("adapter", "binance").Msg("exchange: disconnected")
	return nil
}

// binanceUnknownOrderCode is Binance's "Unknown order sent" error code,
// returned by cancel/status calls against an order ID the exchange no
// longer recognizes (already cancelled, filled and pruned, or never
// placed).
const binanceUnknownOrderCode = -2011

func classifyBinanceErr(err error, action string) error {
	if apiErr, ok := err.(*binance.APIError); ok {
		if apiErr.Code == binanceUnknownOrderCode {
			return NewError(int(apiErr.Code), action, fmt.Errorf("%w: %v", ErrUnknownOrder, err))
		}
		return NewError(int(apiErr.Code), action, err)
	}
	return NewTransientError(action, err)
}

func orderFromCreateResponse(p OrderParams, resp *binance.CreateOrderResponse) models.Order {
	qty, _ := decimal.NewFromString(p.Quantity)
	price, _ := decimal.NewFromString(p.Price)
	filled, _ := decimal.NewFromString(resp.ExecutedQuantity)
	return models.Order{
		ID:        strconv.FormatInt(resp.OrderID, 10),
		ClientID:  resp.ClientOrderID,
		Symbol:    p.Symbol,
		Side:      p.Side,
		Type:      p.Type,
		Quantity:  qty,
		Price:     price,
		Status:    mapBinanceStatus(string(resp.Status)),
		FilledQuantity: filled,
		CreatedAt: time.UnixMilli(resp.TransactionTime),
		UpdatedAt: time.UnixMilli(resp.TransactionTime),
	}
}

func orderFromBinanceOrder(o *binance.Order) models.Order {
	qty, _ := decimal.NewFromString(o.OrigQuantity)
	price, _ := decimal.NewFromString(o.Price)
	filled, _ := decimal.NewFromString(o.ExecutedQuantity)
	avg := decimal.Zero
	if !filled.IsZero() {
		cumQuote, _ := decimal.NewFromString(o.CummulativeQuoteQuantity)
		avg = cumQuote.Div(filled)
	}
	return models.Order{
		ID:             strconv.FormatInt(o.OrderID, 10),
		ClientID:       o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           models.OrderSide(o.Side),
		Type:           models.OrderType(o.Type),
		Quantity:       qty,
		Price:          price,
		Status:         mapBinanceStatus(string(o.Status)),
		FilledQuantity: filled,
		AveragePrice:   avg,
		CreatedAt:      time.UnixMilli(o.Time),
		UpdatedAt:      time.UnixMilli(o.UpdateTime),
	}
}

func mapBinanceStatus(status string) models.OrderStatus {
	switch status {
	case "NEW":
		return models.OrderStatusNew
	case "PARTIALLY_FILLED":
		return models.OrderStatusPartiallyFilled
	case "FILLED":
		return models.OrderStatusFilled
	case "CANCELED", "EXPIRED":
		return models.OrderStatusCanceled
	case "REJECTED":
		return models.OrderStatusRejected
	default:
		return models.OrderStatusNew
	}
}
