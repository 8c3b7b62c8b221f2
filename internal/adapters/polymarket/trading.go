package polymarket

// trading.go: Real order execution via Polymarket CLOB API.
//
// Implements ports.OrderPlacer using AuthClient for L1/L2 auth.
// Replica orders are fill-or-kill: either the whole quantity executes
// at or better than the signed price, or nothing does.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const orderTypeFOK = "FOK"

// OrderError is a CLOB response with success=false: the venue looked at the
// order and refused it (balance, liquidity, tick size...).
type OrderError struct {
	Msg string
}

func (e *OrderError) Error() string {
	return "clob rejected order: " + e.Msg
}

// TradingClient implements ports.OrderPlacer.
type TradingClient struct {
	auth *AuthClient
}

// NewTradingClient creates a TradingClient.
func NewTradingClient(auth *AuthClient) *TradingClient {
	return &TradingClient{auth: auth}
}

// PlaceOrder signs and submits a FOK order to the CLOB.
func (tc *TradingClient) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: creds: %w", err)
	}

	signed, err := tc.auth.buildSignedOrder(req)
	if err != nil {
		return domain.PlacedOrder{}, &OrderError{Msg: "sign: " + err.Error()}
	}

	tc.auth.mu.Lock()
	owner := tc.auth.creds.APIKey
	tc.auth.mu.Unlock()

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          string(req.Side),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     owner,
		OrderType: orderTypeFOK,
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: post: %w", err)
	}
	return placedFromResponse(req, resp)
}

// placedFromResponse interpreta la respuesta del POST /order.
// BUY: making = USDC, taking = shares. SELL al revés.
func placedFromResponse(req domain.PlaceOrderRequest, resp clobOrderResponse) (domain.PlacedOrder, error) {
	if !resp.Success || resp.ErrorMsg != "" {
		msg := resp.ErrorMsg
		if msg == "" {
			msg = "success=false"
		}
		return domain.PlacedOrder{}, &OrderError{Msg: msg}
	}

	usdc, shares := parseMicro(resp.MakingAmount), parseMicro(resp.TakingAmount)
	if req.Side == domain.SideSell {
		usdc, shares = shares, usdc
	}
	placed := domain.PlacedOrder{CLOBOrderID: resp.OrderID, Status: resp.Status, FilledQty: shares}
	if shares > 0 {
		placed.AvgPrice = usdc / shares
	} else if strings.EqualFold(resp.Status, "matched") {
		// Algunas respuestas no traen montos: FOK matched = todo al precio firmado.
		placed.FilledQty = req.Quantity
		placed.AvgPrice = req.Price
	}
	return placed, nil
}

// MarketPrice returns the worst price needed to fill qty shares right now:
// walking asks for a BUY, bids for a SELL. ok is false when the book is too
// thin for qty.
func (tc *TradingClient) MarketPrice(ctx context.Context, tokenID string, side domain.Side, qty float64) (price float64, ok bool, err error) {
	u := tc.auth.clobBase + "/book?token_id=" + url.QueryEscape(tokenID)
	var book clobBook
	if err := tc.auth.get(ctx, tc.auth.clobLimiter, u, &book); err != nil {
		return 0, false, fmt.Errorf("market price: %w", err)
	}

	ob := domain.NewOrderBook(tokenID, bookLevels(book.Bids), bookLevels(book.Asks))
	price, ok = ob.SweepPrice(side, qty)
	return price, ok, nil
}

func bookLevels(levels []clobBookLevel) []domain.BookEntry {
	out := make([]domain.BookEntry, 0, len(levels))
	for _, l := range levels {
		out = append(out, domain.BookEntry{Price: domain.ParsePrice(l.Price), Size: domain.ParsePrice(l.Size)})
	}
	return out
}
