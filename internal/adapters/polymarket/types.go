package polymarket

import "encoding/json"

// DTOs raw de las APIs de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Data API ---

// dataPosition es un item de GET /positions?user=. La API devuelve algunos
// números como string según el endpoint, por eso json.Number.
type dataPosition struct {
	ProxyWallet  string      `json:"proxyWallet"`
	Asset        string      `json:"asset"`
	ConditionID  string      `json:"conditionId"`
	Size         json.Number `json:"size"`
	AvgPrice     json.Number `json:"avgPrice"`
	CurPrice     json.Number `json:"curPrice"`
	InitialValue json.Number `json:"initialValue"`
	CurrentValue json.Number `json:"currentValue"`
	Title        string      `json:"title"`
	Slug         string      `json:"slug"`
	Outcome      string      `json:"outcome"`
	OutcomeIndex int         `json:"outcomeIndex"`
	Redeemable   bool        `json:"redeemable"`
	NegativeRisk bool        `json:"negativeRisk"`
	EndDate      string      `json:"endDate"`
}

// --- Leaderboard API ---

// leaderboardEntry es un trader rankeado. El nombre viene como "name" o
// "username" según la versión de la API.
type leaderboardEntry struct {
	Address  string      `json:"address"`
	Name     string      `json:"name"`
	Username string      `json:"username"`
	Rank     int         `json:"rank"`
	PnL      json.Number `json:"pnl"`
}

// --- CLOB API ---

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

type clobBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// clobBook es GET /book?token_id=, usado para precio de mercado cuando la
// orden no trae LimitPrice.
type clobBook struct {
	AssetID string          `json:"asset_id"`
	Bids    []clobBookLevel `json:"bids"`
	Asks    []clobBookLevel `json:"asks"`
}
