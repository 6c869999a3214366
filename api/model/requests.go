package model

import (
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/custody/model"
)

type CreatePlatform struct {
	Authority  string  `json:"authority"`
	Treasury   string  `json:"treasury"`
	FeeRateBps *uint16 `json:"fee_rate_bps"`
}

type UpdatePlatformFee struct {
	FeeRateBps *uint16 `json:"fee_rate_bps"`
}

type CreateWager struct {
	WagerID  string                 `json:"wager_id"`
	Stake    uint64                 `json:"stake"`
	GameType string                 `json:"game_type"`
	GameData string                 `json:"game_data"`
	MetaData map[string]interface{} `json:"meta_data"`
}

type CompleteWager struct {
	Winner string `json:"winner"`
}

type DisputeWager struct {
	Reason string `json:"reason"`
}

type SendTip struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	PostID    string `json:"post_id"`
}

type CreateEvent struct {
	EventID        string                 `json:"event_id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Location       string                 `json:"location"`
	TicketPrice    uint64                 `json:"ticket_price"`
	MaxTickets     uint32                 `json:"max_tickets"`
	EventDate      string                 `json:"event_date"`
	PublicSaleTime string                 `json:"public_sale_time"`
	MetaData       map[string]interface{} `json:"meta_data"`
}

type PurchaseTickets struct {
	Count uint32 `json:"count"`
	Tier  string `json:"tier"`
}

type Subscribe struct {
	PaymentType string `json:"payment_type"`
}

type ChangePaymentType struct {
	PaymentType string `json:"payment_type"`
}

// PlatformResponse adds the fee rate as a percentage to the stored platform config.
type PlatformResponse struct {
	*model.PlatformConfig
	FeePercent decimal.Decimal `json:"fee_percent"`
}

// InstanceResponse is an instance together with what its custody account currently holds.
type InstanceResponse struct {
	*model.Instance
	CustodyBalance uint64 `json:"custody_balance"`
}

func NewPlatformResponse(cfg *model.PlatformConfig) PlatformResponse {
	return PlatformResponse{PlatformConfig: cfg, FeePercent: decimal.New(int64(cfg.FeeRateBps), -2)}
}
