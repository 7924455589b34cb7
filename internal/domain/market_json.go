package domain

import "time"

// MarketJSON is the wire shape of a Market. Raw amounts are base-unit
// strings; the *_display fields are whole units for people.
type MarketJSON struct {
	Address               string     `json:"address"`
	Creator               string     `json:"creator"`
	Name                  string     `json:"name"`
	Symbol                string     `json:"symbol"`
	TokenID               string     `json:"token_id"`
	BasePrice             string     `json:"base_price"`
	Slope                 string     `json:"slope"`
	TradingFeeBps         int64      `json:"trading_fee_bps"`
	ListingFeeBps         int64      `json:"listing_fee_bps"`
	CreationFee           string     `json:"creation_fee"`
	TotalSupply           string     `json:"total_supply"`
	ReserveBalance        string     `json:"reserve_balance"`
	SaleAmount            string     `json:"sale_amount"`
	MaxSupply             string     `json:"max_supply"`
	FundingGoal           string     `json:"funding_goal"`
	FeesAccrued           string     `json:"fees_accrued"`
	TotalSupplyDisplay    string     `json:"total_supply_display"`
	ReserveBalanceDisplay string     `json:"reserve_balance_display"`
	Launching             bool       `json:"launching"`
	Halted                bool       `json:"halted"`
	LaunchedAt            *time.Time `json:"launched_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// JSON converts m to its wire shape.
func (m Market) JSON() MarketJSON {
	return MarketJSON{
		Address:               m.Address.Hex(),
		Creator:               m.Creator.Hex(),
		Name:                  m.Name,
		Symbol:                m.Symbol,
		TokenID:               IntString(m.TokenID),
		BasePrice:             IntString(m.Curve.BasePrice),
		Slope:                 IntString(m.Curve.Slope),
		TradingFeeBps:         m.Fees.TradingFeeBps,
		ListingFeeBps:         m.Fees.ListingFeeBps,
		CreationFee:           IntString(m.Fees.CreationFee),
		TotalSupply:           IntString(m.TotalSupply),
		ReserveBalance:        IntString(m.ReserveBalance),
		SaleAmount:            IntString(m.SaleAmount),
		MaxSupply:             IntString(m.MaxSupply),
		FundingGoal:           IntString(m.FundingGoal),
		FeesAccrued:           IntString(m.FeesAccrued),
		TotalSupplyDisplay:    FormatUnits(m.TotalSupply, 4),
		ReserveBalanceDisplay: FormatUnits(m.ReserveBalance, 6),
		Launching:             m.Launching,
		Halted:                m.Halted,
		LaunchedAt:            m.LaunchedAt,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

// HandoffJSON is the wire shape of a Handoff.
type HandoffJSON struct {
	Market         string    `json:"market"`
	LiquidityVenue string    `json:"liquidity_venue"`
	TokenAmount    string    `json:"token_amount"`
	ReserveAmount  string    `json:"reserve_amount"`
	ListingFee     string    `json:"listing_fee"`
	CreatedAt      time.Time `json:"created_at"`
}

// JSON converts h to its wire shape.
func (h Handoff) JSON() HandoffJSON {
	return HandoffJSON{
		Market:         h.Market.Hex(),
		LiquidityVenue: h.LiquidityVenue.Hex(),
		TokenAmount:    IntString(h.TokenAmount),
		ReserveAmount:  IntString(h.ReserveAmount),
		ListingFee:     IntString(h.ListingFee),
		CreatedAt:      h.CreatedAt,
	}
}
