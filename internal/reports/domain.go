package reports

import "github.com/shopspring/decimal"

// HeldStock is stock a contractor currently holds on open orders.
type HeldStock struct {
	ContractorID   int64           `json:"contractor_id"`
	ContractorName string          `json:"contractor_name"`
	StockID        int64           `json:"stock_id"`
	Type           string          `json:"type"`
	Quality        string          `json:"quality"`
	ColorShade     string          `json:"color_shade,omitempty"`
	NetWeightKg    decimal.Decimal `json:"net_weight_kg"`
}

// IssueTotal is the total weight ever issued to a contractor per stock item.
type IssueTotal struct {
	ContractorID   int64           `json:"contractor_id"`
	ContractorName string          `json:"contractor_name"`
	StockID        int64           `json:"stock_id"`
	Type           string          `json:"type"`
	Quality        string          `json:"quality"`
	ColorShade     string          `json:"color_shade,omitempty"`
	TotalIssuedKg  decimal.Decimal `json:"total_issued_kg"`
}

// ContractorGroup collects report rows of one contractor.
type ContractorGroup[T any] struct {
	ContractorID   int64  `json:"contractor_id"`
	ContractorName string `json:"contractor_name"`
	Items          []T    `json:"items"`
}

// HeldThreshold is the net weight at or below which stock counts as returned.
var HeldThreshold = decimal.RequireFromString("0.001")
