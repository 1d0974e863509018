package models

// PlatformAccount é o singleton que acumula as taxas da casa
type PlatformAccount struct {
	Balance          float64 `json:"balance"`
	TotalFees        float64 `json:"totalFees"`
	TransactionCount int64   `json:"transactionCount"`
	Version          int64   `json:"version"`
}
