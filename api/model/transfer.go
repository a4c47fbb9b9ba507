package model

type CreateTransfer struct {
	OriginID       string `json:"origin_id"`
	DestinationID  string `json:"destination_id"`
	Amount         string `json:"amount"`
	Memo           string `json:"memo"`
	CorrelationKey string `json:"correlation_key"`
}

type ReverseTransfer struct {
	Memo string `json:"memo"`
}

// CreateMovement is the body of a deposit or withdrawal; the account comes from the path.
type CreateMovement struct {
	Amount         string `json:"amount"`
	Memo           string `json:"memo"`
	CorrelationKey string `json:"correlation_key"`
}
