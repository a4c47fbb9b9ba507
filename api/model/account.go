package model

import "github.com/chronosfinance/ledger/model"

type CreateAccount struct {
	AccountID      string                 `json:"account_id"`
	Name           string                 `json:"name"`
	Currency       string                 `json:"currency"`
	OpeningBalance string                 `json:"opening_balance"`
	MetaData       map[string]interface{} `json:"meta_data"`
}

// AccountResponse is an account with its amounts rendered as decimal strings next to the minor units.
type AccountResponse struct {
	model.Account
	BalanceDecimal       string `json:"balance_decimal"`
	InboundTotalDecimal  string `json:"inbound_total_decimal"`
	OutboundTotalDecimal string `json:"outbound_total_decimal"`
}
