package account

import (
	"time"

	"relay/internal/dispatch/message"
	"relay/pkg/correlation"
)

// Message names the account domain binds handlers to.
const (
	MsgCreate  = "account.create"
	MsgDeposit = "account.deposit"
	MsgClose   = "account.close"
	MsgBalance = "account.balance"
)

// BalanceCacheTTL bounds how stale a served balance may be.
const BalanceCacheTTL = 300 * time.Second

// NewCreateAccount builds the create command.
func NewCreateAccount(owner, currency string, initiator correlation.Principal, opts ...message.Option) message.Command {
	opts = append([]message.Option{
		message.WithMeta("owner", owner),
		message.WithMeta("currency", currency),
		message.WithInitiator(initiator),
	}, opts...)
	return message.NewCommand(MsgCreate, opts...)
}

// NewDeposit builds the deposit command. Amount is in minor units, decimal.
func NewDeposit(accountID, amount string, initiator correlation.Principal, opts ...message.Option) message.Command {
	opts = append([]message.Option{
		message.WithMeta("account_id", accountID),
		message.WithMeta("amount", amount),
		message.WithInitiator(initiator),
	}, opts...)
	return message.NewCommand(MsgDeposit, opts...)
}

// NewCloseAccount builds the close command.
func NewCloseAccount(accountID string, initiator correlation.Principal, opts ...message.Option) message.Command {
	opts = append([]message.Option{
		message.WithMeta("account_id", accountID),
		message.WithInitiator(initiator),
	}, opts...)
	return message.NewCommand(MsgClose, opts...)
}

// NewGetBalance builds the cacheable balance query.
func NewGetBalance(accountID string, initiator correlation.Principal, opts ...message.Option) message.Query {
	opts = append([]message.Option{
		message.WithMeta("account_id", accountID),
		message.WithInitiator(initiator),
	}, opts...)
	return message.NewQuery(MsgBalance, opts...).AsCacheable(0)
}

// Result is the command-side view of an account returned to callers.
type Result struct {
	ID       string `json:"id"`
	Owner    string `json:"owner"`
	Currency string `json:"currency"`
	Balance  int64  `json:"balance"`
	Status   Status `json:"status"`
}

// BalanceResult is the query-side balance view; AsOf dates cached copies.
type BalanceResult struct {
	AccountID string    `json:"account_id"`
	Currency  string    `json:"currency"`
	Balance   int64     `json:"balance"`
	AsOf      time.Time `json:"as_of"`
}

func toResult(acc Account) *Result {
	return &Result{
		ID:       acc.ID,
		Owner:    acc.Owner,
		Currency: acc.Currency,
		Balance:  acc.Balance,
		Status:   acc.Status,
	}
}
