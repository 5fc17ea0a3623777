package account

import (
	"log/slog"

	"relay/internal/dispatch/authorization"
	"relay/internal/dispatch/bus"
	"relay/internal/dispatch/validation"
	"relay/internal/platform/events"
)

// Wire binds the account handlers to the buses with their descriptors. The
// query bus doubles as the balance-cache invalidator for the write handlers.
func Wire(commands *bus.CommandBus, queries *bus.QueryBus, store Store, publisher events.Publisher, log *slog.Logger) error {
	if err := commands.Register(NewCreateHandler(store, publisher, log), bus.Descriptor{
		Name:   MsgCreate,
		Result: "account.Result",
		Rules: []validation.Rule{
			validation.Required("owner"),
			validation.Length("owner", 1, 128),
			validation.Required("currency"),
			validation.Length("currency", 3, 3),
		},
	}); err != nil {
		return err
	}

	if err := commands.Register(NewDepositHandler(store, publisher, queries, log), bus.Descriptor{
		Name:   MsgDeposit,
		Result: "account.Result",
		Rules: []validation.Rule{
			validation.Required("account_id"),
			validation.Required("amount"),
		},
		Authorization: authorization.Spec{
			Rules: authorization.RuleSet{Scopes: []string{"accounts:write"}},
		},
	}); err != nil {
		return err
	}

	if err := commands.Register(NewCloseHandler(store, publisher, queries, log), bus.Descriptor{
		Name:   MsgClose,
		Result: "account.Result",
		Rules: []validation.Rule{
			validation.Required("account_id"),
		},
		Authorization: authorization.Spec{
			Rules: authorization.RuleSet{Scopes: []string{"accounts:write"}},
		},
	}); err != nil {
		return err
	}

	return queries.Register(NewBalanceHandler(store), bus.Descriptor{
		Name:      MsgBalance,
		Result:    "account.BalanceResult",
		NewResult: func() any { return new(BalanceResult) },
		Rules: []validation.Rule{
			validation.Required("account_id"),
		},
		CacheTTL: BalanceCacheTTL,
	})
}
