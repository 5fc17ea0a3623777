package account

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"relay/internal/dispatch/message"
	"relay/internal/platform/events"
	"relay/pkg/correlation"
)

// EventsTopic carries all account domain events.
const EventsTopic = "accounts"

// Invalidator evicts cached query results after a write. *bus.QueryBus
// satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, q message.Query) error
}

type createdEvent struct {
	AccountID string `json:"account_id"`
	Owner     string `json:"owner"`
	Currency  string `json:"currency"`
}

type depositedEvent struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Balance   int64  `json:"balance"`
}

type closedEvent struct {
	AccountID string `json:"account_id"`
}

// CreateHandler opens new accounts.
type CreateHandler struct {
	store     Store
	publisher events.Publisher
	log       *slog.Logger
}

func NewCreateHandler(store Store, publisher events.Publisher, log *slog.Logger) *CreateHandler {
	return &CreateHandler{store: store, publisher: publisher, log: log}
}

func (h *CreateHandler) MessageName() string { return MsgCreate }

// Validate is the business validation phase: structural presence of owner and
// currency is checked by the descriptor rules, the currency whitelist lives
// here.
func (h *CreateHandler) Validate(_ context.Context, env message.Envelope) error {
	currency, _ := env.Meta("currency")
	if !CurrencySupported(currency) {
		return fmt.Errorf("currency %q is not supported", currency)
	}
	return nil
}

func (h *CreateHandler) Handle(ctx context.Context, env message.Envelope) (any, error) {
	owner, _ := env.Meta("owner")
	currency, _ := env.Meta("currency")

	acc := Account{
		ID:        NewID(),
		Owner:     owner,
		Currency:  currency,
		Status:    StatusActive,
		CreatedAt: correlation.Now(ctx),
		UpdatedAt: correlation.Now(ctx),
	}
	if err := h.store.Create(ctx, acc); err != nil {
		return nil, err
	}

	h.publish(ctx, "account.created", acc.ID, createdEvent{
		AccountID: acc.ID,
		Owner:     acc.Owner,
		Currency:  acc.Currency,
	})
	return toResult(acc), nil
}

func (h *CreateHandler) publish(ctx context.Context, eventType, key string, payload any) {
	publish(ctx, h.publisher, h.log, eventType, key, payload)
}

// DepositHandler credits an active account.
type DepositHandler struct {
	store       Store
	publisher   events.Publisher
	invalidator Invalidator
	log         *slog.Logger
}

func NewDepositHandler(store Store, publisher events.Publisher, invalidator Invalidator, log *slog.Logger) *DepositHandler {
	return &DepositHandler{store: store, publisher: publisher, invalidator: invalidator, log: log}
}

func (h *DepositHandler) MessageName() string { return MsgDeposit }

func (h *DepositHandler) Validate(_ context.Context, env message.Envelope) error {
	raw, _ := env.Meta("amount")
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("amount %q is not a whole number of minor units", raw)
	}
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

func (h *DepositHandler) Handle(ctx context.Context, env message.Envelope) (any, error) {
	id, _ := env.Meta("account_id")
	raw, _ := env.Meta("amount")
	amount, _ := strconv.ParseInt(raw, 10, 64)

	acc, err := h.store.ApplyDelta(ctx, id, amount, correlation.Now(ctx))
	if err != nil {
		return nil, err
	}

	publish(ctx, h.publisher, h.log, "account.deposited", acc.ID, depositedEvent{
		AccountID: acc.ID,
		Amount:    amount,
		Balance:   acc.Balance,
	})
	h.invalidateBalance(ctx, acc.ID)
	return toResult(acc), nil
}

func (h *DepositHandler) invalidateBalance(ctx context.Context, id string) {
	invalidateBalance(ctx, h.invalidator, h.log, id)
}

// CloseHandler transitions an account to closed.
type CloseHandler struct {
	store       Store
	publisher   events.Publisher
	invalidator Invalidator
	log         *slog.Logger
}

func NewCloseHandler(store Store, publisher events.Publisher, invalidator Invalidator, log *slog.Logger) *CloseHandler {
	return &CloseHandler{store: store, publisher: publisher, invalidator: invalidator, log: log}
}

func (h *CloseHandler) MessageName() string { return MsgClose }

func (h *CloseHandler) Handle(ctx context.Context, env message.Envelope) (any, error) {
	id, _ := env.Meta("account_id")

	acc, err := h.store.SetStatus(ctx, id, StatusClosed, correlation.Now(ctx))
	if err != nil {
		return nil, err
	}

	publish(ctx, h.publisher, h.log, "account.closed", acc.ID, closedEvent{AccountID: acc.ID})
	invalidateBalance(ctx, h.invalidator, h.log, acc.ID)
	return toResult(acc), nil
}

// BalanceHandler serves the cacheable balance query.
type BalanceHandler struct {
	store Store
}

func NewBalanceHandler(store Store) *BalanceHandler {
	return &BalanceHandler{store: store}
}

func (h *BalanceHandler) MessageName() string { return MsgBalance }

func (h *BalanceHandler) Handle(ctx context.Context, env message.Envelope) (any, error) {
	id, _ := env.Meta("account_id")

	acc, err := h.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BalanceResult{
		AccountID: acc.ID,
		Currency:  acc.Currency,
		Balance:   acc.Balance,
		AsOf:      correlation.Now(ctx),
	}, nil
}

// publish sends a domain event tagged with the dispatch correlation id.
// Publish failures are logged, never propagated: the state change has already
// committed and the cache TTL bounds staleness downstream.
func publish(ctx context.Context, publisher events.Publisher, log *slog.Logger, eventType, key string, payload any) {
	if publisher == nil {
		return
	}
	err := publisher.Publish(ctx, events.Event{
		Topic:         EventsTopic,
		Type:          eventType,
		Key:           key,
		Payload:       payload,
		CorrelationID: correlation.ID(ctx),
	})
	if err != nil && log != nil {
		log.Error("event publish failed", "type", eventType, "key", key, "error", err)
	}
}

// invalidateBalance evicts the cached balance after a write so readers see the
// new value immediately instead of waiting out the TTL.
func invalidateBalance(ctx context.Context, inv Invalidator, log *slog.Logger, id string) {
	if inv == nil {
		return
	}
	q := message.NewQuery(MsgBalance, message.WithMeta("account_id", id)).AsCacheable(0)
	if err := inv.Invalidate(ctx, q); err != nil && log != nil {
		log.Warn("balance cache invalidation failed", "account_id", id, "error", err)
	}
}
