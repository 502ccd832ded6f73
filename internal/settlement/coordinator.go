// Package settlement quotes and executes trades. Execution serializes on the
// traded pool through the store, re-prices under that lock, checks slippage
// against the caller's quote and commits every side effect at once.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"creatorExchange/internal/model"
	"creatorExchange/internal/portfolio"
	"creatorExchange/internal/pricing"
	"creatorExchange/internal/storage"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Config holds the trade limits the coordinator enforces.
type Config struct {
	MinTradeAmount     decimal.Decimal
	DefaultSlippagePct decimal.Decimal
	MaxSlippagePct     decimal.Decimal
	TotalTokenSupply   decimal.Decimal
	QuoteTTL           time.Duration
	MaxRetries         int
	RetryBackoff       time.Duration
}

func (c Config) Validate() error {
	if c.MinTradeAmount.Sign() <= 0 {
		return fmt.Errorf("min trade amount must be positive")
	}
	if c.MaxSlippagePct.Sign() <= 0 || c.MaxSlippagePct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("max slippage %s outside (0,100]", c.MaxSlippagePct)
	}
	if c.DefaultSlippagePct.Sign() < 0 || c.DefaultSlippagePct.GreaterThan(c.MaxSlippagePct) {
		return fmt.Errorf("default slippage %s outside [0,%s]", c.DefaultSlippagePct, c.MaxSlippagePct)
	}
	if c.TotalTokenSupply.Sign() <= 0 {
		return fmt.Errorf("total token supply must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	return nil
}

// Recorder receives trade outcomes for metrics.
type Recorder interface {
	Quoted(direction model.Direction, outcome string)
	Settled(direction model.Direction, outcome string, elapsed time.Duration)
	Retried()
}

// Outcome labels passed to Recorder.
const (
	OutcomeOK           = "ok"
	OutcomeCommitted    = "committed"
	OutcomePrecondition = "rejected_precondition"
	OutcomeSlippage     = "rejected_slippage"
	OutcomeFailed       = "failed"
)

type nopRecorder struct{}

func (nopRecorder) Quoted(model.Direction, string)                 {}
func (nopRecorder) Settled(model.Direction, string, time.Duration) {}
func (nopRecorder) Retried()                                       {}

// QuoteRequest describes a trade to price.
type QuoteRequest struct {
	CreatorID      string
	Direction      model.Direction
	Amount         decimal.Decimal
	AmountCurrency model.AmountCurrency
}

// Quote is an advisory price for a trade. ExpiresAt is informational; only
// the slippage check binds at execution.
type Quote struct {
	CreatorID      string          `json:"creator_id"`
	Type           model.Direction `json:"type"`
	InputAmount    decimal.Decimal `json:"input_amount"`
	InputCurrency  string          `json:"input_currency"`
	OutputAmount   decimal.Decimal `json:"output_amount"`
	OutputCurrency string          `json:"output_currency"`
	PricePerToken  decimal.Decimal `json:"price_per_token"`
	PriceImpactPct decimal.Decimal `json:"price_impact_pct"`
	FeeAmount      decimal.Decimal `json:"fee_amount"`
	FeePct         decimal.Decimal `json:"fee_pct"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// ExecuteRequest is a trade intent from an authenticated caller.
type ExecuteRequest struct {
	QuoteRequest
	UserID string
	// MaxSlippagePct falls back to the configured default when nil.
	MaxSlippagePct *decimal.Decimal
	// ExpectedOutput is the output of the caller's earlier quote. When nil a
	// fresh quote taken before locking stands in for it.
	ExpectedOutput *decimal.Decimal
}

// Outcome is the result of a committed trade.
type Outcome struct {
	Success     bool                 `json:"success"`
	Transaction model.Transaction    `json:"transaction"`
	NewBalance  decimal.Decimal      `json:"new_balance"`
	NewHolding  *portfolio.Valuation `json:"new_holding"`
	State       State                `json:"-"`
}

// HistoryPage is one page of a user's transactions.
type HistoryPage struct {
	Transactions []model.Transaction `json:"transactions"`
	Total        int                 `json:"total"`
	Limit        int                 `json:"limit"`
	Offset       int                 `json:"offset"`
}

type Coordinator struct {
	cfg     Config
	engine  *pricing.Engine
	store   storage.Store
	ledger  *portfolio.Ledger
	journal storage.Journal
	metrics Recorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewCoordinator wires a coordinator. journal, metrics and logger may be nil.
func NewCoordinator(cfg Config, engine *pricing.Engine, store storage.Store, journal storage.Journal, metrics Recorder, logger *zap.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("settlement config: %w", err)
	}
	if engine == nil || store == nil {
		return nil, fmt.Errorf("engine and store are required")
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:     cfg,
		engine:  engine,
		store:   store,
		ledger:  portfolio.NewLedger(store),
		journal: journal,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (c *Coordinator) validate(req QuoteRequest) error {
	switch req.Direction {
	case model.DirectionBuy:
		if req.AmountCurrency != model.AmountPlatform {
			return reject(ErrUnsupportedTrade, "buys are sized in %s", model.PlatformSymbol)
		}
	case model.DirectionSell:
		if req.AmountCurrency != model.AmountToken {
			return reject(ErrUnsupportedTrade, "sells are sized in tokens")
		}
	default:
		return reject(ErrInvalidDirection, "%q", req.Direction)
	}
	if req.CreatorID == "" {
		return reject(ErrPoolNotFound, "creator id is empty")
	}
	if req.Amount.Sign() <= 0 {
		return reject(ErrInvalidAmount, "got %s", req.Amount)
	}
	if req.Amount.LessThan(c.cfg.MinTradeAmount) {
		return reject(ErrBelowMinimum, "%s < %s", req.Amount, c.cfg.MinTradeAmount)
	}
	if !pricing.Representable(req.Amount) {
		return reject(ErrAmountPrecision, "at most %d decimal places", pricing.Scale)
	}
	return nil
}

func (c *Coordinator) loadPool(ctx context.Context, creatorID string) (model.Pool, error) {
	pool, err := c.store.Pool(ctx, creatorID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Pool{}, reject(ErrPoolNotFound, "%s", creatorID)
	}
	if err != nil {
		return model.Pool{}, c.internal("load pool", err, zap.String("creator", creatorID))
	}
	return pool, nil
}

// price maps pricing failures onto the settlement taxonomy.
func (c *Coordinator) price(req QuoteRequest, pool model.Pool) (pricing.TradeResult, error) {
	if pool.Empty() {
		return pricing.TradeResult{}, c.internal("price trade", pricing.ErrEmptyPool, zap.String("creator", pool.CreatorID))
	}
	res, err := c.engine.Quote(req.Direction, req.Amount, pool.NmbrReserve, pool.TokenSupply)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, pricing.ErrZeroOutput):
		return pricing.TradeResult{}, reject(ErrTradeTooSmall, "%s %s", req.Direction, req.Amount)
	default:
		return pricing.TradeResult{}, c.internal("price trade", err, zap.String("creator", pool.CreatorID))
	}
}

// internal logs the full cause and returns an opaque error.
func (c *Coordinator) internal(op string, err error, fields ...zap.Field) error {
	c.logger.Error(op+" failed", append(fields, zap.Error(err))...)
	return fmt.Errorf("%w: %s", ErrInternal, op)
}

// Quote prices req against the pool as it is now. It takes no lock.
func (c *Coordinator) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	q, err := c.quote(ctx, req)
	c.metrics.Quoted(req.Direction, outcomeOf(err, OutcomeOK))
	return q, err
}

func (c *Coordinator) quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if err := c.validate(req); err != nil {
		return Quote{}, err
	}
	pool, err := c.loadPool(ctx, req.CreatorID)
	if err != nil {
		return Quote{}, err
	}
	res, err := c.price(req, pool)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{
		CreatorID:      req.CreatorID,
		Type:           req.Direction,
		InputAmount:    res.InputAmount,
		OutputAmount:   res.OutputAmount,
		PricePerToken:  res.PricePerToken,
		PriceImpactPct: res.PriceImpactPct,
		FeeAmount:      res.FeeAmount,
		FeePct:         res.FeePct,
		ExpiresAt:      c.now().Add(c.cfg.QuoteTTL),
	}
	if req.Direction == model.DirectionBuy {
		q.InputCurrency, q.OutputCurrency = model.PlatformSymbol, pool.TokenSymbol
	} else {
		q.InputCurrency, q.OutputCurrency = pool.TokenSymbol, model.PlatformSymbol
	}
	return q, nil
}

// Execute settles req. Any returned error means nothing was written.
func (c *Coordinator) Execute(ctx context.Context, req ExecuteRequest) (Outcome, error) {
	start := time.Now()
	out, err := c.execute(ctx, req)
	c.metrics.Settled(req.Direction, outcomeOf(err, OutcomeCommitted), time.Since(start))

	log := c.logger.With(
		zap.String("user", req.UserID),
		zap.String("creator", req.CreatorID),
		zap.String("direction", string(req.Direction)),
		zap.String("amount", req.Amount.String()),
	)
	switch {
	case err == nil:
		tx := out.Transaction
		log.Info("trade committed",
			zap.String("tx", tx.ID.String()),
			zap.String("tokens", tx.TokenAmount.String()),
			zap.String("nmbr", tx.NmbrAmount.String()),
			zap.String("fee", tx.FeeAmount.String()),
			zap.String("impact_pct", tx.PriceImpactPct.String()),
		)
	case IsRejection(err):
		log.Debug("trade rejected", zap.Error(err))
	}
	return out, err
}

func (c *Coordinator) execute(ctx context.Context, req ExecuteRequest) (Outcome, error) {
	state := &tradeState{}
	fail := func(err error) (Outcome, error) {
		if !state.current.Terminal() {
			state.current = StateRejected
		}
		return Outcome{State: state.current}, err
	}

	if req.UserID == "" {
		return fail(reject(ErrMissingUser, "execute"))
	}
	if err := c.validate(req.QuoteRequest); err != nil {
		return fail(err)
	}
	maxSlippage := c.cfg.DefaultSlippagePct
	if req.MaxSlippagePct != nil {
		maxSlippage = *req.MaxSlippagePct
	}
	if maxSlippage.Sign() < 0 || maxSlippage.GreaterThan(c.cfg.MaxSlippagePct) {
		return fail(reject(ErrInvalidSlippage, "%s outside [0,%s]", maxSlippage, c.cfg.MaxSlippagePct))
	}
	if req.ExpectedOutput != nil && req.ExpectedOutput.Sign() < 0 {
		return fail(reject(ErrInvalidAmount, "expected output %s is negative", *req.ExpectedOutput))
	}

	// Unlocked checks; all repeated under the lock.
	pool, err := c.loadPool(ctx, req.CreatorID)
	if err != nil {
		return fail(err)
	}
	if err := c.checkFunds(ctx, req); err != nil {
		return fail(err)
	}
	var expected decimal.Decimal
	if req.ExpectedOutput != nil {
		expected = *req.ExpectedOutput
	} else {
		res, err := c.price(req.QuoteRequest, pool)
		if err != nil {
			return fail(err)
		}
		expected = res.OutputAmount
	}

	var set storage.Settlement
	settle := func(snap storage.Snapshot) (storage.Settlement, error) {
		if err := state.advance(StateLocked); err != nil {
			return storage.Settlement{}, err
		}
		if err := checkSnapshotFunds(req, snap); err != nil {
			return storage.Settlement{}, err
		}
		res, err := c.price(req.QuoteRequest, snap.Pool)
		if err != nil {
			return storage.Settlement{}, err
		}
		if err := state.advance(StatePriced); err != nil {
			return storage.Settlement{}, err
		}
		ok, slippage := pricing.CheckSlippage(expected, res.OutputAmount, maxSlippage)
		if !ok {
			return storage.Settlement{}, &SlippageError{
				ExpectedOutput: expected,
				ActualOutput:   res.OutputAmount,
				SlippagePct:    slippage,
				MaxSlippagePct: maxSlippage,
			}
		}
		if err := state.advance(StateValidated); err != nil {
			return storage.Settlement{}, err
		}
		built, err := c.buildSettlement(req, snap, res, slippage)
		if err != nil {
			return storage.Settlement{}, c.internal("build settlement", err, zap.String("creator", req.CreatorID))
		}
		set = built
		return built, nil
	}

	retryable := func(err error) bool {
		if errors.Is(err, storage.ErrConflict) {
			c.metrics.Retried()
			state.retry()
			return true
		}
		return false
	}
	err = withRetry(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, retryable, func(ctx context.Context) error {
		return c.store.Settle(ctx, req.CreatorID, req.UserID, settle)
	})
	if err != nil {
		return fail(c.settleError(err, req))
	}
	if err := state.advance(StateCommitted); err != nil {
		return fail(c.internal("commit", err))
	}

	c.exportTransaction(set)

	out := Outcome{
		Success:     true,
		Transaction: set.Transaction,
		NewBalance:  set.Account.NmbrBalance,
		State:       state.current,
	}
	if !set.DeleteHolding {
		v := portfolio.Value(set.Holding, set.Pool)
		out.NewHolding = &v
	}
	return out, nil
}

func (c *Coordinator) settleError(err error, req ExecuteRequest) error {
	switch {
	case IsRejection(err), errors.Is(err, ErrInternal):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return reject(ErrPoolNotFound, "%s", req.CreatorID)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return c.internal("settle", err, zap.String("creator", req.CreatorID), zap.String("user", req.UserID))
	}
}

func (c *Coordinator) checkFunds(ctx context.Context, req ExecuteRequest) error {
	if req.Direction == model.DirectionBuy {
		account, err := c.store.Account(ctx, req.UserID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			account = model.Account{UserID: req.UserID}
		case err != nil:
			return c.internal("load account", err, zap.String("user", req.UserID))
		}
		return checkBalance(account, req.Amount)
	}

	holding, err := c.store.Holding(ctx, req.UserID, req.CreatorID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return reject(ErrInsufficientHolding, "no %s tokens held", req.CreatorID)
	case err != nil:
		return c.internal("load holding", err, zap.String("user", req.UserID))
	}
	return checkHolding(holding, req.Amount)
}

func checkSnapshotFunds(req ExecuteRequest, snap storage.Snapshot) error {
	if req.Direction == model.DirectionBuy {
		return checkBalance(snap.Account, req.Amount)
	}
	if !snap.HasHolding {
		return reject(ErrInsufficientHolding, "no %s tokens held", req.CreatorID)
	}
	return checkHolding(snap.Holding, req.Amount)
}

func checkBalance(a model.Account, amount decimal.Decimal) error {
	if a.NmbrBalance.LessThan(amount) {
		return reject(ErrInsufficientBalance, "have %s, need %s", a.NmbrBalance, amount)
	}
	return nil
}

func checkHolding(h model.Holding, amount decimal.Decimal) error {
	if h.TokenAmount.LessThan(amount) {
		return reject(ErrInsufficientHolding, "have %s, need %s", h.TokenAmount, amount)
	}
	return nil
}

// buildSettlement derives the full write set of a priced trade.
func (c *Coordinator) buildSettlement(req ExecuteRequest, snap storage.Snapshot, res pricing.TradeResult, slippage decimal.Decimal) (storage.Settlement, error) {
	now := c.now()
	gross := res.GrossCurrency()

	pool := snap.Pool
	pool.NmbrReserve = res.NewReserveCurrency
	pool.TokenSupply = res.NewReserveTokens
	pool.CurrentPrice = res.NewPrice
	pool.MarketCap = res.NewPrice.Mul(c.cfg.TotalTokenSupply).Round(pricing.Scale)
	pool.Volume24h = pool.Volume24h.Add(gross)
	pool.VolumeAllTime = pool.VolumeAllTime.Add(gross)
	pool.Version++
	pool.UpdatedAt = now

	account := snap.Account
	account.UserID = req.UserID
	account.UpdatedAt = now

	set := storage.Settlement{
		Transaction: model.Transaction{
			ID:             uuid.New(),
			UserID:         req.UserID,
			PoolID:         pool.ID,
			CreatorID:      pool.CreatorID,
			Type:           req.Direction,
			PricePerToken:  res.PricePerToken,
			FeeAmount:      res.FeeAmount,
			FeePct:         res.FeePct,
			SlippagePct:    slippage,
			PriceImpactPct: res.PriceImpactPct,
			CreatedAt:      now,
		},
		PricePoint: model.PricePoint{PoolID: pool.ID, Price: res.NewPrice, Volume: gross, RecordedAt: now},
	}

	switch req.Direction {
	case model.DirectionBuy:
		account.NmbrBalance = account.NmbrBalance.Sub(req.Amount)
		account.TotalInvested = account.TotalInvested.Add(req.Amount)

		holding := snap.Holding
		if !snap.HasHolding {
			holding = model.Holding{UserID: req.UserID, CreatorID: pool.CreatorID}
			pool.HolderCount++
		}
		holding = portfolio.ApplyBuy(holding, res.OutputAmount, res.PricePerToken, req.Amount)
		holding.UpdatedAt = now
		set.Holding = holding

		set.Transaction.TokenAmount = res.OutputAmount
		set.Transaction.NmbrAmount = req.Amount

	case model.DirectionSell:
		account.NmbrBalance = account.NmbrBalance.Add(res.OutputAmount)
		sold := portfolio.ApplySell(snap.Holding, req.Amount)
		account.TotalInvested = decimal.Max(decimal.Zero, account.TotalInvested.Sub(sold.ReleasedCost))

		if sold.Closed {
			set.DeleteHolding = true
			if pool.HolderCount > 0 {
				pool.HolderCount--
			}
		} else {
			sold.Holding.UpdatedAt = now
			set.Holding = sold.Holding
		}

		set.Transaction.TokenAmount = req.Amount
		set.Transaction.NmbrAmount = res.OutputAmount
	}

	if pool.NmbrReserve.Sign() <= 0 || pool.TokenSupply.Sign() <= 0 {
		return storage.Settlement{}, fmt.Errorf("%w: reserves %s/%s after trade", pricing.ErrInvariant, pool.NmbrReserve, pool.TokenSupply)
	}
	if account.NmbrBalance.Sign() < 0 {
		return storage.Settlement{}, fmt.Errorf("%w: balance %s after trade", pricing.ErrInvariant, account.NmbrBalance)
	}

	set.Pool = pool
	set.Account = account
	return set, nil
}

func (c *Coordinator) exportTransaction(set storage.Settlement) {
	if c.journal == nil {
		return
	}
	entry := storage.JournalEntry{Transaction: set.Transaction, PoolVersion: set.Pool.Version}
	if err := c.journal.Append(entry); err != nil {
		c.logger.Warn("journal write failed", zap.String("tx", entry.ID.String()), zap.Error(err))
	}
}

// History returns a page of userID's transactions, newest first.
func (c *Coordinator) History(ctx context.Context, q model.HistoryQuery) (HistoryPage, error) {
	if q.UserID == "" {
		return HistoryPage{}, reject(ErrMissingUser, "history")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	txs, total, err := c.store.Transactions(ctx, q)
	if err != nil {
		return HistoryPage{}, c.internal("load history", err, zap.String("user", q.UserID))
	}
	return HistoryPage{Transactions: txs, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

// Portfolio values every holding of userID at current pool prices.
func (c *Coordinator) Portfolio(ctx context.Context, userID string) (portfolio.Summary, error) {
	if userID == "" {
		return portfolio.Summary{}, reject(ErrMissingUser, "portfolio")
	}
	summary, err := c.ledger.Summary(ctx, userID)
	if err != nil {
		return portfolio.Summary{}, c.internal("load portfolio", err, zap.String("user", userID))
	}
	return summary, nil
}

// Pool returns the current state of creatorID's pool.
func (c *Coordinator) Pool(ctx context.Context, creatorID string) (model.Pool, error) {
	return c.loadPool(ctx, creatorID)
}

// PriceHistory returns up to limit recent price points of creatorID's pool.
func (c *Coordinator) PriceHistory(ctx context.Context, creatorID string, limit int) ([]model.PricePoint, error) {
	pool, err := c.loadPool(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	points, err := c.store.PriceHistory(ctx, pool.ID, limit)
	if err != nil {
		return nil, c.internal("load price history", err, zap.String("creator", creatorID))
	}
	return points, nil
}

func outcomeOf(err error, success string) string {
	var pe *PreconditionError
	switch {
	case err == nil:
		return success
	case errors.As(err, &pe):
		return OutcomePrecondition
	case errors.Is(err, ErrSlippageExceeded):
		return OutcomeSlippage
	default:
		return OutcomeFailed
	}
}
