// Package trade provides the HTTP handlers and business logic for creating
// pools, executing trades against them, and querying pools and wallets.
//
// All monetary values use fixedpoint.FixedPoint, never float64 for money.
package trade

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/atmx/hyperdrive-engine/internal/asset"
	"github.com/atmx/hyperdrive-engine/internal/config"
	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/journal"
	"github.com/atmx/hyperdrive-engine/internal/limits"
	"github.com/atmx/hyperdrive-engine/internal/market"
	"github.com/atmx/hyperdrive-engine/internal/metrics"
	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/pricing"
	"github.com/atmx/hyperdrive-engine/internal/store"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

// ErrBadRequest marks malformed requests.
var ErrBadRequest = errors.New("trade: bad request")

// Service handles pool operations. A mutex serializes every mutation
// (single-instance). For horizontal scaling, replace with distributed
// locking or database-level optimistic concurrency.
type Service struct {
	store    store.Store
	limiter  *limits.PositionLimiter
	journal  *journal.Journal // optional trade WAL
	wsHub    *WSHub           // optional WebSocket hub for real-time broadcasts
	defaults config.MarketConfig
	log      *zap.Logger
	now      func() time.Time
	mu       sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithHub broadcasts pool updates over hub.
func WithHub(hub *WSHub) Option { return func(s *Service) { s.wsHub = hub } }

// WithJournal appends every applied trade to j.
func WithJournal(j *journal.Journal) Option { return func(s *Service) { s.journal = j } }

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithDefaults sets the parameters used for fields a CreatePoolRequest omits.
func WithDefaults(m config.MarketConfig) Option { return func(s *Service) { s.defaults = m } }

// WithNow replaces the wall clock used for timestamps.
func WithNow(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a new trade service. A nil limiter only enforces
// wallet balances.
func NewService(st store.Store, limiter *limits.PositionLimiter, opts ...Option) *Service {
	if limiter == nil {
		limiter = limits.NewPositionLimiter(fixedpoint.Zero)
	}
	s := &Service{
		store:    st,
		limiter:  limiter,
		defaults: config.DefaultMarket(),
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// --- Request/Response types ---

// CreatePoolRequest is the JSON body for pool creation. Omitted fields take
// the service defaults.
type CreatePoolRequest struct {
	Name                 string                 `json:"name"`
	PricingModel         string                 `json:"pricing_model"`
	FeePercent           *fixedpoint.FixedPoint `json:"fee_percent,omitempty"`
	PositionDurationDays *fixedpoint.FixedPoint `json:"position_duration_days,omitempty"`
	TargetAPR            *fixedpoint.FixedPoint `json:"target_apr,omitempty"`
	TargetLiquidity      *fixedpoint.FixedPoint `json:"target_liquidity,omitempty"`
	InitSharePrice       *fixedpoint.FixedPoint `json:"init_share_price,omitempty"`
	SharePrice           *fixedpoint.FixedPoint `json:"share_price,omitempty"`
	VaultAPR             *fixedpoint.FixedPoint `json:"vault_apr,omitempty"`
	Provider             string                 `json:"provider"` // receives the seed LP tokens
}

// TradeRequest is the JSON body for POST /pools/{poolID}/trades.
type TradeRequest struct {
	Wallet   string                `json:"wallet"`
	Action   string                `json:"action"`
	Amount   fixedpoint.FixedPoint `json:"amount"`
	MintTime int64                 `json:"mint_time"` // close_long / close_short only
}

// TradeResponse is returned from a trade. Rejected trades carry an empty
// delta and change nothing.
type TradeResponse struct {
	TradeID   string                 `json:"trade_id,omitempty"`
	Sequence  uint64                 `json:"sequence,omitempty"`
	PoolID    string                 `json:"pool_id"`
	Action    model.ActionType       `json:"action"`
	Rejected  bool                   `json:"rejected"`
	Delta     wallet.Wallet          `json:"delta"`
	Wallet    wallet.Wallet          `json:"wallet"`
	SpotPrice *fixedpoint.FixedPoint `json:"spot_price,omitempty"`
	Rate      *fixedpoint.FixedPoint `json:"rate,omitempty"`
	Clock     int64                  `json:"clock"`
}

// FundRequest credits base to a wallet.
type FundRequest struct {
	Amount fixedpoint.FixedPoint `json:"amount"`
}

// AdvanceRequest moves a pool's clock forward and accrues vault interest
// at the pool's vault APR over the same period.
type AdvanceRequest struct {
	Seconds  int64 `json:"seconds"`
	Compound bool  `json:"compound"`
}

// PoolView is a pool with its derived prices. Prices are omitted when the
// pool is empty.
type PoolView struct {
	model.Pool
	SpotPrice *fixedpoint.FixedPoint `json:"spot_price,omitempty"`
	Rate      *fixedpoint.FixedPoint `json:"rate,omitempty"`
	MaxLong   *fixedpoint.FixedPoint `json:"max_long,omitempty"`
}

// Position is one open cohort with its asset ID.
type Position struct {
	Asset   string                 `json:"asset"`
	AssetID string                 `json:"asset_id"`
	Balance fixedpoint.FixedPoint  `json:"balance"`
	Margin  *fixedpoint.FixedPoint `json:"margin,omitempty"`
}

// WalletView is a wallet with its positions listed by asset.
type WalletView struct {
	PoolID string `json:"pool_id"`
	wallet.Wallet
	Positions []Position `json:"positions"`
}

// --- Operations ---

// CreatePool builds, seeds and persists a new pool.
func (s *Service) CreatePool(ctx context.Context, req CreatePoolRequest) (*PoolView, error) {
	params := s.defaults
	if req.PricingModel != "" {
		params.PricingModel = req.PricingModel
	}
	for _, f := range []struct {
		dst *fixedpoint.FixedPoint
		v   *fixedpoint.FixedPoint
	}{
		{&params.FeePercent, req.FeePercent},
		{&params.PositionDurationDays, req.PositionDurationDays},
		{&params.TargetAPR, req.TargetAPR},
		{&params.InitSharePrice, req.InitSharePrice},
		{&params.SharePrice, req.SharePrice},
		{&params.VaultAPR, req.VaultAPR},
		{&params.TargetLiquidity, req.TargetLiquidity},
	} {
		if f.v != nil {
			*f.dst = *f.v
		}
	}
	liquidity := params.TargetLiquidity
	if req.Provider != "" && !common.IsHexAddress(req.Provider) {
		return nil, errors.Wrapf(ErrBadRequest, "provider %q is not an address", req.Provider)
	}

	id := uuid.New().String()
	m, err := params.NewMarket(market.WithLogger(s.log.With(zap.String("pool_id", id))))
	if err != nil {
		return nil, err
	}

	var seed wallet.Wallet
	if liquidity.IsPositive() {
		provider := common.HexToAddress(req.Provider)
		if seed, err = m.Bootstrap(provider, liquidity, params.TargetAPR); err != nil {
			return nil, err
		}
		// Seed capital comes from outside the pool's wallets.
		seed.Base = fixedpoint.Zero
	}

	now := s.now().UTC()
	name := req.Name
	if name == "" {
		name = "pool-" + id[:8]
	}
	pool := &model.Pool{
		ID:           id,
		Name:         name,
		PricingModel: m.PricingModel().Name(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	snap := m.Snapshot()
	pool.FeePercent = snap.Fee
	pool.PositionDuration = snap.PositionDuration
	snap.ApplyTo(pool)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.CreatePool(ctx, pool); err != nil {
		return nil, err
	}
	if liquidity.IsPositive() {
		w := wallet.New(seed.Address)
		if err := w.Merge(seed); err != nil {
			return nil, err
		}
		if err := s.store.PutWallet(ctx, id, w); err != nil {
			return nil, err
		}
	}
	if pools, err := s.store.ListPools(ctx); err == nil {
		metrics.ActivePools.Set(float64(len(pools)))
	}

	view := viewOf(*pool, m)
	s.log.Info("pool created",
		zap.String("id", id),
		zap.String("name", name),
		zap.String("pricing_model", pool.PricingModel),
		zap.Stringer("liquidity", liquidity),
	)
	s.broadcast(MsgPoolCreated, view, nil)
	return view, nil
}

// ExecuteTrade applies one trade to a pool and persists the result.
func (s *Service) ExecuteTrade(ctx context.Context, poolID string, req TradeRequest) (*TradeResponse, error) {
	start := time.Now()
	action, err := model.ParseActionType(req.Action)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(req.Wallet) {
		return nil, errors.Wrapf(ErrBadRequest, "wallet %q is not an address", req.Wallet)
	}
	act := model.TradeAction{
		Type:     action,
		Amount:   req.Amount,
		Wallet:   common.HexToAddress(req.Wallet),
		MintTime: req.MintTime,
	}

	// Serialize trade execution.
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, m, err := s.load(ctx, poolID)
	if err != nil {
		return nil, err
	}
	w, err := s.wallet(ctx, poolID, act.Wallet)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.CheckAction(act, w); err != nil {
		metrics.PositionLimitRejections.WithLabelValues(string(action)).Inc()
		return nil, err
	}

	delta, err := m.TradeAndUpdate(act)
	if err != nil {
		return nil, err
	}
	resp := &TradeResponse{PoolID: poolID, Action: action, Clock: m.Clock()}
	if delta.IsZero() {
		resp.Rejected = true
		resp.Wallet = *w
		resp.SpotPrice, resp.Rate = prices(m)
		return resp, nil
	}
	if err := w.Merge(delta); err != nil {
		return nil, err
	}

	history, err := s.store.GetLedgerEntriesByPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	m.Snapshot().ApplyTo(pool)
	pool.UpdatedAt = now
	spot, rate := prices(m)
	entry := &model.LedgerEntry{
		ID:        uuid.New().String(),
		Sequence:  uint64(len(history)) + 1,
		PoolID:    poolID,
		Wallet:    act.Wallet.Hex(),
		Action:    action,
		Amount:    act.Amount,
		MintTime:  act.MintTime,
		DBase:     delta.Base,
		DBonds:    bondDelta(delta),
		Fee:       delta.FeesPaid,
		SpotPrice: orNaN(spot),
		Timestamp: now,
	}
	if err := s.store.CommitTrade(ctx, store.TradeCommit{Pool: pool, Wallet: w, Entry: entry}); err != nil {
		return nil, err
	}
	// The store is the source of truth; a journal failure does not undo
	// the committed trade.
	if s.journal != nil {
		if _, err := s.journal.Append(journal.Entry{PoolID: poolID, Action: act, Delta: delta, State: m.State(), Clock: m.Clock()}); err != nil {
			s.log.Error("journal append failed",
				zap.String("trade_id", entry.ID),
				zap.String("pool_id", poolID),
				zap.Error(err),
			)
		}
	}

	metrics.RecordTrade(poolID, string(action), act.Amount, time.Since(start))
	metrics.ObservePool(poolID, orNaN(spot), orNaN(rate))
	s.log.Info("trade executed",
		zap.String("trade_id", entry.ID),
		zap.String("pool_id", poolID),
		zap.String("wallet", entry.Wallet),
		zap.String("action", string(action)),
		zap.Stringer("amount", act.Amount),
		zap.Stringer("d_base", delta.Base),
		zap.Stringer("fee", delta.FeesPaid),
	)
	s.broadcast(MsgTradeExecuted, viewOf(*pool, m), &act)

	resp.TradeID = entry.ID
	resp.Sequence = entry.Sequence
	resp.Delta = delta
	resp.Wallet = *w
	resp.SpotPrice, resp.Rate = spot, rate
	return resp, nil
}

// Fund credits amount base to a wallet in a pool.
func (s *Service) Fund(ctx context.Context, poolID, addr string, amount fixedpoint.FixedPoint) (*WalletView, error) {
	if !common.IsHexAddress(addr) {
		return nil, errors.Wrapf(ErrBadRequest, "wallet %q is not an address", addr)
	}
	if !amount.IsFinite() || !amount.IsPositive() {
		return nil, errors.Wrapf(model.ErrPreconditionViolation, "fund amount %s", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	w, err := s.wallet(ctx, poolID, common.HexToAddress(addr))
	if err != nil {
		return nil, err
	}
	if err := w.Merge(wallet.Wallet{Address: w.Address, Base: amount}); err != nil {
		return nil, err
	}
	if err := s.store.PutWallet(ctx, poolID, w); err != nil {
		return nil, err
	}
	return walletView(poolID, w), nil
}

// Advance ticks a pool's clock and accrues vault interest.
func (s *Service) Advance(ctx context.Context, poolID string, req AdvanceRequest) (*PoolView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, m, err := s.load(ctx, poolID)
	if err != nil {
		return nil, err
	}
	dt := fixedpoint.New(req.Seconds).Div(fixedpoint.New(model.DaysPerYear * model.SecondsPerDay))
	if err := m.Tick(req.Seconds); err != nil {
		return nil, err
	}
	if err := m.Accrue(m.State().VaultAPR, dt, req.Compound); err != nil {
		return nil, err
	}
	m.Snapshot().ApplyTo(pool)
	pool.UpdatedAt = s.now().UTC()
	if err := s.store.UpdatePool(ctx, pool); err != nil {
		return nil, err
	}

	view := viewOf(*pool, m)
	s.broadcast(MsgPoolAdvanced, view, nil)
	return view, nil
}

// GetPool returns a pool with its current prices.
func (s *Service) GetPool(ctx context.Context, poolID string) (*PoolView, error) {
	pool, m, err := s.load(ctx, poolID)
	if err != nil {
		return nil, err
	}
	return viewOf(*pool, m), nil
}

// ListPools returns every pool with its current prices.
func (s *Service) ListPools(ctx context.Context) ([]PoolView, error) {
	pools, err := s.store.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PoolView, 0, len(pools))
	for _, p := range pools {
		m, err := market.Restore(market.SnapshotFromPool(p))
		if err != nil {
			return nil, errors.Wrapf(err, "pool %s", p.ID)
		}
		out = append(out, *viewOf(p, m))
	}
	return out, nil
}

// GetWallet returns a wallet's holdings in a pool. Unknown wallets are
// returned empty.
func (s *Service) GetWallet(ctx context.Context, poolID, addr string) (*WalletView, error) {
	if !common.IsHexAddress(addr) {
		return nil, errors.Wrapf(ErrBadRequest, "wallet %q is not an address", addr)
	}
	if _, err := s.store.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	w, err := s.wallet(ctx, poolID, common.HexToAddress(addr))
	if err != nil {
		return nil, err
	}
	return walletView(poolID, w), nil
}

// PoolHistory returns the pool's ledger in sequence order.
func (s *Service) PoolHistory(ctx context.Context, poolID string) ([]model.LedgerEntry, error) {
	if _, err := s.store.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	entries, err := s.store.GetLedgerEntriesByPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	return entries, nil
}

// EnsurePool creates a pool from the service defaults when the store holds
// none, and returns the first pool.
func (s *Service) EnsurePool(ctx context.Context, name, provider string) (*PoolView, error) {
	pools, err := s.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	metrics.ActivePools.Set(float64(len(pools)))
	if len(pools) > 0 {
		return &pools[0], nil
	}
	return s.CreatePool(ctx, CreatePoolRequest{Name: name, Provider: provider})
}

// --- Helpers ---

func (s *Service) load(ctx context.Context, poolID string) (*model.Pool, *market.Market, error) {
	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, nil, err
	}
	m, err := market.Restore(market.SnapshotFromPool(*pool),
		market.WithLogger(s.log.With(zap.String("pool_id", poolID))),
		market.WithObserver(metrics.PoolObserver{PoolID: poolID}),
	)
	if err != nil {
		return nil, nil, err
	}
	return pool, m, nil
}

func (s *Service) wallet(ctx context.Context, poolID string, addr common.Address) (*wallet.Wallet, error) {
	w, err := s.store.GetWallet(ctx, poolID, addr)
	if errors.Is(err, store.ErrNotFound) {
		return wallet.New(addr), nil
	}
	return w, err
}

func (s *Service) broadcast(kind string, v *PoolView, act *model.TradeAction) {
	if s.wsHub == nil {
		return
	}
	msg := WSMessage{
		Type:          kind,
		PoolID:        v.ID,
		SpotPrice:     v.SpotPrice,
		Rate:          v.Rate,
		ShareReserves: v.State.ShareReserves,
		BondReserves:  v.State.BondReserves,
		SharePrice:    v.State.SharePrice,
		Clock:         v.Clock,
	}
	if act != nil {
		amount := act.Amount
		msg.Action = string(act.Type)
		msg.Wallet = act.Wallet.Hex()
		msg.Amount = &amount
	}
	s.wsHub.Broadcast(msg)
}

func prices(m *market.Market) (spot, rate *fixedpoint.FixedPoint) {
	if p, ok := m.SpotPrice(); ok {
		spot = &p
	}
	if r, ok := m.Rate(); ok {
		rate = &r
	}
	return spot, rate
}

func orNaN(v *fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	if v == nil {
		return fixedpoint.NaN()
	}
	return *v
}

func viewOf(p model.Pool, m *market.Market) *PoolView {
	v := &PoolView{Pool: p}
	v.SpotPrice, v.Rate = prices(m)
	if ml, ok := m.MaxLong(); ok {
		v.MaxLong = &ml
	}
	return v
}

// bondDelta sums the bond changes across the delta's cohorts.
func bondDelta(d wallet.Wallet) fixedpoint.FixedPoint {
	total := fixedpoint.Zero
	for _, l := range d.Longs {
		total = total.Add(l.Balance)
	}
	for _, sh := range d.Shorts {
		total = total.Sub(sh.Balance)
	}
	return total
}

func walletView(poolID string, w *wallet.Wallet) *WalletView {
	longs, shorts := w.OpenLongs(), w.OpenShorts()
	v := &WalletView{PoolID: poolID, Wallet: *w, Positions: []Position{}}
	for _, a := range asset.Positions(longs, shorts, w.LPTokens.IsPositive()) {
		id, err := a.ID()
		if err != nil {
			continue
		}
		p := Position{Asset: a.Name(), AssetID: asset.FormatHex(id)}
		switch a.Prefix {
		case asset.LP:
			p.Balance = w.LPTokens
		case asset.Long:
			p.Balance = w.Longs[a.Timestamp].Balance
		case asset.Short:
			sh := w.Shorts[a.Timestamp]
			p.Balance = sh.Balance
			p.Margin = &sh.Margin
		}
		v.Positions = append(v.Positions, p)
	}
	return v
}

// --- HTTP Handlers ---

// Routes mounts the API on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/pools", s.handleCreatePool)
	r.Get("/pools", s.handleListPools)
	r.Get("/pools/{poolID}", s.handleGetPool)
	r.Post("/pools/{poolID}/trades", s.handleExecuteTrade)
	r.Post("/pools/{poolID}/advance", s.handleAdvance)
	r.Get("/pools/{poolID}/history", s.handlePoolHistory)
	r.Get("/pools/{poolID}/wallets/{address}", s.handleGetWallet)
	r.Post("/pools/{poolID}/wallets/{address}/fund", s.handleFund)
	r.Get("/models", s.handleModels)
}

// handleCreatePool handles POST /api/v1/pools
func (s *Service) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := s.CreatePool(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// handleListPools handles GET /api/v1/pools
func (s *Service) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.ListPools(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

// handleGetPool handles GET /api/v1/pools/{poolID}
func (s *Service) handleGetPool(w http.ResponseWriter, r *http.Request) {
	view, err := s.GetPool(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleExecuteTrade handles POST /api/v1/pools/{poolID}/trades
func (s *Service) handleExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.ExecuteTrade(r.Context(), chi.URLParam(r, "poolID"), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAdvance handles POST /api/v1/pools/{poolID}/advance
func (s *Service) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := s.Advance(r.Context(), chi.URLParam(r, "poolID"), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handlePoolHistory handles GET /api/v1/pools/{poolID}/history
func (s *Service) handlePoolHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.PoolHistory(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleGetWallet handles GET /api/v1/pools/{poolID}/wallets/{address}
func (s *Service) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	view, err := s.GetWallet(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "address"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleFund handles POST /api/v1/pools/{poolID}/wallets/{address}/fund
func (s *Service) handleFund(w http.ResponseWriter, r *http.Request) {
	var req FundRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := s.Fund(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "address"), req.Amount)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleModels handles GET /api/v1/models
func (s *Service) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []string{pricing.NameHyperdrive, pricing.NameYieldSpace})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, model.ErrInvalidAction),
		errors.Is(err, model.ErrUnknownModel),
		errors.Is(err, model.ErrPreconditionViolation),
		errors.Is(err, model.ErrNonFiniteValue):
		return http.StatusBadRequest
	case errors.Is(err, limits.ErrCohortBalanceExceeded),
		errors.Is(err, limits.ErrLPBalanceExceeded),
		errors.Is(err, limits.ErrBaseBalanceExceeded),
		errors.Is(err, limits.ErrExposureLimitExceeded),
		errors.Is(err, model.ErrNegativeBalance),
		errors.Is(err, model.ErrInsufficientReserves),
		errors.Is(err, model.ErrEmptyMarket),
		errors.Is(err, model.ErrDivisionByZero):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Service) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeError(w, msg, status)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
