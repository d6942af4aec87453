// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexcore

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"
)

// PoolManager is the singleton executor. All pools live inside one Store
// and every balance-changing operation runs inside a Lock session whose
// per-currency debts must net to zero before the session commits.
type PoolManager struct {
	mu    sync.Mutex
	store *Store

	session    *Session
	sessionSeq uint64

	extensions map[common.Address]*registeredExtension

	protocolFeePips uint24
	controller      common.Address

	logger *zap.Logger
}

// Option configures a PoolManager.
type Option func(*PoolManager)

// WithLogger sets the structured logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(pm *PoolManager) { pm.logger = logger }
}

// WithProtocolFee sets the protocol's cut of swap fees, in pips of the
// fee amount.
func WithProtocolFee(pips uint24) Option {
	return func(pm *PoolManager) { pm.protocolFeePips = pips }
}

// WithController sets the account allowed to collect protocol fees.
func WithController(addr common.Address) Option {
	return func(pm *PoolManager) { pm.controller = addr }
}

// NewPoolManager creates an empty pool manager.
func NewPoolManager(opts ...Option) *PoolManager {
	pm := &PoolManager{
		store:      NewStore(),
		extensions: make(map[common.Address]*registeredExtension),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

// Store exposes the balance book for funding accounts in tests and
// embedding runtimes.
func (pm *PoolManager) Store() *Store {
	return pm.store
}

// RegisterExtension binds an extension implementation to an address. The
// declared call points must match what the implementation reports, so a
// registration cannot claim capabilities the extension does not have.
func (pm *PoolManager) RegisterExtension(addr common.Address, declared CallPoints, ext Extension) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, ok := pm.extensions[addr]; ok {
		return fmt.Errorf("%w: %s", ErrExtensionRegistered, addr.Hex())
	}
	if declared != ext.CallPoints() {
		return fmt.Errorf("%w: %s", ErrCallPointsMismatch, addr.Hex())
	}
	pm.extensions[addr] = &registeredExtension{ext: ext, points: declared}

	pm.logger.Info("extension registered",
		zap.Stringer("address", addr),
		zap.Uint16("flags", uint16(declared.Flags())),
	)
	return nil
}

// LockCallback runs inside an open session. Returning an error aborts
// the session and rolls back every state change it made.
type LockCallback func(sess *Session) (any, error)

// Lock opens a settlement session for caller, runs fn, and commits only
// if fn succeeds and every currency delta is zero. On failure the store
// is restored to its pre-session snapshot. Sessions do not nest.
func (pm *PoolManager) Lock(caller common.Address, fn LockCallback) (any, error) {
	pm.mu.Lock()
	if pm.session != nil {
		pm.mu.Unlock()
		return nil, ErrSessionActive
	}
	pm.sessionSeq++
	sess := &Session{
		id:     pm.sessionSeq,
		pm:     pm,
		actors: []common.Address{caller},
		deltas: make(map[Currency]*big.Int),
	}
	pm.session = sess
	snap := pm.store.snapshot()
	pm.mu.Unlock()

	result, err := fn(sess)

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.session = nil

	if err == nil && sess.failed != nil {
		err = fmt.Errorf("%w: %v", ErrSessionFailed, sess.failed)
	}
	if err == nil && !sess.settled() {
		err = fmt.Errorf("%w: %d currencies unsettled", ErrNonZeroDelta, sess.nonzero)
	}
	if err != nil {
		pm.store.restore(snap)
		pm.logger.Debug("session aborted", zap.Uint64("session", sess.id), zap.Error(err))
		return nil, err
	}

	pm.logger.Debug("session committed", zap.Uint64("session", sess.id))
	return result, nil
}

// checkSession verifies sess is the currently open session. Callers must
// hold pm.mu.
func (pm *PoolManager) checkSession(sess *Session) error {
	if pm.session == nil {
		return ErrNoActiveSession
	}
	if sess != pm.session {
		return ErrStaleSession
	}
	return nil
}

// callHook invokes an extension hook with pm.mu released, so the hook
// can re-enter the manager through the session. Callers must hold pm.mu.
func (pm *PoolManager) callHook(fn func() error) error {
	pm.mu.Unlock()
	defer pm.mu.Lock()
	return fn()
}

// extensionFor returns the registered extension of a pool key, or nil
// when the key carries no extension.
func (pm *PoolManager) extensionFor(key PoolKey) *registeredExtension {
	if key.Extension == (common.Address{}) {
		return nil
	}
	return pm.extensions[key.Extension]
}

// InitializePool creates a pool at the given tick and returns its
// starting sqrt price. Pools with an extension require the extension to
// be registered first. Initialization may run inside or outside a
// session; it moves no funds.
func (pm *PoolManager) InitializePool(key PoolKey, initialTick int24) (*big.Int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err := key.Validate(); err != nil {
		return nil, err
	}
	var reg *registeredExtension
	if key.Extension != (common.Address{}) {
		var ok bool
		reg, ok = pm.extensions[key.Extension]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrExtensionNotRegistered, key.Extension.Hex())
		}
	}

	pool := pm.store.pool(key.ID())
	if pool.IsInitialized() {
		return nil, ErrPoolAlreadyInitialized
	}

	if reg != nil && reg.points.BeforeInitialize {
		if err := pm.callHook(func() error { return reg.ext.BeforeInitialize(key, initialTick) }); err != nil {
			return nil, err
		}
	}

	sqrtPriceX96, err := pool.initialize(key, initialTick)
	if err != nil {
		return nil, err
	}

	if reg != nil && reg.points.AfterInitialize {
		if err := pm.callHook(func() error { return reg.ext.AfterInitialize(key, initialTick, sqrtPriceX96) }); err != nil {
			pm.store.pools[key.ID()] = NewPool()
			return nil, err
		}
	}

	pm.logger.Info("pool initialized",
		zap.String("pool", common.Hash(key.ID()).Hex()),
		zap.Int32("tick", initialTick),
		zap.Uint32("fee", key.Fee),
	)
	return sqrtPriceX96, nil
}

// Swap executes a swap against a pool and posts the resulting delta to
// the session ledger. Positive delta components are owed to the pool.
func (pm *PoolManager) Swap(sess *Session, key PoolKey, params SwapParams) (BalanceDelta, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err := pm.checkSession(sess); err != nil {
		return ZeroBalanceDelta(), err
	}
	pool := pm.store.pool(key.ID())
	if !pool.IsInitialized() {
		return ZeroBalanceDelta(), ErrPoolNotInitialized
	}

	reg := pm.extensionFor(key)
	if reg != nil && reg.points.BeforeSwap {
		if err := pm.callHook(func() error { return reg.ext.BeforeSwap(sess, key, params) }); err != nil {
			return ZeroBalanceDelta(), err
		}
	}

	delta, err := pool.swap(params, pm.protocolFeePips)
	if err != nil {
		sess.fail(err)
		return ZeroBalanceDelta(), err
	}
	sess.applyBalanceDelta(key, delta)

	if reg != nil && reg.points.AfterSwap {
		if err := pm.callHook(func() error { return reg.ext.AfterSwap(sess, key, params, delta) }); err != nil {
			return ZeroBalanceDelta(), err
		}
	}

	pm.logger.Debug("swap",
		zap.Uint64("session", sess.id),
		zap.String("pool", common.Hash(key.ID()).Hex()),
		zap.Bool("zeroForOne", params.ZeroForOne),
		zap.String("amount0", delta.Amount0.String()),
		zap.String("amount1", delta.Amount1.String()),
	)
	return delta, nil
}

// UpdatePosition changes the liquidity of the acting identity's position
// and posts the net delta (principal plus any fee credit) to the session
// ledger. The returned delta is the net amount.
func (pm *PoolManager) UpdatePosition(sess *Session, key PoolKey, params UpdatePositionParams) (BalanceDelta, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err := pm.checkSession(sess); err != nil {
		return ZeroBalanceDelta(), err
	}
	pool := pm.store.pool(key.ID())
	if !pool.IsInitialized() {
		return ZeroBalanceDelta(), ErrPoolNotInitialized
	}

	reg := pm.extensionFor(key)
	if reg != nil && reg.points.BeforeUpdatePosition {
		if err := pm.callHook(func() error { return reg.ext.BeforeUpdatePosition(sess, key, params) }); err != nil {
			return ZeroBalanceDelta(), err
		}
	}

	owner := sess.Actor()
	delta, fees, err := pool.updatePosition(owner, params)
	if err != nil {
		sess.fail(err)
		return ZeroBalanceDelta(), err
	}
	sess.applyBalanceDelta(key, delta)

	if reg != nil && reg.points.AfterUpdatePosition {
		if err := pm.callHook(func() error { return reg.ext.AfterUpdatePosition(sess, key, params, delta) }); err != nil {
			return ZeroBalanceDelta(), err
		}
	}

	pm.logger.Debug("position updated",
		zap.Uint64("session", sess.id),
		zap.String("pool", common.Hash(key.ID()).Hex()),
		zap.Stringer("owner", owner),
		zap.Int32("tickLower", params.TickLower),
		zap.Int32("tickUpper", params.TickUpper),
		zap.String("fees0", fees.Amount0.String()),
		zap.String("fees1", fees.Amount1.String()),
	)
	return delta, nil
}

// CollectFees pays out fees accrued by the acting identity's position
// since its last checkpoint and credits them to the session ledger.
// Collecting twice in a row yields zero the second time.
func (pm *PoolManager) CollectFees(sess *Session, key PoolKey, r PositionRange) (*big.Int, *big.Int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err := pm.checkSession(sess); err != nil {
		return nil, nil, err
	}
	pool := pm.store.pool(key.ID())
	if !pool.IsInitialized() {
		return nil, nil, ErrPoolNotInitialized
	}

	reg := pm.extensionFor(key)
	if reg != nil && reg.points.BeforeCollectFees {
		if err := pm.callHook(func() error { return reg.ext.BeforeCollectFees(sess, key, r) }); err != nil {
			return nil, nil, err
		}
	}

	owner := sess.Actor()
	amount0, amount1, err := pool.collectFees(owner, r)
	if err != nil {
		return nil, nil, err
	}
	sess.applyDelta(key.Currency0, new(big.Int).Neg(amount0))
	sess.applyDelta(key.Currency1, new(big.Int).Neg(amount1))

	if reg != nil && reg.points.AfterCollectFees {
		if err := pm.callHook(func() error { return reg.ext.AfterCollectFees(sess, key, r, amount0, amount1) }); err != nil {
			return nil, nil, err
		}
	}

	pm.logger.Debug("fees collected",
		zap.Uint64("session", sess.id),
		zap.String("pool", common.Hash(key.ID()).Hex()),
		zap.Stringer("owner", owner),
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()),
	)
	return amount0, amount1, nil
}

// AccumulateAsFees donates amounts to a pool's in-range liquidity as if
// they were swap fees. Only the pool's own extension may call it, and
// the donated amounts become debt on the session ledger.
func (pm *PoolManager) AccumulateAsFees(sess *Session, key PoolKey, amount0, amount1 *big.Int) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err := pm.checkSession(sess); err != nil {
		return err
	}
	if sess.Actor() != key.Extension {
		return fmt.Errorf("%w: only the pool extension may accumulate fees", ErrUnauthorized)
	}
	pool := pm.store.pool(key.ID())
	if !pool.IsInitialized() {
		return ErrPoolNotInitialized
	}

	if err := pool.accumulateAsFees(amount0, amount1); err != nil {
		sess.fail(err)
		return err
	}
	sess.applyDelta(key.Currency0, new(big.Int).Set(amount0))
	sess.applyDelta(key.Currency1, new(big.Int).Set(amount1))
	return nil
}

// UpdateSavedBalances adjusts the balances an extension keeps parked
// inside its pool. Positive deltas save (the extension owes the pool),
// negative deltas load (the pool credits the extension). Only the pool's
// own extension may call it.
func (pm *PoolManager) UpdateSavedBalances(sess *Session, key PoolKey, delta0, delta1 *big.Int) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err := pm.checkSession(sess); err != nil {
		return err
	}
	if sess.Actor() != key.Extension {
		return fmt.Errorf("%w: only the pool extension may touch saved balances", ErrUnauthorized)
	}
	pool := pm.store.pool(key.ID())
	if !pool.IsInitialized() {
		return ErrPoolNotInitialized
	}

	if err := pool.updateSavedBalances(delta0, delta1); err != nil {
		sess.fail(err)
		return err
	}
	sess.applyDelta(key.Currency0, new(big.Int).Set(delta0))
	sess.applyDelta(key.Currency1, new(big.Int).Set(delta1))
	return nil
}

// CollectProtocolFees withdraws accrued protocol fees from a pool into
// the session ledger as a credit. Restricted to the controller when one
// is configured.
func (pm *PoolManager) CollectProtocolFees(sess *Session, key PoolKey) (*big.Int, *big.Int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err := pm.checkSession(sess); err != nil {
		return nil, nil, err
	}
	if pm.controller != (common.Address{}) && sess.Actor() != pm.controller {
		return nil, nil, fmt.Errorf("%w: only the controller may collect protocol fees", ErrUnauthorized)
	}
	pool := pm.store.pool(key.ID())
	if !pool.IsInitialized() {
		return nil, nil, ErrPoolNotInitialized
	}

	amount0 := pool.ProtocolFees0
	amount1 := pool.ProtocolFees1
	pool.ProtocolFees0 = big.NewInt(0)
	pool.ProtocolFees1 = big.NewInt(0)

	sess.applyDelta(key.Currency0, new(big.Int).Neg(amount0))
	sess.applyDelta(key.Currency1, new(big.Int).Neg(amount1))

	pm.logger.Info("protocol fees collected",
		zap.String("pool", common.Hash(key.ID()).Hex()),
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()),
	)
	return amount0, amount1, nil
}

// GetPool returns a deep copy of a pool's state, or false when the pool
// has never been initialized.
func (pm *PoolManager) GetPool(id PoolId) (*Pool, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.store.pools[id]
	if !ok || !pool.IsInitialized() {
		return nil, false
	}
	return pool.clone(), true
}

// GetPosition returns a copy of a position, or false when it does not
// exist.
func (pm *PoolManager) GetPosition(id PoolId, owner common.Address, r PositionRange) (*Position, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.store.pools[id]
	if !ok {
		return nil, false
	}
	// positionAt already hands back a copy.
	pos := pool.positionAt(owner, r.TickLower, r.TickUpper, r.Salt)
	if pos == nil {
		return nil, false
	}
	return pos, true
}
