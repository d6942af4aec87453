// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dexcore implements a singleton multi-pool concentrated-liquidity
// engine with flash accounting. One shared store hosts every pool; callers
// perform swaps and liquidity changes inside a deferred-settlement session,
// and a single net set of token transfers settles the whole session. Any
// non-zero debt at session close aborts every state change atomically.
package dexcore

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// uint24 type alias for fees
type uint24 = uint32

// int24 type alias for ticks
type int24 = int32

// Pool fee tiers (pips, 1/1,000,000)
const (
	Fee001 uint24 = 100    // 0.01% - stablecoins
	Fee005 uint24 = 500    // 0.05% - stable pairs
	Fee030 uint24 = 3000   // 0.30% - standard
	Fee100 uint24 = 10000  // 1.00% - exotic pairs
	FeeMax uint24 = 100000 // 10% max fee
)

// Tick spacing for different fee tiers
const (
	TickSpacing001 int24 = 1
	TickSpacing005 int24 = 10
	TickSpacing030 int24 = 60
	TickSpacing100 int24 = 200

	// MaxTickSpacing bounds how coarse a pool's tick grid may be.
	MaxTickSpacing int24 = 32767
)

// feePipsDenominator is the denominator for fee math (100% in pips).
const feePipsDenominator = 1_000_000

// Currency represents a token (native or contract-backed).
// Address(0) represents the native token.
type Currency struct {
	Address common.Address
}

// NativeCurrency is the native token (no wrapping needed).
var NativeCurrency = Currency{Address: common.Address{}}

// IsNative returns true if this currency is the native token.
func (c Currency) IsNative() bool {
	return c.Address == common.Address{}
}

// ToBytes serializes currency for hashing.
func (c Currency) ToBytes() []byte {
	return c.Address.Bytes()
}

// PoolId uniquely identifies an initialized pool.
type PoolId [32]byte

// PoolKey uniquely identifies a pool configuration.
// Sorted by currency address (currency0 < currency1).
type PoolKey struct {
	Currency0   Currency       // Lower address token
	Currency1   Currency       // Higher address token
	Fee         uint24         // Fee in pips
	TickSpacing int24          // Tick spacing for concentrated liquidity
	Extension   common.Address // Extension address (zero = none)
}

// ID computes the unique pool identifier as a content hash of the key.
func (pk PoolKey) ID() PoolId {
	h := blake3.New()
	h.Write(pk.Currency0.ToBytes())
	h.Write(pk.Currency1.ToBytes())

	var feeBytes [4]byte
	binary.BigEndian.PutUint32(feeBytes[:], uint32(pk.Fee))
	h.Write(feeBytes[1:]) // uint24

	var tickBytes [4]byte
	binary.BigEndian.PutUint32(tickBytes[:], uint32(pk.TickSpacing))
	h.Write(tickBytes[1:]) // int24

	h.Write(pk.Extension.Bytes())

	var id PoolId
	h.Digest().Read(id[:])
	return id
}

// Validate rejects malformed pool keys before any state is touched.
func (pk PoolKey) Validate() error {
	if !currenciesSorted(pk.Currency0, pk.Currency1) {
		return ErrCurrencyNotSorted
	}
	if pk.Fee > FeeMax {
		return ErrInvalidFee
	}
	if pk.TickSpacing < 1 || pk.TickSpacing > MaxTickSpacing {
		return ErrInvalidTickSpacing
	}
	return nil
}

// currenciesSorted returns true if currencies are properly ordered.
// Uses bytes comparison for correct address ordering.
func currenciesSorted(c0, c1 Currency) bool {
	for i := 0; i < common.AddressLength; i++ {
		switch {
		case c0.Address[i] < c1.Address[i]:
			return true
		case c0.Address[i] > c1.Address[i]:
			return false
		}
	}
	return false
}

// maxBalanceDelta is the largest magnitude a single delta component may
// take (2^127 - 1). Deltas past this are rejected, never clamped, so a
// later negation can never land on an unrepresentable value.
var maxBalanceDelta = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))

// BalanceDelta represents the net token changes of an operation.
// Positive = owed to the pool, negative = owed to the caller.
type BalanceDelta struct {
	Amount0 *big.Int // Currency0 delta
	Amount1 *big.Int // Currency1 delta
}

// NewBalanceDelta creates a new balance delta from copies of both amounts.
func NewBalanceDelta(amount0, amount1 *big.Int) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Set(amount0),
		Amount1: new(big.Int).Set(amount1),
	}
}

// ZeroBalanceDelta returns a zero balance delta.
func ZeroBalanceDelta() BalanceDelta {
	return BalanceDelta{
		Amount0: big.NewInt(0),
		Amount1: big.NewInt(0),
	}
}

// Add combines two balance deltas.
func (bd BalanceDelta) Add(other BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Add(bd.Amount0, other.Amount0),
		Amount1: new(big.Int).Add(bd.Amount1, other.Amount1),
	}
}

// Negate inverts the balance delta signs.
func (bd BalanceDelta) Negate() BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Neg(bd.Amount0),
		Amount1: new(big.Int).Neg(bd.Amount1),
	}
}

// IsZero returns true if both amounts are zero.
func (bd BalanceDelta) IsZero() bool {
	return bd.Amount0.Sign() == 0 && bd.Amount1.Sign() == 0
}

// CheckRange rejects components whose magnitude exceeds 2^127 - 1.
func (bd BalanceDelta) CheckRange() error {
	if bd.Amount0.CmpAbs(maxBalanceDelta) > 0 || bd.Amount1.CmpAbs(maxBalanceDelta) > 0 {
		return ErrDeltaOverflow
	}
	return nil
}

// Position represents a liquidity position. The fee checkpoints are
// always assigned the freshly computed fee-growth-inside value for the
// position's range, never back-derived from owed fee amounts.
type Position struct {
	Liquidity                *big.Int
	FeeGrowthInside0LastX128 *big.Int
	FeeGrowthInside1LastX128 *big.Int
}

func newPosition() *Position {
	return &Position{
		Liquidity:                big.NewInt(0),
		FeeGrowthInside0LastX128: big.NewInt(0),
		FeeGrowthInside1LastX128: big.NewInt(0),
	}
}

func (p *Position) clone() *Position {
	return &Position{
		Liquidity:                new(big.Int).Set(p.Liquidity),
		FeeGrowthInside0LastX128: new(big.Int).Set(p.FeeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: new(big.Int).Set(p.FeeGrowthInside1LastX128),
	}
}

// positionKey computes the unique position identifier within a pool.
func positionKey(owner common.Address, tickLower, tickUpper int24, salt [32]byte) [32]byte {
	h := blake3.New()
	h.Write(owner.Bytes())

	var tickBytes [8]byte
	binary.BigEndian.PutUint32(tickBytes[:4], uint32(tickLower))
	binary.BigEndian.PutUint32(tickBytes[4:], uint32(tickUpper))
	h.Write(tickBytes[:])
	h.Write(salt[:])

	var key [32]byte
	h.Digest().Read(key[:])
	return key
}

// SwapParams contains parameters for a swap.
type SwapParams struct {
	ZeroForOne        bool     // true = swap currency0 for currency1
	AmountSpecified   *big.Int // Positive = exact input, negative = exact output
	SqrtPriceLimitX96 *big.Int // Price limit (sqrt(price) * 2^96)
}

// UpdatePositionParams contains parameters for changing a position's liquidity.
type UpdatePositionParams struct {
	TickLower      int24
	TickUpper      int24
	LiquidityDelta *big.Int // Positive = deposit, negative = withdraw
	Salt           [32]byte // Position salt for uniqueness
}

// PositionRange identifies a position for fee collection.
type PositionRange struct {
	TickLower int24
	TickUpper int24
	Salt      [32]byte
}

// Validation errors - rejected before any mutation.
var (
	ErrCurrencyNotSorted      = errors.New("currencies not sorted")
	ErrInvalidFee             = errors.New("invalid fee")
	ErrInvalidTickSpacing     = errors.New("invalid tick spacing")
	ErrInvalidTickRange       = errors.New("invalid tick range")
	ErrTickNotAligned         = errors.New("tick not aligned to spacing")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidPriceLimit      = errors.New("invalid price limit")
	ErrPoolNotInitialized     = errors.New("pool not initialized")
	ErrPoolAlreadyInitialized = errors.New("pool already initialized")
)

// Invariant-violation errors - abort the entire session.
var (
	ErrNonZeroDelta         = errors.New("non-zero balance delta after settlement")
	ErrDeltaOverflow        = errors.New("balance delta exceeds representable range")
	ErrLiquidityOverflow    = errors.New("liquidity exceeds representable range")
	ErrLiquidityUnderflow   = errors.New("liquidity underflow")
	ErrSavedBalanceNegative = errors.New("saved balance would go negative")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrNoLiquidity          = errors.New("no liquidity in pool")
)

// Arithmetic-domain errors - typed rejection, never a nonsense result.
var (
	ErrTickOutOfRange      = errors.New("tick out of range")
	ErrSqrtPriceOutOfRange = errors.New("sqrt price out of range")
)

// Session errors.
var (
	ErrSessionActive   = errors.New("session already active")
	ErrSessionFailed   = errors.New("session failed")
	ErrNoActiveSession = errors.New("no active session")
	ErrStaleSession    = errors.New("session is not the active session")
	ErrUnauthorized    = errors.New("unauthorized")
)
