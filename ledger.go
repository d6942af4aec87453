// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexcore

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"
)

// EngineAddress is the account holding pooled funds inside the balance
// book.
var EngineAddress = common.HexToAddress("0x0000000000000000000000000000000000009010")

// Session is the deferred-settlement context of one locked call. Every
// balance-changing operation posts signed per-currency deltas here
// (positive = caller owes the protocol); all of them must be exactly zero
// when the session closes or every state change is discarded.
//
// The acting identity is a stack: Forward pushes the target extension so
// it settles as itself while the sessionId stays unchanged.
type Session struct {
	id uint64
	pm *PoolManager

	actors []common.Address

	deltas  map[Currency]*big.Int
	nonzero int // count of currencies with nonzero debt

	failed error // first pool-mutation error; blocks commit once set
}

// ID returns the session identifier.
func (s *Session) ID() uint64 {
	return s.id
}

// Actor returns the current acting identity for settlement purposes.
func (s *Session) Actor() common.Address {
	return s.actors[len(s.actors)-1]
}

// Delta returns the current signed debt for a currency.
func (s *Session) Delta(currency Currency) *big.Int {
	d, ok := s.deltas[currency]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(d)
}

// fail latches the first error returned by a pool-mutating operation.
// A failed session can no longer commit: an operation that errors out
// partway may have touched pool state, and only the snapshot restore at
// close can undo it.
func (s *Session) fail(err error) {
	if s.failed == nil {
		s.failed = err
	}
}

// applyDelta adjusts a currency's debt counter, maintaining the running
// count of nonzero entries so the close check is proportional to the
// number of distinct unsettled currencies.
func (s *Session) applyDelta(currency Currency, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	d, ok := s.deltas[currency]
	if !ok {
		d = big.NewInt(0)
		s.deltas[currency] = d
	}
	wasZero := d.Sign() == 0
	d.Add(d, amount)
	isZero := d.Sign() == 0
	switch {
	case wasZero && !isZero:
		s.nonzero++
	case !wasZero && isZero:
		s.nonzero--
	}
}

// applyBalanceDelta posts both components of a pool operation's delta.
func (s *Session) applyBalanceDelta(key PoolKey, delta BalanceDelta) {
	s.applyDelta(key.Currency0, delta.Amount0)
	s.applyDelta(key.Currency1, delta.Amount1)
}

// settled reports whether every currency's debt is exactly zero.
func (s *Session) settled() bool {
	return s.nonzero == 0
}

// Pay settles debt by transferring amount of currency from the acting
// identity into the engine. The debt reduction is the amount actually
// received, measured by balance difference, never the claimed amount.
func (s *Session) Pay(currency Currency, amount *uint256.Int) error {
	return s.payFrom(s.Actor(), currency, amount)
}

// PayFrom settles debt with funds taken from a third-party payer.
func (s *Session) PayFrom(payer common.Address, currency Currency, amount *uint256.Int) error {
	return s.payFrom(payer, currency, amount)
}

func (s *Session) payFrom(payer common.Address, currency Currency, amount *uint256.Int) error {
	s.pm.mu.Lock()
	defer s.pm.mu.Unlock()

	if err := s.pm.checkSession(s); err != nil {
		return err
	}
	store := s.pm.store
	before := store.BalanceOf(EngineAddress, currency)
	if err := store.transfer(payer, EngineAddress, currency, amount); err != nil {
		return err
	}
	after := store.BalanceOf(EngineAddress, currency)

	received := new(uint256.Int).Sub(after, before)
	credit := new(big.Int).Neg(received.ToBig())
	s.applyDelta(currency, credit)

	s.pm.logger.Debug("session pay",
		zap.Uint64("session", s.id),
		zap.Stringer("payer", payer),
		zap.Stringer("currency", currency.Address),
		zap.String("received", received.Dec()),
	)
	return nil
}

// Withdraw transfers amount of currency from the engine to the recipient.
// Debt increases only after the transfer succeeds.
func (s *Session) Withdraw(currency Currency, recipient common.Address, amount *uint256.Int) error {
	s.pm.mu.Lock()
	defer s.pm.mu.Unlock()

	if err := s.pm.checkSession(s); err != nil {
		return err
	}
	if err := s.pm.store.transfer(EngineAddress, recipient, currency, amount); err != nil {
		return err
	}
	s.applyDelta(currency, amount.ToBig())

	s.pm.logger.Debug("session withdraw",
		zap.Uint64("session", s.id),
		zap.Stringer("recipient", recipient),
		zap.Stringer("currency", currency.Address),
		zap.String("amount", amount.Dec()),
	)
	return nil
}

// Forward rebinds the acting identity to a registered extension for the
// duration of its HandleForward call, preserving the sessionId. The
// extension can re-enter the executor and settle as itself; the prior
// identity is restored on return.
func (s *Session) Forward(target common.Address, payload any) (any, error) {
	s.pm.mu.Lock()
	if err := s.pm.checkSession(s); err != nil {
		s.pm.mu.Unlock()
		return nil, err
	}
	reg, ok := s.pm.extensions[target]
	s.pm.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExtensionNotRegistered, target.Hex())
	}

	s.actors = append(s.actors, target)
	defer func() {
		s.actors = s.actors[:len(s.actors)-1]
	}()

	return reg.ext.HandleForward(s, payload)
}
