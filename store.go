// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexcore

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Store is the process-wide shared state: every pool, every position and
// the token balance book live here. All mutation happens synchronously
// inside the current session; a snapshot taken at session open is the
// rollback point when the session aborts.
type Store struct {
	pools    map[PoolId]*Pool
	balances map[balanceKey]*uint256.Int
}

type balanceKey struct {
	owner    common.Address
	currency Currency
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		pools:    make(map[PoolId]*Pool),
		balances: make(map[balanceKey]*uint256.Int),
	}
}

// pool returns the pool for an id, creating an uninitialized one lazily.
func (s *Store) pool(id PoolId) *Pool {
	p, ok := s.pools[id]
	if !ok {
		p = NewPool()
		s.pools[id] = p
	}
	return p
}

// BalanceOf returns the balance held by owner in the given currency.
func (s *Store) BalanceOf(owner common.Address, currency Currency) *uint256.Int {
	bal, ok := s.balances[balanceKey{owner, currency}]
	if !ok {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(bal)
}

// Credit mints balance to an account. World setup for tests and
// collaborators that bridge external funds into the store.
func (s *Store) Credit(owner common.Address, currency Currency, amount *uint256.Int) {
	key := balanceKey{owner, currency}
	bal, ok := s.balances[key]
	if !ok {
		bal = uint256.NewInt(0)
		s.balances[key] = bal
	}
	bal.Add(bal, amount)
}

// transfer moves balance between accounts, failing without effect when
// the sender's funds are short.
func (s *Store) transfer(from, to common.Address, currency Currency, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	fromKey := balanceKey{from, currency}
	fromBal, ok := s.balances[fromKey]
	if !ok || fromBal.Lt(amount) {
		return ErrInsufficientBalance
	}
	fromBal.Sub(fromBal, amount)

	toKey := balanceKey{to, currency}
	toBal, ok := s.balances[toKey]
	if !ok {
		toBal = uint256.NewInt(0)
		s.balances[toKey] = toBal
	}
	toBal.Add(toBal, amount)
	return nil
}

// storeSnapshot is a deep copy of the store taken at session open.
type storeSnapshot struct {
	pools    map[PoolId]*Pool
	balances map[balanceKey]*uint256.Int
}

func (s *Store) snapshot() *storeSnapshot {
	snap := &storeSnapshot{
		pools:    make(map[PoolId]*Pool, len(s.pools)),
		balances: make(map[balanceKey]*uint256.Int, len(s.balances)),
	}
	for id, p := range s.pools {
		snap.pools[id] = p.clone()
	}
	for key, bal := range s.balances {
		snap.balances[key] = new(uint256.Int).Set(bal)
	}
	return snap
}

func (s *Store) restore(snap *storeSnapshot) {
	s.pools = snap.pools
	s.balances = snap.balances
}
