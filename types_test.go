// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexcore

import (
	"errors"
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
)

func TestPoolKeyID_Deterministic(t *testing.T) {
	key := testPoolKey()
	if key.ID() != key.ID() {
		t.Fatal("pool id must be deterministic")
	}

	// Any field change yields a different id.
	variants := []PoolKey{
		{Currency0: key.Currency0, Currency1: key.Currency1, Fee: Fee005, TickSpacing: key.TickSpacing},
		{Currency0: key.Currency0, Currency1: key.Currency1, Fee: key.Fee, TickSpacing: 10},
		{Currency0: key.Currency0, Currency1: key.Currency1, Fee: key.Fee, TickSpacing: key.TickSpacing,
			Extension: testExtensionAddr},
	}
	for i, v := range variants {
		if v.ID() == key.ID() {
			t.Errorf("variant %d collides with the base key", i)
		}
	}
}

func TestPoolKeyValidate(t *testing.T) {
	valid := testPoolKey()
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}

	unsorted := PoolKey{
		Currency0:   valid.Currency1,
		Currency1:   valid.Currency0,
		Fee:         valid.Fee,
		TickSpacing: valid.TickSpacing,
	}
	if err := unsorted.Validate(); !errors.Is(err, ErrCurrencyNotSorted) {
		t.Errorf("expected ErrCurrencyNotSorted, got %v", err)
	}

	same := PoolKey{
		Currency0:   valid.Currency0,
		Currency1:   valid.Currency0,
		Fee:         valid.Fee,
		TickSpacing: valid.TickSpacing,
	}
	if err := same.Validate(); err == nil {
		t.Error("expected identical currencies to be rejected")
	}

	badSpacing := valid
	badSpacing.TickSpacing = 0
	if err := badSpacing.Validate(); !errors.Is(err, ErrInvalidTickSpacing) {
		t.Errorf("expected ErrInvalidTickSpacing, got %v", err)
	}

	badFee := valid
	badFee.Fee = feePipsDenominator
	if err := badFee.Validate(); !errors.Is(err, ErrInvalidFee) {
		t.Errorf("expected ErrInvalidFee, got %v", err)
	}
}

// The native currency sorts before every token address.
func TestCurrencyOrdering(t *testing.T) {
	token := Currency{Address: common.HexToAddress("0x0000000000000000000000000000000000000001")}

	if !currenciesSorted(NativeCurrency, token) {
		t.Error("native currency must sort first")
	}
	if currenciesSorted(token, NativeCurrency) {
		t.Error("token before native must be unsorted")
	}
	if currenciesSorted(token, token) {
		t.Error("equal currencies are not sorted")
	}
}

func TestBalanceDelta_CheckRange(t *testing.T) {
	ok := NewBalanceDelta(new(big.Int).Set(maxBalanceDelta), new(big.Int).Neg(maxBalanceDelta))
	if err := ok.CheckRange(); err != nil {
		t.Errorf("boundary delta rejected: %v", err)
	}

	over := NewBalanceDelta(new(big.Int).Add(maxBalanceDelta, big.NewInt(1)), big.NewInt(0))
	if err := over.CheckRange(); !errors.Is(err, ErrDeltaOverflow) {
		t.Errorf("expected ErrDeltaOverflow, got %v", err)
	}

	under := NewBalanceDelta(big.NewInt(0), new(big.Int).Sub(new(big.Int).Neg(maxBalanceDelta), big.NewInt(1)))
	if err := under.CheckRange(); !errors.Is(err, ErrDeltaOverflow) {
		t.Errorf("expected ErrDeltaOverflow for negative overflow, got %v", err)
	}
}

func TestBalanceDelta_Arithmetic(t *testing.T) {
	a := NewBalanceDelta(big.NewInt(10), big.NewInt(-5))
	b := NewBalanceDelta(big.NewInt(-10), big.NewInt(5))

	sum := a.Add(b)
	if !sum.IsZero() {
		t.Errorf("expected zero sum, got %v / %v", sum.Amount0, sum.Amount1)
	}

	neg := a.Negate()
	if neg.Amount0.Int64() != -10 || neg.Amount1.Int64() != 5 {
		t.Errorf("bad negation: %v / %v", neg.Amount0, neg.Amount1)
	}
}

func TestPositionKey_SaltSeparatesPositions(t *testing.T) {
	base := positionKey(testLP, -60, 60, [32]byte{})
	salted := positionKey(testLP, -60, 60, [32]byte{1})
	otherOwner := positionKey(testTrader, -60, 60, [32]byte{})
	otherRange := positionKey(testLP, -120, 60, [32]byte{})

	keys := map[[32]byte]bool{base: true, salted: true, otherOwner: true, otherRange: true}
	if len(keys) != 4 {
		t.Errorf("expected 4 distinct position keys, got %d", len(keys))
	}
}
