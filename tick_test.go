// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexcore

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTickBitmap_FlipAndFind(t *testing.T) {
	tb := newTickBitmap()
	spacing := int24(60)

	tb.flipTick(60, spacing)
	tb.flipTick(600, spacing)
	tb.flipTick(-120, spacing)

	t.Run("search up finds the next initialized tick", func(t *testing.T) {
		next, initialized := tb.nextInitializedTickWithinOneWord(0, spacing, false)
		require.True(t, initialized)
		require.Equal(t, int24(60), next)

		next, initialized = tb.nextInitializedTickWithinOneWord(60, spacing, false)
		require.True(t, initialized)
		require.Equal(t, int24(600), next)
	})

	t.Run("search down is inclusive of the current tick", func(t *testing.T) {
		next, initialized := tb.nextInitializedTickWithinOneWord(60, spacing, true)
		require.True(t, initialized)
		require.Equal(t, int24(60), next)

		// Word 0 holds nothing at or below tick 0; the search stops at
		// the word boundary without crossing into the next word.
		next, initialized = tb.nextInitializedTickWithinOneWord(59, spacing, true)
		require.False(t, initialized)
		require.Equal(t, int24(0), next)

		// From inside word -1 the -120 tick is visible.
		next, initialized = tb.nextInitializedTickWithinOneWord(-1, spacing, true)
		require.True(t, initialized)
		require.Equal(t, int24(-120), next)
	})

	t.Run("double flip clears the bit", func(t *testing.T) {
		tb.flipTick(600, spacing)
		_, initialized := tb.nextInitializedTickWithinOneWord(60, spacing, false)
		require.False(t, initialized)
		tb.flipTick(600, spacing)
	})

	t.Run("empty word returns the word boundary", func(t *testing.T) {
		next, initialized := tb.nextInitializedTickWithinOneWord(100000, spacing, false)
		require.False(t, initialized)
		require.Greater(t, next, int24(100000))
	})
}

func TestTickBitmap_NegativeTicks(t *testing.T) {
	tb := newTickBitmap()
	spacing := int24(10)

	tb.flipTick(-200, spacing)

	next, initialized := tb.nextInitializedTickWithinOneWord(-150, spacing, true)
	require.True(t, initialized)
	require.Equal(t, int24(-200), next)

	next, initialized = tb.nextInitializedTickWithinOneWord(-300, spacing, false)
	require.True(t, initialized)
	require.Equal(t, int24(-200), next)
}

func TestTickTable_UpdateFlips(t *testing.T) {
	tt := newTickTable()
	zero := big.NewInt(0)
	hundred := big.NewInt(100)

	flipped, err := tt.update(60, 0, hundred, zero, zero, false)
	require.NoError(t, err)
	require.True(t, flipped, "first liquidity initializes the tick")

	flipped, err = tt.update(60, 0, hundred, zero, zero, false)
	require.NoError(t, err)
	require.False(t, flipped, "additional liquidity does not flip")

	flipped, err = tt.update(60, 0, big.NewInt(-200), zero, zero, false)
	require.NoError(t, err)
	require.True(t, flipped, "removing all liquidity flips back")

	_, err = tt.update(60, 0, big.NewInt(-1), zero, zero, false)
	require.ErrorIs(t, err, ErrLiquidityUnderflow)
}

func TestTickTable_NetLiquiditySigns(t *testing.T) {
	tt := newTickTable()
	zero := big.NewInt(0)
	amount := big.NewInt(500)

	_, err := tt.update(-60, 0, amount, zero, zero, false)
	require.NoError(t, err)
	_, err = tt.update(60, 0, amount, zero, zero, true)
	require.NoError(t, err)

	require.Equal(t, int64(500), tt.get(-60).liquidityNet.Int64())
	require.Equal(t, int64(-500), tt.get(60).liquidityNet.Int64())
}

func TestTickTable_OutsideInheritance(t *testing.T) {
	tt := newTickTable()
	growth := big.NewInt(1000)

	// Initializing at or below the current tick inherits global growth.
	_, err := tt.update(-60, 0, big.NewInt(1), growth, growth, false)
	require.NoError(t, err)
	require.Equal(t, growth, tt.get(-60).feeGrowthOutside0X128)

	// Above the current tick it starts at zero.
	_, err = tt.update(60, 0, big.NewInt(1), growth, growth, true)
	require.NoError(t, err)
	require.Zero(t, tt.get(60).feeGrowthOutside0X128.Sign())
}

func TestTickTable_FeeGrowthInside(t *testing.T) {
	tt := newTickTable()
	zero := big.NewInt(0)
	global := big.NewInt(5000)

	_, err := tt.update(-60, 0, big.NewInt(1), zero, zero, false)
	require.NoError(t, err)
	_, err = tt.update(60, 0, big.NewInt(1), zero, zero, true)
	require.NoError(t, err)

	// Current tick inside the range, no outside growth recorded: all
	// growth counts as inside.
	inside0, inside1 := tt.feeGrowthInside(-60, 60, 0, global, global)
	require.Equal(t, global, inside0)
	require.Equal(t, global, inside1)

	// Current tick below the range: nothing accrued inside.
	inside0, _ = tt.feeGrowthInside(-60, 60, -100, global, global)
	require.Zero(t, inside0.Sign())
	_ = inside1
}

func TestModular256Arithmetic(t *testing.T) {
	// Checkpoint subtraction wraps instead of going negative.
	d := subU256(big.NewInt(1), big.NewInt(2))
	want := new(big.Int).Sub(twoPow256, big.NewInt(1))
	require.Equal(t, want, d)

	s := addU256(want, big.NewInt(2))
	require.Equal(t, int64(1), s.Int64())
}
