// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexcore

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func bigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big.Int literal: " + s)
	}
	return v
}

var (
	priceOne   = bigInt("79228162514264337593543950336") // sqrt(1) * 2^96
	oneEther   = bigInt("1000000000000000000")
	tenthEther = bigInt("100000000000000000")
)

func TestGetNextSqrtPriceFromInput(t *testing.T) {
	t.Run("zero amount is a no-op", func(t *testing.T) {
		next, err := getNextSqrtPriceFromInput(priceOne, oneEther, big.NewInt(0), true)
		require.NoError(t, err)
		require.Equal(t, priceOne, next)
	})

	t.Run("0.1 currency0 in moves price down", func(t *testing.T) {
		next, err := getNextSqrtPriceFromInput(priceOne, oneEther, tenthEther, true)
		require.NoError(t, err)
		require.Equal(t, "72025602285694852357767227579", next.String())
	})

	t.Run("0.1 currency1 in moves price up", func(t *testing.T) {
		next, err := getNextSqrtPriceFromInput(priceOne, oneEther, tenthEther, false)
		require.NoError(t, err)
		require.Equal(t, "87150978765690771352898345369", next.String())
	})

	t.Run("zero liquidity is rejected", func(t *testing.T) {
		_, err := getNextSqrtPriceFromInput(priceOne, big.NewInt(0), tenthEther, true)
		require.Error(t, err)
	})
}

func TestGetNextSqrtPriceFromOutput(t *testing.T) {
	t.Run("output exceeding reserves is rejected", func(t *testing.T) {
		// Asking for more currency0 out than the range holds.
		_, err := getNextSqrtPriceFromOutput(priceOne, big.NewInt(1), oneEther, false)
		require.ErrorIs(t, err, ErrNoLiquidity)
	})

	t.Run("0.1 currency1 out moves price down", func(t *testing.T) {
		next, err := getNextSqrtPriceFromOutput(priceOne, oneEther, tenthEther, true)
		require.NoError(t, err)
		require.Negative(t, next.Cmp(priceOne))
	})

	t.Run("0.1 currency0 out moves price up", func(t *testing.T) {
		next, err := getNextSqrtPriceFromOutput(priceOne, oneEther, tenthEther, false)
		require.NoError(t, err)
		require.Positive(t, next.Cmp(priceOne))
	})
}

func TestGetAmount0Delta(t *testing.T) {
	priceUpper := bigInt("87150978765690771352898345369") // sqrt(1.21) * 2^96

	t.Run("zero liquidity", func(t *testing.T) {
		got := getAmount0Delta(priceOne, priceUpper, big.NewInt(0), true)
		require.Zero(t, got.Sign())
	})

	t.Run("price 1 to 1.21", func(t *testing.T) {
		up := getAmount0Delta(priceOne, priceUpper, oneEther, true)
		require.Equal(t, "90909090909090910", up.String())

		down := getAmount0Delta(priceOne, priceUpper, oneEther, false)
		require.Equal(t, "90909090909090909", down.String())
	})

	t.Run("argument order does not matter", func(t *testing.T) {
		a := getAmount0Delta(priceOne, priceUpper, oneEther, true)
		b := getAmount0Delta(priceUpper, priceOne, oneEther, true)
		require.Equal(t, a, b)
	})
}

func TestGetAmount1Delta(t *testing.T) {
	priceUpper := bigInt("87150978765690771352898345369")

	t.Run("price 1 to 1.21", func(t *testing.T) {
		up := getAmount1Delta(priceOne, priceUpper, oneEther, true)
		require.Equal(t, "100000000000000000", up.String())

		down := getAmount1Delta(priceOne, priceUpper, oneEther, false)
		require.Equal(t, "99999999999999999", down.String())
	})
}

func TestMulDivRounding(t *testing.T) {
	require.Equal(t, int64(3), mulDiv(big.NewInt(7), big.NewInt(1), big.NewInt(2)).Int64())
	require.Equal(t, int64(4), mulDivRoundingUp(big.NewInt(7), big.NewInt(1), big.NewInt(2)).Int64())
	require.Equal(t, int64(3), mulDivRoundingUp(big.NewInt(6), big.NewInt(1), big.NewInt(2)).Int64())
	require.Equal(t, int64(5), divRoundingUp(big.NewInt(9), big.NewInt(2)).Int64())
}
