// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexcore

import (
	"math/big"
)

// Rounding contract for every multiply-then-divide in this file: round up
// when the result is owed to the pool, round down when it is owed to a
// user. Rounding can then never make the pool insolvent.

var bigOne = big.NewInt(1)

// mulDiv returns floor(a * b / denominator).
func mulDiv(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Div(product, denominator)
}

// mulDivRoundingUp returns ceil(a * b / denominator).
func mulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	quotient, rem := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if rem.Sign() != 0 {
		quotient.Add(quotient, bigOne)
	}
	return quotient
}

// divRoundingUp returns ceil(a / denominator).
func divRoundingUp(a, denominator *big.Int) *big.Int {
	quotient, rem := new(big.Int).QuoRem(a, denominator, new(big.Int))
	if rem.Sign() != 0 {
		quotient.Add(quotient, bigOne)
	}
	return quotient
}

// getAmount0Delta returns the currency0 amount covering the price range
// [sqrtRatioA, sqrtRatioB] at the given liquidity:
//
//	amount0 = L * 2^96 * (sqrtB - sqrtA) / (sqrtB * sqrtA)
func getAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		return divRoundingUp(mulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96), sqrtRatioAX96)
	}
	inner := mulDiv(numerator1, numerator2, sqrtRatioBX96)
	return inner.Div(inner, sqrtRatioAX96)
}

// getAmount1Delta returns the currency1 amount covering the price range
// [sqrtRatioA, sqrtRatioB] at the given liquidity:
//
//	amount1 = L * (sqrtB - sqrtA) / 2^96
func getAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	diff := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return mulDivRoundingUp(liquidity, diff, Q96)
	}
	return mulDiv(liquidity, diff, Q96)
}

// getNextSqrtPriceFromInput returns the price after consuming amountIn of
// the input currency, rounding so the pool never gives out too much.
func getNextSqrtPriceFromInput(sqrtPriceX96, liquidity, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPriceX96.Sign() <= 0 || liquidity.Sign() <= 0 {
		return nil, ErrSqrtPriceOutOfRange
	}
	if zeroForOne {
		return getNextSqrtPriceFromAmount0RoundingUp(sqrtPriceX96, liquidity, amountIn, true), nil
	}
	return getNextSqrtPriceFromAmount1RoundingDown(sqrtPriceX96, liquidity, amountIn, true), nil
}

// getNextSqrtPriceFromOutput returns the price after delivering amountOut
// of the output currency.
func getNextSqrtPriceFromOutput(sqrtPriceX96, liquidity, amountOut *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPriceX96.Sign() <= 0 || liquidity.Sign() <= 0 {
		return nil, ErrSqrtPriceOutOfRange
	}
	if zeroForOne {
		next := getNextSqrtPriceFromAmount1RoundingDown(sqrtPriceX96, liquidity, amountOut, false)
		if next.Sign() <= 0 {
			return nil, ErrNoLiquidity
		}
		return next, nil
	}
	next, err := getNextSqrtPriceFromAmount0RoundingUpSub(sqrtPriceX96, liquidity, amountOut)
	if err != nil {
		return nil, err
	}
	return next, nil
}

// getNextSqrtPriceFromAmount0RoundingUp computes the price move caused by
// adding (add=true) amount of currency0:
//
//	next = L * 2^96 * sqrt(P) / (L * 2^96 + amount * sqrt(P))
//
// rounded up so the computed input never undershoots what the pool is owed.
func getNextSqrtPriceFromAmount0RoundingUp(sqrtPriceX96, liquidity, amount *big.Int, add bool) *big.Int {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtPriceX96)
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)

	if add {
		denominator := new(big.Int).Mul(amount, sqrtPriceX96)
		denominator.Add(denominator, numerator1)
		return mulDivRoundingUp(numerator1, sqrtPriceX96, denominator)
	}

	denominator := new(big.Int).Sub(numerator1, new(big.Int).Mul(amount, sqrtPriceX96))
	return mulDivRoundingUp(numerator1, sqrtPriceX96, denominator)
}

// getNextSqrtPriceFromAmount0RoundingUpSub is the exact-output variant of
// the currency0 move; the denominator must stay positive or the requested
// output exceeds what the range can supply.
func getNextSqrtPriceFromAmount0RoundingUpSub(sqrtPriceX96, liquidity, amount *big.Int) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtPriceX96), nil
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	product := new(big.Int).Mul(amount, sqrtPriceX96)
	denominator := new(big.Int).Sub(numerator1, product)
	if denominator.Sign() <= 0 {
		return nil, ErrNoLiquidity
	}
	return mulDivRoundingUp(numerator1, sqrtPriceX96, denominator), nil
}

// getNextSqrtPriceFromAmount1RoundingDown computes the price move caused
// by adding (add=true) or removing amount of currency1:
//
//	next = sqrt(P) +/- amount * 2^96 / L
//
// rounded down so the computed output never overshoots what users are owed.
func getNextSqrtPriceFromAmount1RoundingDown(sqrtPriceX96, liquidity, amount *big.Int, add bool) *big.Int {
	if add {
		quotient := mulDiv(amount, Q96, liquidity)
		return quotient.Add(quotient, sqrtPriceX96)
	}
	quotient := mulDivRoundingUp(amount, Q96, liquidity)
	return new(big.Int).Sub(sqrtPriceX96, quotient)
}
