// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexcore

import (
	"math/big"
)

// swapStep is the result of moving the price within a single tick range:
// the price actually reached, the input consumed (fee excluded), the
// output produced, and the fee taken on the input leg.
type swapStep struct {
	sqrtRatioNextX96 *big.Int
	amountIn         *big.Int
	amountOut        *big.Int
	feeAmount        *big.Int
}

// computeSwapStep computes one state-machine step of the swap executor:
// the maximum transferable amount between the current price and the
// target (the nearer of the next initialized boundary and the price
// limit), with the fee applied to the input leg.
//
// amountRemaining >= 0 means exact input (fee comes out of the amount),
// amountRemaining < 0 means exact output.
func computeSwapStep(
	sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining *big.Int,
	feePips uint24,
) (swapStep, error) {
	zeroForOne := sqrtRatioCurrentX96.Cmp(sqrtRatioTargetX96) >= 0
	exactIn := amountRemaining.Sign() >= 0

	var step swapStep
	feeDenom := big.NewInt(feePipsDenominator)
	feeRate := big.NewInt(int64(feePips))
	oneMinusFee := new(big.Int).Sub(feeDenom, feeRate)

	if exactIn {
		amountRemainingLessFee := mulDiv(amountRemaining, oneMinusFee, feeDenom)

		if zeroForOne {
			step.amountIn = getAmount0Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
		} else {
			step.amountIn = getAmount1Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}

		if amountRemainingLessFee.Cmp(step.amountIn) >= 0 {
			step.sqrtRatioNextX96 = new(big.Int).Set(sqrtRatioTargetX96)
		} else {
			next, err := getNextSqrtPriceFromInput(sqrtRatioCurrentX96, liquidity, amountRemainingLessFee, zeroForOne)
			if err != nil {
				return swapStep{}, err
			}
			step.sqrtRatioNextX96 = next
		}
	} else {
		amountRemainingAbs := new(big.Int).Neg(amountRemaining)

		if zeroForOne {
			step.amountOut = getAmount1Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			step.amountOut = getAmount0Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
		}

		if amountRemainingAbs.Cmp(step.amountOut) >= 0 {
			step.sqrtRatioNextX96 = new(big.Int).Set(sqrtRatioTargetX96)
		} else {
			next, err := getNextSqrtPriceFromOutput(sqrtRatioCurrentX96, liquidity, amountRemainingAbs, zeroForOne)
			if err != nil {
				return swapStep{}, err
			}
			step.sqrtRatioNextX96 = next
		}
	}

	reachedTarget := sqrtRatioTargetX96.Cmp(step.sqrtRatioNextX96) == 0

	// Recompute amounts from the price actually reached. Input rounds up
	// (owed to the pool), output rounds down (owed to the user).
	if zeroForOne {
		if !(reachedTarget && exactIn) {
			step.amountIn = getAmount0Delta(step.sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, true)
		}
		if !(reachedTarget && !exactIn) {
			step.amountOut = getAmount1Delta(step.sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, false)
		}
	} else {
		if !(reachedTarget && exactIn) {
			step.amountIn = getAmount1Delta(sqrtRatioCurrentX96, step.sqrtRatioNextX96, liquidity, true)
		}
		if !(reachedTarget && !exactIn) {
			step.amountOut = getAmount0Delta(sqrtRatioCurrentX96, step.sqrtRatioNextX96, liquidity, false)
		}
	}

	// An exact-output swap never delivers more than requested.
	if !exactIn {
		amountRemainingAbs := new(big.Int).Neg(amountRemaining)
		if step.amountOut.Cmp(amountRemainingAbs) > 0 {
			step.amountOut = amountRemainingAbs
		}
	}

	if exactIn && !reachedTarget {
		// The whole remainder was consumed; whatever is not principal is fee.
		step.feeAmount = new(big.Int).Sub(amountRemaining, step.amountIn)
	} else {
		step.feeAmount = mulDivRoundingUp(step.amountIn, feeRate, oneMinusFee)
	}

	return step, nil
}
