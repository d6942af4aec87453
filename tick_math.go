// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexcore

import (
	"fmt"
	"math/big"
)

// Tick and sqrt price domain. Adjacent ticks differ by a factor of
// sqrt(1.0001); the sqrt price is a Q64.96 fixed-point value. The domain
// is inclusive at both ends: MaxSqrtRatio is the sqrt price of MaxTick
// and must convert back to MaxTick.
var (
	MinTick int24 = -887272
	MaxTick int24 = 887272

	MinSqrtRatio    = new(big.Int).SetUint64(4295128739)
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)

	// MaxLiquidity bounds pool and per-tick liquidity to an unsigned
	// 128-bit value.
	MaxLiquidity = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// sqrtRatioMagic[i] is sqrt(1.0001^-(2^i)) in Q128, the multiplicative
// ladder for assembling sqrt(1.0001^-|tick|) one bit at a time.
var sqrtRatioMagic = func() []*big.Int {
	hexes := []string{
		"fffcb933bd6fad37aa2d162d1a594001",
		"fff97272373d413259a46990580e213a",
		"fff2e50f5f656932ef12357cf3c7fdcc",
		"ffe5caca7e10e4e61c3624eaa0941cd0",
		"ffcb9843d60f6159c9db58835c926644",
		"ff973b41fa98c081472e6896dfb254c0",
		"ff2ea16466c96a3843ec78b326b52861",
		"fe5dee046a99a2a811c461f1969c3053",
		"fcbe86c7900a88aedcffc83b479aa3a4",
		"f987a7253ac413176f2b074cf7815e54",
		"f3392b0822b70005940c7a398e4b70f3",
		"e7159475a2c29b7443b29c7fa6e889d9",
		"d097f3bdfd2022b8845ad8f792aa5825",
		"a9f746462d870fdf8a65dc1f90e061e5",
		"70d869a156d2a1b890bb3df62baf32f7",
		"31be135f97d08fd981231505542fcfa6",
		"9aa508b5b7a84e1c677de54f3e99bc9",
		"5d6af8dedb81196699c329225ee604",
		"2216e584f5fa1ea926041bedfe98",
		"48a170391f7dc42444e8fa2",
	}
	magics := make([]*big.Int, len(hexes))
	for i, hx := range hexes {
		m, ok := new(big.Int).SetString(hx, 16)
		if !ok {
			panic("dexcore: bad sqrt ratio constant " + hx)
		}
		magics[i] = m
	}
	return magics
}()

var (
	maxUint256     = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	twoPow256      = new(big.Int).Lsh(big.NewInt(1), 256)
	logSqrt10001   = mustBig("255738958999603826347141", 10)
	tickLowError   = mustBig("3402992956809132418596140100660247210", 10)
	tickHiError    = mustBig("291339464771989622907027621153398088495", 10)
	oneShift32Mask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 32), big.NewInt(1))
)

func mustBig(s string, base int) *big.Int {
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		panic("dexcore: bad constant " + s)
	}
	return v
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96 as a Q64.96 value.
// Ticks whose magnitude exceeds MaxTick are rejected.
func SqrtRatioAtTick(tick int24) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}

	absTick := int64(tick)
	if absTick < 0 {
		absTick = -absTick
	}

	ratio := new(big.Int).Lsh(big.NewInt(1), 128)
	if absTick&1 != 0 {
		ratio.Set(sqrtRatioMagic[0])
	}
	for bit := 1; bit < len(sqrtRatioMagic); bit++ {
		if absTick&(1<<bit) != 0 {
			ratio.Mul(ratio, sqrtRatioMagic[bit])
			ratio.Rsh(ratio, 128)
		}
	}

	// The ladder computes the ratio for -|tick|; invert for positive ticks.
	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Q128 -> Q96, rounding up so the result round-trips through
	// TickAtSqrtRatio.
	result := new(big.Int).Rsh(ratio, 32)
	if new(big.Int).And(ratio, oneShift32Mask).Sign() != 0 {
		result.Add(result, big.NewInt(1))
	}
	return result, nil
}

// TickAtSqrtRatio returns the largest tick whose sqrt ratio does not
// exceed the input. The inverse is approximate: a fixed-iteration base-2
// logarithm yields a low and a high candidate from a bounded symmetric
// error term, and a one-sided consistency check picks between them. Both
// candidates are clamped to the valid tick domain before the check runs,
// so the maximum sqrt ratio resolves to MaxTick instead of failing.
func TickAtSqrtRatio(sqrtPriceX96 *big.Int) (int24, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) > 0 {
		return 0, fmt.Errorf("%w: %v", ErrSqrtPriceOutOfRange, sqrtPriceX96)
	}

	ratio := new(big.Int).Lsh(sqrtPriceX96, 32)

	msb := ratio.BitLen() - 1

	// Normalize into [2^127, 2^128) for the squaring iteration.
	r := new(big.Int)
	if msb >= 128 {
		r.Rsh(ratio, uint(msb-127))
	} else {
		r.Lsh(ratio, uint(127-msb))
	}

	// log_2(ratio) in signed Q64.64, integer part first.
	log2 := new(big.Int).Lsh(big.NewInt(int64(msb)-128), 64)

	for i := 0; i < 14; i++ {
		r.Mul(r, r)
		r.Rsh(r, 127)
		f := new(big.Int).Rsh(r, 128)
		if f.Sign() != 0 {
			log2.Or(log2, new(big.Int).Lsh(f, uint(63-i)))
			r.Rsh(r, 1)
		}
	}

	logSqrt := new(big.Int).Mul(log2, logSqrt10001)

	tickLow := new(big.Int).Sub(logSqrt, tickLowError)
	tickLow.Rsh(tickLow, 128)
	tickHi := new(big.Int).Add(logSqrt, tickHiError)
	tickHi.Rsh(tickHi, 128)

	lo := clampTick(tickLow)
	hi := clampTick(tickHi)

	if lo == hi {
		return lo, nil
	}

	// One-sided consistency check: accept the high candidate only if its
	// sqrt ratio does not overshoot the input. hi is already in-domain.
	ratioHi, err := SqrtRatioAtTick(hi)
	if err != nil {
		return 0, err
	}
	if ratioHi.Cmp(sqrtPriceX96) <= 0 {
		return hi, nil
	}
	return lo, nil
}

func clampTick(t *big.Int) int24 {
	if !t.IsInt64() {
		if t.Sign() < 0 {
			return MinTick
		}
		return MaxTick
	}
	v := t.Int64()
	if v < int64(MinTick) {
		return MinTick
	}
	if v > int64(MaxTick) {
		return MaxTick
	}
	return int24(v)
}

// minUsableTick returns the lowest tick aligned to the given spacing.
func minUsableTick(tickSpacing int24) int24 {
	return (MinTick / tickSpacing) * tickSpacing
}

// maxUsableTick returns the highest tick aligned to the given spacing.
func maxUsableTick(tickSpacing int24) int24 {
	return (MaxTick / tickSpacing) * tickSpacing
}
