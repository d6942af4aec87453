// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexcore

import (
	"math/big"
	"math/bits"
)

// tickInfo holds the state of an initialized tick boundary.
type tickInfo struct {
	// liquidityGross is the total liquidity of all positions referencing
	// this tick; it controls bitmap initialization.
	liquidityGross *big.Int

	// liquidityNet is the signed liquidity delta applied when the price
	// crosses this tick moving left to right.
	liquidityNet *big.Int

	// Fee growth on the other side of this tick relative to the current
	// tick, per unit liquidity (Q128). Only meaningful relative to a
	// single direction of crossing; flipped each time the tick crosses.
	feeGrowthOutside0X128 *big.Int
	feeGrowthOutside1X128 *big.Int
}

func newTickInfo() *tickInfo {
	return &tickInfo{
		liquidityGross:        big.NewInt(0),
		liquidityNet:          big.NewInt(0),
		feeGrowthOutside0X128: big.NewInt(0),
		feeGrowthOutside1X128: big.NewInt(0),
	}
}

func (ti *tickInfo) clone() *tickInfo {
	return &tickInfo{
		liquidityGross:        new(big.Int).Set(ti.liquidityGross),
		liquidityNet:          new(big.Int).Set(ti.liquidityNet),
		feeGrowthOutside0X128: new(big.Int).Set(ti.feeGrowthOutside0X128),
		feeGrowthOutside1X128: new(big.Int).Set(ti.feeGrowthOutside1X128),
	}
}

// tickTable manages the per-pool tick boundary states.
type tickTable struct {
	ticks map[int24]*tickInfo
}

func newTickTable() *tickTable {
	return &tickTable{ticks: make(map[int24]*tickInfo)}
}

func (tt *tickTable) clone() *tickTable {
	c := newTickTable()
	for tick, info := range tt.ticks {
		c.ticks[tick] = info.clone()
	}
	return c
}

func (tt *tickTable) get(tick int24) *tickInfo {
	info, ok := tt.ticks[tick]
	if !ok {
		info = newTickInfo()
		tt.ticks[tick] = info
	}
	return info
}

// checkUpdate reports whether a liquidity delta would keep the tick's
// gross liquidity in bounds, without touching the table.
func (tt *tickTable) checkUpdate(tick int24, liquidityDelta *big.Int) error {
	gross := big.NewInt(0)
	if info, ok := tt.ticks[tick]; ok {
		gross = info.liquidityGross
	}
	after := new(big.Int).Add(gross, liquidityDelta)
	if after.Sign() < 0 {
		return ErrLiquidityUnderflow
	}
	if after.Cmp(MaxLiquidity) > 0 {
		return ErrLiquidityOverflow
	}
	return nil
}

// update applies a liquidity delta to a tick boundary and reports whether
// the tick flipped between initialized and uninitialized. A tick
// initializing at or below the current tick inherits the global fee
// growth as its outside value.
func (tt *tickTable) update(
	tick, currentTick int24,
	liquidityDelta *big.Int,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *big.Int,
	upper bool,
) (bool, error) {
	info := tt.get(tick)

	grossBefore := new(big.Int).Set(info.liquidityGross)
	grossAfter := new(big.Int).Add(grossBefore, liquidityDelta)
	if grossAfter.Sign() < 0 {
		return false, ErrLiquidityUnderflow
	}
	if grossAfter.Cmp(MaxLiquidity) > 0 {
		return false, ErrLiquidityOverflow
	}

	flipped := (grossAfter.Sign() == 0) != (grossBefore.Sign() == 0)

	if grossBefore.Sign() == 0 && tick <= currentTick {
		info.feeGrowthOutside0X128.Set(feeGrowthGlobal0X128)
		info.feeGrowthOutside1X128.Set(feeGrowthGlobal1X128)
	}

	info.liquidityGross = grossAfter
	if upper {
		info.liquidityNet.Sub(info.liquidityNet, liquidityDelta)
	} else {
		info.liquidityNet.Add(info.liquidityNet, liquidityDelta)
	}
	return flipped, nil
}

// clear removes a tick whose gross liquidity dropped to zero.
func (tt *tickTable) clear(tick int24) {
	delete(tt.ticks, tick)
}

// cross flips the tick's outside fee accumulators and returns the signed
// net-liquidity delta to apply in the left-to-right direction.
func (tt *tickTable) cross(tick int24, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *big.Int) *big.Int {
	info := tt.get(tick)
	info.feeGrowthOutside0X128 = subU256(feeGrowthGlobal0X128, info.feeGrowthOutside0X128)
	info.feeGrowthOutside1X128 = subU256(feeGrowthGlobal1X128, info.feeGrowthOutside1X128)
	return new(big.Int).Set(info.liquidityNet)
}

// feeGrowthInside computes the fee growth per unit liquidity inside the
// range [tickLower, tickUpper) from the global accumulator and the two
// boundary outside values.
func (tt *tickTable) feeGrowthInside(
	tickLower, tickUpper, currentTick int24,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *big.Int,
) (*big.Int, *big.Int) {
	lower := tt.get(tickLower)
	upper := tt.get(tickUpper)

	var below0, below1 *big.Int
	if currentTick >= tickLower {
		below0 = new(big.Int).Set(lower.feeGrowthOutside0X128)
		below1 = new(big.Int).Set(lower.feeGrowthOutside1X128)
	} else {
		below0 = subU256(feeGrowthGlobal0X128, lower.feeGrowthOutside0X128)
		below1 = subU256(feeGrowthGlobal1X128, lower.feeGrowthOutside1X128)
	}

	var above0, above1 *big.Int
	if currentTick < tickUpper {
		above0 = new(big.Int).Set(upper.feeGrowthOutside0X128)
		above1 = new(big.Int).Set(upper.feeGrowthOutside1X128)
	} else {
		above0 = subU256(feeGrowthGlobal0X128, upper.feeGrowthOutside0X128)
		above1 = subU256(feeGrowthGlobal1X128, upper.feeGrowthOutside1X128)
	}

	inside0 := subU256(subU256(feeGrowthGlobal0X128, below0), above0)
	inside1 := subU256(subU256(feeGrowthGlobal1X128, below1), above1)
	return inside0, inside1
}

// subU256 returns (a - b) mod 2^256. The fee accumulators are modular
// counters; the wraparound is explicit rather than relying on fixed-width
// overflow.
func subU256(a, b *big.Int) *big.Int {
	d := new(big.Int).Sub(a, b)
	return d.Mod(d, twoPow256)
}

// addU256 returns (a + b) mod 2^256.
func addU256(a, b *big.Int) *big.Int {
	s := new(big.Int).Add(a, b)
	return s.Mod(s, twoPow256)
}

// tickBitmap tracks tick initialization state using a compressed bitmap.
// Each word stores 256 ticks (one bit per spacing-compressed tick).
type tickBitmap struct {
	words map[int16][4]uint64
}

func newTickBitmap() *tickBitmap {
	return &tickBitmap{words: make(map[int16][4]uint64)}
}

func (tb *tickBitmap) clone() *tickBitmap {
	c := newTickBitmap()
	for wp, w := range tb.words {
		c.words[wp] = w
	}
	return c
}

// wordPos returns the word position for a compressed tick. The arithmetic
// shift rounds toward negative infinity.
func wordPos(compressed int24) int16 {
	return int16(compressed >> 8)
}

// bitPos returns the bit position within a word (0-255).
func bitPos(compressed int24) uint16 {
	return uint16(uint32(compressed) & 0xFF)
}

// compress divides a tick by the spacing, rounding toward negative infinity.
func compress(tick, tickSpacing int24) int24 {
	c := tick / tickSpacing
	if tick < 0 && tick%tickSpacing != 0 {
		c--
	}
	return c
}

// flipTick toggles the tick's initialized state.
func (tb *tickBitmap) flipTick(tick, tickSpacing int24) {
	compressed := compress(tick, tickSpacing)

	wp := wordPos(compressed)
	bp := bitPos(compressed)

	word := tb.words[wp]
	word[bp/64] ^= 1 << (bp % 64)
	tb.words[wp] = word
}

// nextInitializedTickWithinOneWord finds the next initialized tick within
// the same 256-tick word, in the given direction. When no initialized tick
// exists in the word it returns the word's boundary tick with
// initialized=false, letting the swap executor skip a whole uninitialized
// region in one step.
func (tb *tickBitmap) nextInitializedTickWithinOneWord(tick, tickSpacing int24, lte bool) (int24, bool) {
	compressed := compress(tick, tickSpacing)

	if lte {
		wp := wordPos(compressed)
		bp := bitPos(compressed)
		word := tb.words[wp]

		// Scan bits at or below bp, highest first.
		for i := int(bp / 64); i >= 0; i-- {
			w := word[i]
			if i == int(bp/64) {
				w &= maskUpTo(bp % 64)
			}
			if w != 0 {
				high := 63 - bits.LeadingZeros64(w)
				found := int24(wp)*256 + int24(i)*64 + int24(high)
				return found * tickSpacing, true
			}
		}
		return (int24(wp) * 256) * tickSpacing, false
	}

	// Price increasing: start just above the current compressed tick.
	c := compressed + 1
	wp := wordPos(c)
	bp := bitPos(c)
	word := tb.words[wp]

	for i := int(bp / 64); i < 4; i++ {
		w := word[i]
		if i == int(bp/64) {
			w &= ^(uint64(1)<<(bp%64) - 1)
		}
		if w != 0 {
			low := bits.TrailingZeros64(w)
			found := int24(wp)*256 + int24(i)*64 + int24(low)
			return found * tickSpacing, true
		}
	}
	return (int24(wp)*256 + 255) * tickSpacing, false
}

// maskUpTo returns a mask of bits 0..k inclusive.
func maskUpTo(k uint16) uint64 {
	if k >= 63 {
		return ^uint64(0)
	}
	return uint64(1)<<(k+1) - 1
}
