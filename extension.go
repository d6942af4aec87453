// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexcore

import (
	"errors"
	"math/big"
)

// ExtensionFlags is the bitmap encoding of an extension's call points.
type ExtensionFlags uint16

const (
	FlagBeforeInitialize ExtensionFlags = 1 << iota
	FlagAfterInitialize
	FlagBeforeSwap
	FlagAfterSwap
	FlagBeforeUpdatePosition
	FlagAfterUpdatePosition
	FlagBeforeCollectFees
	FlagAfterCollectFees
)

// CallPoints declares which lifecycle points an extension wants invoked.
type CallPoints struct {
	BeforeInitialize     bool
	AfterInitialize      bool
	BeforeSwap           bool
	AfterSwap            bool
	BeforeUpdatePosition bool
	AfterUpdatePosition  bool
	BeforeCollectFees    bool
	AfterCollectFees     bool
}

// Flags encodes the call points into a bitmap.
func (cp CallPoints) Flags() ExtensionFlags {
	var flags ExtensionFlags
	if cp.BeforeInitialize {
		flags |= FlagBeforeInitialize
	}
	if cp.AfterInitialize {
		flags |= FlagAfterInitialize
	}
	if cp.BeforeSwap {
		flags |= FlagBeforeSwap
	}
	if cp.AfterSwap {
		flags |= FlagAfterSwap
	}
	if cp.BeforeUpdatePosition {
		flags |= FlagBeforeUpdatePosition
	}
	if cp.AfterUpdatePosition {
		flags |= FlagAfterUpdatePosition
	}
	if cp.BeforeCollectFees {
		flags |= FlagBeforeCollectFees
	}
	if cp.AfterCollectFees {
		flags |= FlagAfterCollectFees
	}
	return flags
}

// DecodeCallPoints decodes a bitmap into call points.
func DecodeCallPoints(flags ExtensionFlags) CallPoints {
	return CallPoints{
		BeforeInitialize:     flags&FlagBeforeInitialize != 0,
		AfterInitialize:      flags&FlagAfterInitialize != 0,
		BeforeSwap:           flags&FlagBeforeSwap != 0,
		AfterSwap:            flags&FlagAfterSwap != 0,
		BeforeUpdatePosition: flags&FlagBeforeUpdatePosition != 0,
		AfterUpdatePosition:  flags&FlagAfterUpdatePosition != 0,
		BeforeCollectFees:    flags&FlagBeforeCollectFees != 0,
		AfterCollectFees:     flags&FlagAfterCollectFees != 0,
	}
}

// Extension is a pool-specific hook invoked at declared lifecycle points.
// CallPoints is the extension's own capability report; registration
// verifies the registrant's claim against it, so a spoofed claim cannot
// grant call points the extension does not implement.
//
// A hook may re-enter the engine through the session it is handed;
// Forward lets it act under the original caller's settlement identity.
type Extension interface {
	CallPoints() CallPoints

	BeforeInitialize(key PoolKey, initialTick int24) error
	AfterInitialize(key PoolKey, initialTick int24, sqrtPriceX96 *big.Int) error

	BeforeSwap(sess *Session, key PoolKey, params SwapParams) error
	AfterSwap(sess *Session, key PoolKey, params SwapParams, delta BalanceDelta) error

	BeforeUpdatePosition(sess *Session, key PoolKey, params UpdatePositionParams) error
	AfterUpdatePosition(sess *Session, key PoolKey, params UpdatePositionParams, delta BalanceDelta) error

	BeforeCollectFees(sess *Session, key PoolKey, r PositionRange) error
	AfterCollectFees(sess *Session, key PoolKey, r PositionRange, amount0, amount1 *big.Int) error

	// HandleForward is invoked when a locked caller forwards to this
	// extension; it runs under the extension's identity with the caller's
	// session preserved.
	HandleForward(sess *Session, payload any) (any, error)
}

// Extension errors.
var (
	ErrExtensionRegistered    = errors.New("extension already registered")
	ErrExtensionNotRegistered = errors.New("extension not registered")
	ErrCallPointsMismatch     = errors.New("declared call points do not match extension")
)

// BaseExtension is a no-op Extension to embed; override the call points
// and hooks you need.
type BaseExtension struct{}

func (BaseExtension) CallPoints() CallPoints { return CallPoints{} }

func (BaseExtension) BeforeInitialize(PoolKey, int24) error          { return nil }
func (BaseExtension) AfterInitialize(PoolKey, int24, *big.Int) error { return nil }
func (BaseExtension) BeforeSwap(*Session, PoolKey, SwapParams) error { return nil }
func (BaseExtension) AfterSwap(*Session, PoolKey, SwapParams, BalanceDelta) error {
	return nil
}
func (BaseExtension) BeforeUpdatePosition(*Session, PoolKey, UpdatePositionParams) error {
	return nil
}
func (BaseExtension) AfterUpdatePosition(*Session, PoolKey, UpdatePositionParams, BalanceDelta) error {
	return nil
}
func (BaseExtension) BeforeCollectFees(*Session, PoolKey, PositionRange) error { return nil }
func (BaseExtension) AfterCollectFees(*Session, PoolKey, PositionRange, *big.Int, *big.Int) error {
	return nil
}
func (BaseExtension) HandleForward(*Session, any) (any, error) { return nil, nil }

// registeredExtension pairs an extension with its verified call points.
type registeredExtension struct {
	ext    Extension
	points CallPoints
}
