// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package gpio programs the BCM2711 GPIO bank: function select, pull
// resistors, level read and set/clear.
package gpio

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/platform"
)

const NumPins = 58

var ErrInvalidPin = errors.New("invalid pin")

// Function select of a pin.
type Function uint8

const (
	Input  Function = 0
	Output Function = 1
	Alt0   Function = 4
	Alt1   Function = 5
	Alt2   Function = 6
	Alt3   Function = 7
	Alt4   Function = 3
	Alt5   Function = 2
)

var functionNames = [...]string{
	Input:  "in",
	Output: "out",
	Alt0:   "alt0",
	Alt1:   "alt1",
	Alt2:   "alt2",
	Alt3:   "alt3",
	Alt4:   "alt4",
	Alt5:   "alt5",
}

func (f Function) String() string {
	if int(f) < len(functionNames) {
		return functionNames[f]
	}
	return fmt.Sprint("fsel", uint8(f))
}

// ParseFunction is the inverse of Function.String.
func ParseFunction(s string) (Function, error) {
	for f, name := range functionNames {
		if strings.EqualFold(s, name) {
			return Function(f), nil
		}
	}
	return 0, fmt.Errorf("%s: unknown function", s)
}

// Pull resistor of a pin.
type Pull uint8

const (
	None Pull = 0
	Up   Pull = 1
	Down Pull = 2
)

var pullNames = [...]string{None: "none", Up: "up", Down: "down"}

func (p Pull) String() string {
	if int(p) < len(pullNames) {
		return pullNames[p]
	}
	return fmt.Sprint("pull", uint8(p))
}

func ParsePull(s string) (Pull, error) {
	for p, name := range pullNames {
		if strings.EqualFold(s, name) {
			return Pull(p), nil
		}
	}
	return 0, fmt.Errorf("%s: unknown pull", s)
}

const (
	regFsel  = 0x00
	regSet   = 0x1c
	regClr   = 0x28
	regLev   = 0x34
	regPull  = 0xe4
	fselBits = 3
	pullBits = 2
)

// Bank of GPIO pins.
type Bank struct {
	w *hw.Window
	// fsel and pull read-modify-write
	mu sync.Mutex
}

func New(p *platform.Platform) (*Bank, error) {
	if err := platform.Check(p); err != nil {
		return nil, err
	}
	return &Bank{w: p.GPIO}, nil
}

func check(pin int) error {
	if pin < 0 || pin >= NumPins {
		return fmt.Errorf("gpio%d: %w", pin, ErrInvalidPin)
	}
	return nil
}

// field returns the register and shift of a pin's bits in a bank of
// registers with the given bits per pin.
func (b *Bank) field(base uint32, pin int, bits uint) (*hw.Reg32, uint) {
	perReg := 32 / int(bits)
	r := b.w.Reg(base + 4*uint32(pin/perReg))
	return r, uint(pin%perReg) * bits
}

func (b *Bank) SetFunction(pin int, f Function) error {
	if err := check(pin); err != nil {
		return err
	}
	r, shift := b.field(regFsel, pin, fselBits)
	b.mu.Lock()
	defer b.mu.Unlock()
	r.SetField(shift, fselBits, uint32(f))
	return nil
}

func (b *Bank) GetFunction(pin int) (Function, error) {
	if err := check(pin); err != nil {
		return 0, err
	}
	r, shift := b.field(regFsel, pin, fselBits)
	return Function(r.Field(shift, fselBits)), nil
}

func (b *Bank) SetPull(pin int, p Pull) error {
	if err := check(pin); err != nil {
		return err
	}
	r, shift := b.field(regPull, pin, pullBits)
	b.mu.Lock()
	defer b.mu.Unlock()
	r.SetField(shift, pullBits, uint32(p))
	return nil
}

func (b *Bank) GetPull(pin int) (Pull, error) {
	if err := check(pin); err != nil {
		return 0, err
	}
	r, shift := b.field(regPull, pin, pullBits)
	return Pull(r.Field(shift, pullBits)), nil
}

// Read the pin level.
func (b *Bank) Read(pin int) (bool, error) {
	if err := check(pin); err != nil {
		return false, err
	}
	r, shift := b.field(regLev, pin, 1)
	return r.Field(shift, 1) != 0, nil
}

// Write sets or clears an output pin.
func (b *Bank) Write(pin int, level bool) error {
	if err := check(pin); err != nil {
		return err
	}
	base := uint32(regClr)
	if level {
		base = regSet
	}
	r, shift := b.field(base, pin, 1)
	r.Set(1 << shift)
	return nil
}

// Pin binds a bank and pin number.
type Pin struct {
	b *Bank
	n int
}

func (b *Bank) Pin(n int) (Pin, error) {
	if err := check(n); err != nil {
		return Pin{}, err
	}
	return Pin{b, n}, nil
}

func (p Pin) Number() int                  { return p.n }
func (p Pin) String() string               { return fmt.Sprint("gpio", p.n) }
func (p Pin) SetFunction(f Function) error { return p.b.SetFunction(p.n, f) }
func (p Pin) SetPull(pull Pull) error      { return p.b.SetPull(p.n, pull) }
func (p Pin) Read() (bool, error)          { return p.b.Read(p.n) }
func (p Pin) Write(level bool) error       { return p.b.Write(p.n, level) }
