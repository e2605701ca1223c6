// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package gpio

import (
	"testing"

	"github.com/yutatech/RPL4/internal/test"
	"github.com/yutatech/RPL4/platform"
)

func newBank(t *testing.T) *Bank {
	p, err := platform.Init(platform.Config{
		Mapper: new(platform.Anonymous),
		Base:   platform.DefaultBase,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	b, err := New(p)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestFunction(t *testing.T) {
	assert := test.Assert{TB: t}
	b := newBank(t)

	assert.Nil(b.SetFunction(18, Alt5))
	assert.Nil(b.SetFunction(19, Output))
	assert.Nil(b.SetFunction(57, Alt0))
	// GPFSEL1 bits 24-26 and 27-29
	assert.Reg(b.w.Reg(0x04).Get(), 2<<24|1<<27)
	assert.Reg(b.w.Reg(0x14).Get(), 4<<21)

	f, err := b.GetFunction(18)
	assert.Nil(err)
	assert.True(f == Alt5)
	assert.Nil(b.SetFunction(18, Input))
	f, _ = b.GetFunction(18)
	assert.True(f == Input)
	assert.Reg(b.w.Reg(0x04).Get(), 1<<27)

	f, err = ParseFunction("ALT4")
	assert.Nil(err)
	assert.True(f == Alt4)
	assert.Equal(Alt5.String(), "alt5")
	_, err = ParseFunction("alt9")
	assert.True(err != nil)
}

func TestPull(t *testing.T) {
	assert := test.Assert{TB: t}
	b := newBank(t)
	assert.Nil(b.SetPull(17, Up))
	assert.Nil(b.SetPull(48, Down))
	assert.Reg(b.w.Reg(0xe8).Get(), 1<<2)
	assert.Reg(b.w.Reg(0xf0).Get(), 2)
	p, err := b.GetPull(48)
	assert.Nil(err)
	assert.True(p == Down)
	p, _ = ParsePull("none")
	assert.True(p == None)
}

func TestLevel(t *testing.T) {
	assert := test.Assert{TB: t}
	b := newBank(t)

	assert.Nil(b.Write(4, true))
	assert.Reg(b.w.Reg(0x1c).Get(), 1<<4)
	assert.Nil(b.Write(40, false))
	assert.Reg(b.w.Reg(0x2c).Get(), 1<<8)

	b.w.Reg(0x38).Set(1 << 3)
	level, err := b.Read(35)
	assert.Nil(err)
	assert.True(level)
	level, _ = b.Read(3)
	assert.False(level)

	pin, err := b.Pin(35)
	assert.Nil(err)
	assert.Equal(pin.String(), "gpio35")
	level, _ = pin.Read()
	assert.True(level)
}

func TestInvalidPin(t *testing.T) {
	assert := test.Assert{TB: t}
	b := newBank(t)
	for _, pin := range []int{-1, 58, 100} {
		assert.Error(b.SetFunction(pin, Output), ErrInvalidPin)
		assert.Error(b.SetPull(pin, Up), ErrInvalidPin)
		assert.Error(b.Write(pin, true), ErrInvalidPin)
		_, err := b.Read(pin)
		assert.Error(err, ErrInvalidPin)
		_, err = b.Pin(pin)
		assert.Error(err, ErrInvalidPin)
	}
	_, err := New(nil)
	assert.Error(err, platform.ErrNotInitialized)
}
