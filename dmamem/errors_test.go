// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dmamem

import (
	"testing"
	"unsafe"

	"github.com/yutatech/RPL4/internal/sim"
	"github.com/yutatech/RPL4/internal/test"
)

func TestFailuresLogged(t *testing.T) {
	assert := test.Assert{TB: t}
	var logged []error
	defer func(f func(error)) { logErr = f }(logErr)
	logErr = func(err error) { logged = append(logged, err) }

	fw := sim.NewFirmware()
	defer fw.Shutdown()
	a := New(fw, fw, Config{})
	defer a.Close()

	for _, op := range []string{"allocate", "lock", "map"} {
		fw.FailNext(op)
		_, err := a.Allocate(32)
		assert.Error(err, sim.ErrInjected)
	}
	assert.True(len(logged) == 3)
	for _, err := range logged {
		assert.Error(err, sim.ErrInjected)
	}
	assert.Match(logged[0].Error(), "^allocate 0x1000: ")
	assert.Match(logged[1].Error(), "^lock handle [0-9]+: ")
	assert.Match(logged[2].Error(), "^map phys 0x[0-9a-f]+: ")

	var x uint32
	_, err := a.PhysicalAddress(unsafe.Pointer(&x))
	assert.Error(err, ErrUnknownAddress)
	assert.True(len(logged) == 4)

	b, err := a.Allocate(32)
	assert.Nil(err)
	a.Free(b)
	assert.True(len(logged) == 4)
}
