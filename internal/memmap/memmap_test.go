// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package memmap

import (
	"strings"
	"testing"

	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/internal/test"
)

const iomem = `00000000-3b3fffff : System RAM
  00210000-0121ffff : Kernel code
40000000-fbffffff : System RAM
fe007000-fe007aff : dma@7e007000
fe007b00-fe007eff : dma@7e007b00
fe101000-fe102fff : cprman@7e101000
fe200000-fe2000b3 : gpio@7e200000
fe20c000-fe20c027 : pwm@7e20c000
fe215000-fe215007 : aux@7e215000
`

func TestReaderToMap(t *testing.T) {
	assert := test.Assert{TB: t}
	m, err := ReaderToMap(strings.NewReader(iomem))
	assert.Nil(err)
	ram, found := m["System RAM"]
	assert.True(found)
	assert.True(len(ram.Ranges) == 2)
	assert.Equal(ram.Ranges[1].String(), "40000000-fbffffff")
	assert.Equal(m["Kernel code"].String(), "Kernel code: [210000-121ffff]")

	l := m.Overlapping(0xfe007000, 0xfe007fff)
	assert.True(len(l) == 2)
	l = m.Overlapping(0xfe20c000, 0xfe20cfff)
	assert.True(len(l) == 1)
	assert.Equal(l[0].What, "pwm@7e20c000")
}

func TestAddressMap(t *testing.T) {
	assert := test.Assert{TB: t}
	var m AddressMap
	gpio := hw.NewWindow("gpio", 0x7e200000, make([]byte, 0x100))
	dma := hw.NewWindow("dma", 0x7e007000, make([]byte, 0x1000))
	pwm := hw.NewWindow("pwm", 0x7e20c000, make([]byte, 0x1000))
	assert.Nil(m.Add("gpio", gpio))
	assert.Nil(m.Add("dma", dma))
	assert.Nil(m.Add("pwm", pwm))
	assert.Equal(m[0].Name, "dma")

	err := m.Add("alias", hw.NewWindow("alias", 0x7e2000fc, make([]byte, 8)))
	assert.Error(err, ErrConflict)

	w, off, err := m.Lookup(0x7e20c018, 4)
	assert.Nil(err)
	assert.True(w == pwm)
	assert.Reg(off, 0x18)

	_, _, err = m.Lookup(0x7e2000fc, 8)
	assert.Error(err, ErrUnmapped)
	_, _, err = m.Lookup(0x7e100000, 4)
	assert.Error(err, ErrUnmapped)

	assert.True(m.Entry("gpio").Contains(0x7e200000, 0x100))
	assert.True(m.Entry("nosuch") == nil)
}
