// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package platform

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/yutatech/RPL4/internal/test"
)

func anonymous(t *testing.T) *Platform {
	t.Helper()
	p, err := Init(Config{Mapper: new(Anonymous), Base: DefaultBase})
	test.Assert{TB: t}.Nil(err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestInit(t *testing.T) {
	assert := test.Assert{TB: t}
	p := anonymous(t)
	assert.Nil(Check(p))
	assert.True(len(p.Map) == len(Regions))
	assert.Reg(p.DMA.Bus(), 0x7e007000)
	assert.Reg(p.PWM.Bus(), 0x7e20c000)
	assert.Reg(p.Aux.Bus(), 0x7e215000)
	assert.True(p.GPIO.Len() == 0x100)

	w, off, err := p.Map.Lookup(0x7e20c818, 4)
	assert.Nil(err)
	assert.True(w == p.PWM)
	assert.Reg(off, 0x818)

	sub, err := p.Window("spi", "spi3", 0x600, 0x18)
	assert.Nil(err)
	assert.Reg(sub.Bus(), 0x7e204600)
	_, err = p.Window("uart", "uart0", 0, 4)
	assert.Match(err.Error(), "no such region")

	assert.Nil(p.Close())
	assert.Error(Check(p), ErrNotInitialized)
	assert.Nil(p.Close())
	assert.Error(Check(nil), ErrNotInitialized)
}

func TestSocBase(t *testing.T) {
	assert := test.Assert{TB: t}
	bcm2711 := []uint32{
		0x7e000000, 0x0, 0xfe000000, 0x01800000,
		0x7c000000, 0x0, 0xfc000000, 0x02000000,
		0x40000000, 0x0, 0xff800000, 0x00800000,
	}
	assert.True(socBase(bcm2711, 1, 2, 1) == 0xfe000000)
	high := []uint32{
		0x7c000000, 0x4, 0x7c000000, 0x04000000,
		0x7e000000, 0x4, 0x7e000000, 0x01800000,
	}
	assert.True(socBase(high, 1, 2, 1) == 0x47e000000)
	bcm2837 := []uint32{0x7e000000, 0x3f000000, 0x01000000}
	assert.True(socBase(bcm2837, 1, 1, 1) == 0x3f000000)
	assert.True(socBase(bcm2837, 1, 2, 1) == 0)
}

func TestDetect(t *testing.T) {
	assert := test.Assert{TB: t}
	dir := t.TempDir()
	dt := filepath.Join(dir, "device-tree")
	assert.Nil(os.MkdirAll(filepath.Join(dt, "soc"), 0755))
	ranges := make([]byte, 16)
	for i, v := range []uint32{0x7e000000, 0, 0xfe000000, 0x1800000} {
		binary.BigEndian.PutUint32(ranges[4*i:], v)
	}
	assert.Nil(os.WriteFile(filepath.Join(dt, "soc", "ranges"), ranges, 0644))
	assert.Nil(os.WriteFile(filepath.Join(dt, "model"),
		[]byte("Raspberry Pi 4 Model B Rev 1.4\x00"), 0644))
	assert.Nil(os.WriteFile(filepath.Join(dt, "compatible"),
		[]byte("raspberrypi,4-model-b\x00brcm,bcm2711\x00"), 0644))

	cfg := Config{
		DeviceTree: filepath.Join(dir, "nosuch"),
		ProcDT:     dt,
		CPUInfo:    filepath.Join(dir, "nosuch"),
	}
	b, err := Detect(cfg)
	assert.Nil(err)
	assert.True(b.IsBCM2711())
	assert.True(b.Base == DefaultBase)
	assert.Equal(b.Model, "Raspberry Pi 4 Model B Rev 1.4")

	cpuinfo := filepath.Join(dir, "cpuinfo")
	assert.Nil(os.WriteFile(cpuinfo, []byte("processor\t: 0\n"+
		"Hardware\t: BCM2835\nRevision\t: c03114\n"), 0644))
	cfg.ProcDT = filepath.Join(dir, "nosuch")
	cfg.CPUInfo = cpuinfo
	b, err = Detect(cfg)
	assert.Nil(err)
	assert.False(b.IsBCM2711())
	assert.True(b.Base == DefaultBase)

	assert.Nil(os.WriteFile(cpuinfo, []byte("Hardware\t: Generic DT\n"), 0644))
	_, err = Detect(cfg)
	assert.Error(err, ErrNotAvailable)
}

func TestClaims(t *testing.T) {
	assert := test.Assert{TB: t}
	p := anonymous(t)
	fn := filepath.Join(t.TempDir(), "iomem")
	assert.Nil(os.WriteFile(fn, []byte(
		"fe007000-fe007aff : dma@7e007000\n"+
			"fe20c000-fe20c027 : pwm@7e20c000\n"+
			"40000000-fbffffff : System RAM\n"), 0644))
	l, err := p.Claims(fn)
	assert.Nil(err)
	assert.True(len(l) == 2)
	assert.Equal(l[0].Window, "dma")
	assert.Equal(l[1].What, "pwm@7e20c000")
}
