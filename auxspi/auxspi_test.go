// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package auxspi

import (
	"context"
	"testing"
	"time"

	"github.com/yutatech/RPL4/internal/test"
	"github.com/yutatech/RPL4/platform"
)

func newSPI(t *testing.T, port Port) (*SPI, *platform.Platform) {
	p, err := platform.Init(platform.Config{
		Mapper: new(platform.Anonymous),
		Base:   platform.DefaultBase,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	spi, err := New(p, port)
	if err != nil {
		t.Fatal(err)
	}
	return spi, p
}

func TestEnable(t *testing.T) {
	assert := test.Assert{TB: t}
	spi1, p := newSPI(t, SPI1)
	spi2, err := New(p, SPI2)
	assert.Nil(err)
	assert.Equal(spi2.String(), "spi2")

	spi1.Enable()
	spi2.Enable()
	assert.Reg(p.Aux.Reg(0x04).Get(), 1<<1|1<<2)
	assert.Reg(p.Aux.Reg(0x80).Get(), cntl0Enable)
	assert.Reg(p.Aux.Reg(0xc0).Get(), cntl0Enable)
	assert.True(spi1.IsEnabled())

	spi1.Disable()
	assert.Reg(p.Aux.Reg(0x04).Get(), 1<<2)
	assert.False(spi1.IsEnabled())
	assert.True(spi2.IsEnabled())

	_, err = New(p, NumPorts)
	assert.Error(err, ErrInvalidPort)
	_, err = New(nil, SPI1)
	assert.Error(err, platform.ErrNotInitialized)
}

func TestSettings(t *testing.T) {
	assert := test.Assert{TB: t}
	spi, p := newSPI(t, SPI2)
	cntl0, cntl1 := p.Aux.Reg(0xc0), p.Aux.Reg(0xc4)

	assert.Nil(spi.SetClockDivider(1024))
	assert.Nil(spi.SetBitLength(8))
	assert.Nil(spi.SetChipSelect(CS1))
	assert.Nil(spi.SetCsHighCycles(7))
	assert.Reg(cntl0.Get(), 1024<<20|0b101<<17|8)
	assert.Reg(cntl1.Get(), 7<<8)
	assert.True(spi.BitLength() == 8)

	assert.Error(spi.SetClockDivider(4096), ErrRange)
	assert.Error(spi.SetCsHighCycles(8), ErrRange)
	assert.Error(spi.SetBitLength(0), ErrRange)
	assert.Error(spi.SetBitLength(33), ErrRange)
	assert.Error(spi.SetChipSelect(3), ErrRange)
	assert.Reg(cntl0.Get(), 1024<<20|0b101<<17|8)

	spi.SetClockPolarity(High)
	spi.SetMisoClockPhase(Rising)
	spi.SetMosiClockPhase(Rising)
	assert.True(spi.ClockPolarity() == High)
	assert.True(spi.MisoClockPhase() == Rising)
	assert.True(spi.MosiClockPhase() == Rising)
	spi.SetMosiClockPhase(Falling)
	assert.True(spi.MosiClockPhase() == Falling)

	spi.ClearFifos()
	assert.False(cntl0.IsSet(cntl0Clear))
}

func TestDataShift(t *testing.T) {
	assert := test.Assert{TB: t}
	spi, _ := newSPI(t, SPI1)
	for i, x := range []struct {
		len     uint8
		out, in BitOrder
		pol     Polarity
		mosi    Edge
		miso    Edge
		tx, rx  uint
	}{
		{8, LSBFirst, LSBFirst, Low, Falling, Falling, 0, 23},
		{8, LSBFirst, LSBFirst, Low, Rising, Rising, 1, 24},
		{8, LSBFirst, MSBFirst, High, Falling, Rising, 1, 1},
		{8, MSBFirst, MSBFirst, High, Falling, Rising, 23, 1},
		{8, MSBFirst, MSBFirst, Low, Falling, Rising, 24, 0},
		{16, MSBFirst, LSBFirst, Low, Rising, Falling, 15, 15},
		{32, MSBFirst, LSBFirst, Low, Rising, Rising, 0, 0},
	} {
		assert.Nil(spi.SetBitLength(x.len))
		spi.SetMosiBitOrder(x.out)
		spi.SetMisoBitOrder(x.in)
		spi.SetClockPolarity(x.pol)
		spi.SetMosiClockPhase(x.mosi)
		spi.SetMisoClockPhase(x.miso)
		tx, rx := spi.DataShift()
		if tx != x.tx || rx != x.rx {
			t.Fatalf("%d: got %d, %d; expected %d, %d", i, tx, rx,
				x.tx, x.rx)
		}
	}
}

func TestTransfer(t *testing.T) {
	assert := test.Assert{TB: t}
	spi, p := newSPI(t, SPI1)
	spi.Enable()
	assert.Nil(spi.SetBitLength(8))
	spi.SetMosiBitOrder(MSBFirst)
	spi.SetMisoBitOrder(MSBFirst)
	spi.SetMisoClockPhase(Rising)
	txShift, _ := spi.DataShift()
	assert.True(txShift == 24)

	tx := []byte{0x12, 0x34, 0x56}
	rx := make([]byte, len(tx))
	assert.Nil(spi.Transfer(context.Background(), tx, rx))
	// all but the last byte go through TXHOLD
	assert.Reg(p.Aux.Reg(0xb0).Get(), 0x34<<24)
	assert.Reg(p.Aux.Reg(0xa0).Get(), 0x56<<24)

	// with no shift the idle IO register reads back the last byte
	spi.SetMosiBitOrder(LSBFirst)
	assert.Nil(spi.Transfer(context.Background(), []byte{0xa5}, rx))
	assert.True(rx[0] == 0xa5)

	assert.Error(spi.Transfer(context.Background(), tx, rx[:1]), ErrShortRx)
}

func TestTimeout(t *testing.T) {
	assert := test.Assert{TB: t}
	spi, p := newSPI(t, SPI2)
	// TX full and RX empty
	p.Aux.Reg(0xc8).Set(statTxFull | statRxEmpty)
	assert.False(spi.CanWrite())
	assert.False(spi.CanRead())

	Timeout = 5 * time.Millisecond
	defer func() { Timeout = 100 * time.Millisecond }()
	err := spi.Transfer(context.Background(), []byte{1, 2}, nil)
	assert.Error(err, ErrTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(spi.Transfer(ctx, []byte{1}, nil), context.Canceled)

	// nothing to do
	assert.Nil(spi.Transfer(ctx, nil, nil))
}
