// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yutatech/RPL4/dma"
	"github.com/yutatech/RPL4/internal/goes"
	"github.com/yutatech/RPL4/internal/test"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	useSim = true
	w := new(strings.Builder)
	ctx := goes.WithPath(goes.WithOutput(context.Background(), w), "rpl4")
	err := commands.Run(ctx, args...)
	return w.String(), err
}

func TestInfo(t *testing.T) {
	assert := test.Assert{TB: t}
	out, err := run(t, "info")
	assert.Nil(err)
	assert.Match(out, "peripherals: 0xfe000000\n")
	assert.Match(out, "dma: 0x7e007000-0x7e007fff")
	assert.Match(out, "11 DMA4\n")
}

func TestDma(t *testing.T) {
	assert := test.Assert{TB: t}
	out, err := run(t, "dma", "-type", "all", "-n", "1024")
	assert.Nil(err)
	assert.Match(out, "Standard DMA channel 5: 1024 bytes")
	assert.Match(out, "DMA Lite channel 7: 1024 bytes")
	assert.Match(out, "DMA4 channel 11: 1024 bytes")

	out, err = run(t, "dma", "-type", "dma4", "-ch", "13", "-timeout", "2s")
	assert.Nil(err)
	assert.Match(out, "DMA4 channel 13: 4096 bytes")

	_, err = run(t, "dma", "-type", "lite", "-ch", "3")
	assert.Match(err.Error(), "wrong family")
	_, err = run(t, "dma", "-type", "bogus")
	assert.Match(err.Error(), "unknown")
	_, err = run(t, "dma", "-n", "3")
	assert.Match(err.Error(), "multiple of 4")
}

func TestAlloc(t *testing.T) {
	assert := test.Assert{TB: t}
	out, err := run(t, "alloc", "-n", "100", "-count", "3")
	assert.Nil(err)
	assert.Match(out, "2: 100 bytes @ 0x")
	assert.Match(out, "3 in use")
}

func TestPwm(t *testing.T) {
	assert := test.Assert{TB: t}
	out, err := run(t, "pwm", "-hz", "1000", "-duty", "0.25", "-pin", "18")
	assert.Nil(err)
	assert.Match(out, "pwm0 channel 1: clock 2.5e\\+07 Hz range 25000 data 6250")
	_, err = run(t, "pwm", "-ch", "3")
	assert.True(err != nil)

	out, err = run(t, "pwm-dma", "-port", "1", "-n", "16", "-for", "20ms")
	assert.Nil(err)
	assert.Match(out, "Standard DMA channel 5: pwm1 16 samples looped")
	assert.Match(out, "pwm1: fifo received [1-9][0-9]* words")
}

func TestGpio(t *testing.T) {
	assert := test.Assert{TB: t}
	out, err := run(t, "gpio", "17", "-f", "out", "-pull", "up", "-w", "1")
	assert.Nil(err)
	assert.Equal(out, "gpio17: out pull up level false\n")
	_, err = run(t, "gpio", "58")
	assert.True(err != nil)
}

func TestSpi(t *testing.T) {
	assert := test.Assert{TB: t}
	out, err := run(t, "spi", "-port", "4", "0xde", "0xad")
	assert.Nil(err)
	assert.Equal(out, "spi4: de ad\n")
	_, err = run(t, "spi", "-port", "1")
	assert.True(err != nil)

	out, err = run(t, "auxspi", "-port", "2", "-lsb", "0x5a")
	assert.Nil(err)
	assert.Match(out, "^spi2: [0-9a-f]{2}\n")
	_, err = run(t, "auxspi", "-bits", "33")
	assert.True(err != nil)
}

func TestHelp(t *testing.T) {
	assert := test.Assert{TB: t}
	out, err := run(t, "help", "dma")
	assert.Nil(err)
	assert.Match(out, "^usage: rpl4 dma \\[-type")
	out, err = run(t, "complete", "pw")
	assert.Nil(err)
	assert.Equal(out, "pwm\npwm-dma\n")
}

// stuck never goes idle
type stuck struct{ aborts int }

func (*stuck) String() string                                 { return "stuck channel 0" }
func (*stuck) SetPriority(uint8)                              {}
func (*stuck) SetControlBlockAddress(uint32)                  {}
func (*stuck) Start()                                         {}
func (*stuck) WaitForCompletionContext(context.Context) error { return nil }
func (*stuck) DebugStatus() dma.Status                        { return dma.Status{} }

func (s *stuck) AbortAndWait(time.Duration) error {
	s.aborts++
	return errors.New("abort: timeout")
}

func TestAbandon(t *testing.T) {
	assert := test.Assert{TB: t}
	s := new(stuck)
	err := abandon(s, context.DeadlineExceeded)
	assert.Error(err, context.DeadlineExceeded)
	assert.Equal(err.Error(),
		"stuck channel 0: context deadline exceeded; abort: timeout")
	assert.True(s.aborts == 1)
}
