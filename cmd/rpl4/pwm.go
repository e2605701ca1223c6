// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"unsafe"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"

	"github.com/yutatech/RPL4/dma"
	"github.com/yutatech/RPL4/dmamem"
	"github.com/yutatech/RPL4/gpio"
	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/internal/goes"
	"github.com/yutatech/RPL4/pwm"
)

// pwmOf parses the common -port, -ch and -pin parameters then returns the
// controller with its pin configured.
func pwmOf(e *env, parm *parms.Parms) (*pwm.PWM, pwm.Channel, error) {
	port, err := number("-port", parm.ByName["-port"], 0, 1)
	if err != nil {
		return nil, 0, err
	}
	ch, err := number("-ch", parm.ByName["-ch"], 1, 2)
	if err != nil {
		return nil, 0, err
	}
	if ch == 0 {
		return nil, 0, fmt.Errorf("-ch: %w", pwm.ErrInvalidChannel)
	}
	x, err := pwm.Get(e.p, pwm.Port(port))
	if err != nil {
		return nil, 0, err
	}
	if s := parm.ByName["-pin"]; len(s) > 0 {
		pin, err := number("-pin", s, 0, gpio.NumPins-1)
		if err != nil {
			return nil, 0, err
		}
		bank, err := gpio.New(e.p)
		if err != nil {
			return nil, 0, err
		}
		if err = pwm.ConfigureGpioPin(bank, int(pin)); err != nil {
			return nil, 0, err
		}
	}
	return x, pwm.Channel(ch), nil
}

func pwmCmd(ctx context.Context, args ...string) error {
	if goes.Helper(ctx, args, []string{"-port", "-ch", "-pin", "-hz",
		"-duty", "-ms", "-off"},
		"[-port 0|1] [-ch 1|2] [-pin PIN] [-hz FREQ] [-duty 0..1] [-ms] [-off]\n",
		"Run a PWM channel at the given frequency and duty cycle.\n") {
		return nil
	}
	flag, args := flags.New(args, "-ms", "-off")
	parm, args := parms.New(args, "-port", "-ch", "-pin", "-hz", "-duty")
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}
	e, err := open()
	if err != nil {
		return err
	}
	defer e.Close()
	x, ch, err := pwmOf(e, parm)
	if err != nil {
		return err
	}
	if flag.ByName["-off"] {
		return x.Disable(ch)
	}
	hz, duty := 1000.0, 0.5
	if s := parm.ByName["-hz"]; len(s) > 0 {
		if hz, err = strconv.ParseFloat(s, 64); err != nil {
			return fmt.Errorf("-hz: %w", err)
		}
	}
	if s := parm.ByName["-duty"]; len(s) > 0 {
		if duty, err = strconv.ParseFloat(s, 64); err != nil {
			return fmt.Errorf("-duty: %w", err)
		}
	}
	for _, f := range []func() error{
		func() error { return x.SetMSMode(ch, flag.ByName["-ms"]) },
		func() error { return x.SetFrequency(ch, hz) },
		func() error { return x.SetDutyCycle(ch, duty) },
		func() error { return x.Enable(ch) },
	} {
		if err = f(); err != nil {
			return err
		}
	}
	rng, _ := x.Range(ch)
	data, _ := x.Data(ch)
	goes.OutputOf(ctx).Printf("%v channel %d: clock %g Hz range %d data %d\n",
		x, ch, x.ClockHz(), rng, data)
	return ctx.Err()
}

// pwmDmaCmd feeds the FIFO from a circular chain of one control block
// for the -for duration.
func pwmDmaCmd(ctx context.Context, args ...string) error {
	if goes.Helper(ctx, args, []string{"-port", "-ch", "-pin", "-range",
		"-n", "-dma", "-for"},
		"[-port 0|1] [-ch 1|2] [-pin PIN] [-range N] [-n SAMPLES] [-dma ID]",
		" [-for DURATION]\n",
		"Play a ramp of samples to the PWM FIFO with a circular DMA chain.\n") {
		return nil
	}
	parm, args := parms.New(args, "-port", "-ch", "-pin", "-range", "-n",
		"-dma", "-for")
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}
	rng, err := number("-range", parm.ByName["-range"], 1024, 1<<20)
	if err != nil {
		return err
	}
	n, err := number("-n", parm.ByName["-n"], 256, 1<<14)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("-n: no samples")
	}
	id, err := number("-dma", parm.ByName["-dma"], 5, dma.NumChannels-1)
	if err != nil {
		return err
	}
	d := defaultWait
	if s := parm.ByName["-for"]; len(s) > 0 {
		if d, err = time.ParseDuration(s); err != nil {
			return fmt.Errorf("-for: %w", err)
		}
	}
	e, err := open()
	if err != nil {
		return err
	}
	defer e.Close()
	x, ch, err := pwmOf(e, parm)
	if err != nil {
		return err
	}
	c, err := dma.Get[dma.Standard](e.r, int(id))
	if err != nil {
		return err
	}
	a, err := e.allocator()
	if err != nil {
		return err
	}
	samples, err := a.Allocate(int(4 * n))
	if err != nil {
		return err
	}
	defer a.Free(samples)
	hw.FillWords(samples, func(i int) uint32 {
		return uint32(uint64(i) * rng / n)
	})
	samplesPhys, err := a.PhysicalAddressOf(samples)
	if err != nil {
		return err
	}
	cb, err := dmamem.AllocateObject[dma.ControlBlock](a)
	if err != nil {
		return err
	}
	defer dmamem.FreeObject(a, cb)
	cbPhys, err := a.PhysicalAddress(unsafe.Pointer(cb))
	if err != nil {
		return err
	}
	dreq := dma.DreqPWM0
	if x.Port() == pwm.PWM1 {
		dreq = dma.DreqPWM1
	}
	cb.ConfigureMemoryToPeripheral(samplesPhys, x.FifoBusAddress(),
		uint32(4*n), dreq)
	cb.SetNext(cbPhys)

	if err = x.SetRange(ch, uint32(rng)); err != nil {
		return err
	}
	x.ClearFifo()
	if err = x.EnableFifo(ch); err != nil {
		return err
	}
	x.EnableDma(7, 7)
	defer x.DisableDma()
	if err = x.Enable(ch); err != nil {
		return err
	}
	defer x.Disable(ch)

	e.sync()
	c.SetPriority(8)
	c.SetControlBlockAddress(cbPhys)
	c.Start()
	start := time.Now()
	t := time.NewTimer(d)
	select {
	case <-ctx.Done():
		t.Stop()
	case <-t.C:
	}
	if err = c.AbortAndWait(defaultWait); err != nil {
		return err
	}
	o := goes.OutputOf(ctx)
	o.Printf("%v: %v %d samples looped for %v\n", c, x, n,
		time.Since(start).Round(time.Millisecond))
	if e.m != nil {
		o.Printf("%v: fifo received %d words\n", x,
			len(e.m.Engine.Writes(x.FifoBusAddress())))
	}
	return ctx.Err()
}
