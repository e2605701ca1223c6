// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/platinasystems/parms"

	"github.com/yutatech/RPL4/gpio"
	"github.com/yutatech/RPL4/internal/goes"
)

func gpioCmd(ctx context.Context, args ...string) error {
	if goes.Helper(ctx, args, []string{"-f", "-pull", "-w"},
		"PIN... [-f FUNCTION] [-pull none|up|down] [-w 0|1]\n",
		"Configure, write or read GPIO pins.\n") {
		return nil
	}
	parm, args := parms.New(args, "-f", "-pull", "-w")
	if len(args) == 0 {
		return fmt.Errorf("PIN: missing")
	}
	e, err := open()
	if err != nil {
		return err
	}
	defer e.Close()
	bank, err := gpio.New(e.p)
	if err != nil {
		return err
	}
	o := goes.OutputOf(ctx)
	for _, s := range args {
		n, err := number("PIN", s, 0, gpio.NumPins-1)
		if err != nil {
			return err
		}
		pin, err := bank.Pin(int(n))
		if err != nil {
			return err
		}
		if s := parm.ByName["-f"]; len(s) > 0 {
			f, err := gpio.ParseFunction(s)
			if err != nil {
				return err
			}
			if err = pin.SetFunction(f); err != nil {
				return err
			}
		}
		if s := parm.ByName["-pull"]; len(s) > 0 {
			p, err := gpio.ParsePull(s)
			if err != nil {
				return err
			}
			if err = pin.SetPull(p); err != nil {
				return err
			}
		}
		if s := parm.ByName["-w"]; len(s) > 0 {
			level, err := number("-w", s, 0, 1)
			if err != nil {
				return err
			}
			if err = pin.Write(level == 1); err != nil {
				return err
			}
		}
		f, err := bank.GetFunction(int(n))
		if err != nil {
			return err
		}
		p, err := bank.GetPull(int(n))
		if err != nil {
			return err
		}
		level, err := pin.Read()
		if err != nil {
			return err
		}
		o.Printf("%v: %v pull %v level %t\n", pin, f, p, level)
	}
	return ctx.Err()
}
