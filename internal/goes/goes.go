// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package goes selects and runs a command from a map of context driven
// functions. The context carries the command path, output writer and any
// "help" or "complete" preemption.
package goes

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/platinasystems/parms"
)

var Prog = filepath.Base(os.Args[0])

type Func = func(context.Context, ...string) error

// Selection of commands by name. The empty name, if present, runs when
// no command is given.
type Selection map[string]Func

var BuiltIn = Selection{
	"build-info": func(ctx context.Context, args ...string) error {
		if bi, ok := debug.ReadBuildInfo(); ok {
			OutputOf(ctx).Print(bi)
		}
		return nil
	},
	"version": func(ctx context.Context, args ...string) error {
		if bi, ok := debug.ReadBuildInfo(); ok {
			OutputOf(ctx).Println(bi.Main.Version)
		}
		return nil
	},
}

func (m Selection) Keys() []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Main runs the command selected by os.Args and exits non-zero if it
// fails.
func (m Selection) Main() {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		StyleLog()
	} else {
		PlainLog()
	}
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = WithOutput(ctx, os.Stdout)
	ctx = WithPath(ctx, Prog)
	defer recovery()
	if err := m.Run(ctx, os.Args[1:]...); err != nil {
		PlainLog()
		Fatal(err)
	}
}

// Run the selection after the leading -timeout DURATION option, which
// bounds the context, and any "help" or "complete" preemption.
func (m Selection) Run(ctx context.Context, args ...string) error {
	for k, v := range BuiltIn {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	parm, args := parms.New(args, "-timeout")
	if s := parm.ByName["-timeout"]; len(s) > 0 {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("-timeout: %w", err)
		}
		t, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		ctx = t
	}
	ctx, args = Preempt(ctx, args)
	return m.Select(ctx, args...)
}

func (m Selection) Select(ctx context.Context, args ...string) error {
	if len(args) == 0 {
		switch Preemption(ctx) {
		case "":
			if f, found := m[""]; found {
				return f(ctx)
			}
			return ErrorfWith(ctx, "incomplete")
		case "complete":
			m.complete(ctx)
		case "help":
			m.usage(ctx)
		}
		return nil
	}
	if f, found := m[args[0]]; found {
		ctx = WithPath(ctx, args[0])
		return f(ctx, args[1:]...)
	}
	switch Preemption(ctx) {
	case "":
		return ErrorfWith(ctx, "%s: command not found", args[0])
	case "complete":
		m.complete(ctx, args...)
	case "help":
		m.usage(ctx)
	}
	return nil
}

func (m Selection) complete(ctx context.Context, args ...string) {
	o := OutputOf(ctx)
	for _, s := range CompleteStrings(m.Keys(), args) {
		o.Println(s)
	}
}

func (m Selection) usage(ctx context.Context) {
	Usage(ctx, "[-timeout DURATION] COMMAND [OPTION]...\n", m)
}

func recovery() {
	r := recover()
	if r == nil {
		return
	}
	sb := new(strings.Builder)
	fmt.Fprintln(sb, r)
	pcs := make([]uintptr, 64)
	if n := runtime.Callers(2, pcs); n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			f, more := frames.Next()
			if len(f.Function) == 0 {
				break
			}
			if strings.Contains(f.File, "runtime/") {
				continue
			}
			fmt.Fprint(sb, "    ", f.Function, "()\n")
			fmt.Fprint(sb, "        ", f.File, ":", f.Line, "\n")
			if !more {
				break
			}
		}
	}
	PlainLog()
	Fatal(sb)
}
