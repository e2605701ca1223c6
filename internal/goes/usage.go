// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package goes

import (
	"context"
	"log"
	"os"
	"strings"
)

var preemptive = map[string]bool{
	"complete": true,
	"help":     true,
}

// Preemption returns "complete" or "help" if the context path is
// preempted by either; otherwise, this returns an empty string.
func Preemption(ctx context.Context) string {
	path := PathOf(ctx)
	if len(path) > 1 && preemptive[path[1]] {
		return path[1]
	}
	return ""
}

// Preempt moves leading "complete" and "help" arguments to the context.
func Preempt(ctx context.Context, args []string) (context.Context, []string) {
	for len(args) > 0 && preemptive[args[0]] {
		ctx = WithPath(ctx, args[0])
		args = args[1:]
	}
	return ctx, args
}

// Usage prints this formatted text.
//
//	usage: PATH ARGS...
//
// Where PATH is the space separated elements pushed onto the context,
// less any preemption. The ARGS are printed without separation; a
// Selection arg lists its commands.
func Usage(ctx context.Context, args ...interface{}) {
	o := OutputOf(ctx)
	o.Print("usage:")
	p := PathOf(ctx)
	if len(p) > 1 && preemptive[p[1]] {
		p = append(p[:1], p[2:]...)
	}
	for _, s := range p {
		o.Print(" ", s)
	}
	if len(args) == 0 {
		o.Println()
		return
	}
	o.Print(" ")
	for _, v := range args {
		if sel, ok := v.(Selection); ok {
			for _, s := range sel.Keys() {
				if len(s) > 0 {
					o.Println(" ", s)
				}
			}
		} else {
			o.Print(v)
		}
	}
}

// Helper returns true after printing usage if the context is preempted
// by "help", or after printing matching options if by "complete".
func Helper(ctx context.Context, args []string, options []string, text ...interface{}) bool {
	switch Preemption(ctx) {
	case "":
		return false
	case "help":
		Usage(ctx, text...)
	case "complete":
		o := OutputOf(ctx)
		for _, s := range CompleteStrings(options, args) {
			o.Println(s)
		}
	}
	return true
}

func LastArg(args []string) (s string) {
	if len(args) > 0 {
		s = args[len(args)-1]
	}
	return
}

func CompleteStrings(l []string, args []string) (c []string) {
	arg := LastArg(args)
	for _, s := range l {
		if len(s) == 0 {
			continue
		}
		if len(arg) == 0 || strings.HasPrefix(s, arg) {
			c = append(c, s)
		}
	}
	return
}

const LogFlags = log.Lshortfile

var Fatal = log.Fatal

func PlainLog() {
	log.SetFlags(0)
	log.SetPrefix(Prog + ": ")
}

func StyleLog() {
	log.SetOutput(os.Stderr)
	log.SetFlags(LogFlags)
	log.SetPrefix(Prog + ":")
}
