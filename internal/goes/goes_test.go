// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package goes

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSelect(t *testing.T) {
	w := new(strings.Builder)
	ctx := WithPath(WithOutput(context.Background(), w), "rpl4")
	var got []string
	m := Selection{
		"hello": func(ctx context.Context, args ...string) error {
			got = append(PathOf(ctx), args...)
			OutputOf(ctx).Println("hello", strings.Join(args, " "))
			return nil
		},
		"deadline": func(ctx context.Context, args ...string) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("no deadline")
			}
			return nil
		},
	}
	try := func(t *testing.T, want string, args ...string) {
		t.Helper()
		w.Reset()
		if err := m.Run(ctx, args...); err != nil {
			t.Fatal(err)
		} else if s := w.String(); s != want {
			t.Errorf("%q != %q", s, want)
		}
	}
	t.Run("select", func(t *testing.T) {
		try(t, "hello a b\n", "hello", "a", "b")
		if s := strings.Join(got, " "); s != "rpl4 hello a b" {
			t.Error(s)
		}
	})
	t.Run("help", func(t *testing.T) {
		try(t, "usage: rpl4 [-timeout DURATION] COMMAND [OPTION]...\n"+
			"  build-info\n  deadline\n  hello\n  version\n", "help")
	})
	t.Run("complete", func(t *testing.T) {
		try(t, "deadline\n", "complete", "de")
	})
	t.Run("timeout", func(t *testing.T) {
		try(t, "", "-timeout", "1s", "deadline")
		if err := m.Run(ctx, "-timeout", "soon", "deadline"); err == nil {
			t.Error("parsed bad duration")
		}
	})
	t.Run("not-found", func(t *testing.T) {
		err := m.Run(ctx, "bogus")
		if err == nil || err.Error() != "rpl4: bogus: command not found" {
			t.Error(err)
		}
		err = m.Run(ctx)
		if err == nil || err.Error() != "rpl4: incomplete" {
			t.Error(err)
		}
	})
}

func TestPath(t *testing.T) {
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c"} {
		ctx = WithPath(ctx, s)
	}
	if s := strings.Join(PathOf(ctx), " "); s != "a b c" {
		t.Error(s)
	}
	ctx, args := Preempt(ctx, []string{"help", "x"})
	if Preemption(ctx) != "" || len(args) != 1 {
		t.Error("preempted past the first element")
	}
	ctx, _ = Preempt(WithPath(context.Background(), "a"), []string{"help"})
	if Preemption(ctx) != "help" {
		t.Error("not preempted")
	}
}

func TestOutput(t *testing.T) {
	w := new(strings.Builder)
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	o := OutputOf(WithOutput(ctx, w))
	o.Printf("%d\n", 1)
	cancel()
	o.Println(2)
	if _, err := o.Write([]byte("3")); err == nil {
		t.Error("wrote after cancel")
	}
	if s := w.String(); s != "1\n" {
		t.Errorf("%q", s)
	}
	OutputOf(context.Background()).Println("discarded")
}
