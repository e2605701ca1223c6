// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package goes

import (
	"context"
	"fmt"
	"io"
	"strings"
)

var (
	pathMark   int
	pathKey    = &pathMark
	outputMark int
	outputKey  = &outputMark
)

// PathOf returns each name appended to the context, first to last.
func PathOf(ctx context.Context) []string {
	var l []string
	for v := ctx.Value(pathKey); v != nil; v = ctx.Value(pathKey) {
		p := v.(path)
		l = append(l, p.name)
		ctx = p.Context
	}
	for i, j := 0, len(l)-1; i < j; i, j = i+1, j-1 {
		l[i], l[j] = l[j], l[i]
	}
	return l
}

// WithPath appends a name to the context path.
func WithPath(ctx context.Context, name string) context.Context {
	return path{ctx, name}
}

type path struct {
	context.Context
	name string
}

func (p path) Value(k interface{}) interface{} {
	if k == pathKey {
		return p
	}
	return p.Context.Value(k)
}

// ErrorfWith prefaces the formatted error with the context path.
func ErrorfWith(ctx context.Context, format string, args ...interface{}) error {
	return fmt.Errorf(strings.Join(PathOf(ctx), " ")+": "+format, args...)
}

// Output writes to the context's writer until the context is done.
type Output struct {
	context.Context
	w io.Writer
}

func WithOutput(ctx context.Context, w io.Writer) context.Context {
	return Output{ctx, w}
}

func OutputOf(ctx context.Context) Output {
	if v := ctx.Value(outputKey); v != nil {
		return v.(Output)
	}
	return Output{ctx, nil}
}

func (o Output) Print(args ...interface{}) {
	if o.Err() == nil && o.w != nil {
		fmt.Fprint(o.w, args...)
	}
}

func (o Output) Printf(format string, args ...interface{}) {
	if o.Err() == nil && o.w != nil {
		fmt.Fprintf(o.w, format, args...)
	}
}

func (o Output) Println(args ...interface{}) {
	if o.Err() == nil && o.w != nil {
		fmt.Fprintln(o.w, args...)
	}
}

func (o Output) Write(b []byte) (int, error) {
	if err := o.Err(); err != nil {
		return 0, err
	}
	if o.w == nil {
		return len(b), nil
	}
	return o.w.Write(b)
}

func (o Output) Value(k interface{}) interface{} {
	if k == outputKey {
		return o
	}
	return o.Context.Value(k)
}
