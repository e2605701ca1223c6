// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package hw

import (
	"sync/atomic"
	"unsafe"
)

// Uncached DMA memory must be written with whole aligned words. Byte or
// vector stores (e.g. a compiler generated memclr) may bus fault.

// Word returns a pointer to the aligned 32 bit word at b[off].
func Word(b []byte, off int) *uint32 {
	if off%4 != 0 || off < 0 || off+4 > len(b) {
		panic("hw: word offset out of range")
	}
	return (*uint32)(unsafe.Pointer(&b[off]))
}

func LoadWord(b []byte, off int) uint32     { return atomic.LoadUint32(Word(b, off)) }
func StoreWord(b []byte, off int, x uint32) { atomic.StoreUint32(Word(b, off), x) }

// ZeroWords clears b one word at a time; a trailing partial word is left
// untouched.
func ZeroWords(b []byte) {
	for off := 0; off+4 <= len(b); off += 4 {
		StoreWord(b, off, 0)
	}
}

// CopyWords copies whole words from src to dst and returns the number of
// bytes copied.
func CopyWords(dst, src []byte) int {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	n &^= 3
	for off := 0; off < n; off += 4 {
		StoreWord(dst, off, LoadWord(src, off))
	}
	return n
}

// FillWords stores the words returned by f(i) for each word index i of b.
func FillWords(b []byte, f func(i int) uint32) {
	for off := 0; off+4 <= len(b); off += 4 {
		StoreWord(b, off, f(off/4))
	}
}
