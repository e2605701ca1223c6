// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package memmap parses /proc/iomem (and anything else of similar
// structure) and keeps the table of mapped register windows by bus address.
package memmap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

type Region struct {
	What   string
	Ranges []*Range
}

type Range struct {
	Start uintptr
	End   uintptr
}

type RegionMap map[string]Region

func (r Region) String() string {
	return fmt.Sprintf("%s: %v", r.What, r.Ranges)
}

func (r Range) String() string {
	return fmt.Sprintf("%x-%x", r.Start, r.End)
}

// Overlaps is true if any byte of [start, end] is within the range.
func (r Range) Overlaps(start, end uintptr) bool {
	return start <= r.End && r.Start <= end
}

func ReaderToMap(r io.Reader) (regionMap RegionMap, err error) {
	regionMap = make(RegionMap)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), ":", 2)
		if len(fields) != 2 {
			continue
		}
		var start, end uintptr
		n, _ := fmt.Sscanf(strings.TrimSpace(fields[0]), "%x-%x",
			&start, &end)
		if n != 2 {
			continue
		}
		key := strings.TrimSpace(fields[1])
		reg := regionMap[key]
		reg.What = key
		reg.Ranges = append(reg.Ranges, &Range{Start: start, End: end})
		regionMap[key] = reg
	}
	return regionMap, scanner.Err()
}

func FileToMap(s string) (regionMap RegionMap, err error) {
	f, err := os.OpenFile(s, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReaderToMap(f)
}

// Overlapping returns the regions with any range overlapping [start, end].
func (m RegionMap) Overlapping(start, end uintptr) []Region {
	var l []Region
	for _, reg := range m {
		for _, rng := range reg.Ranges {
			if rng.Overlaps(start, end) {
				l = append(l, reg)
				break
			}
		}
	}
	return l
}
