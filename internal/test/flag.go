// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package test

import "flag"

var (
	Hardware = flag.Bool("test.hw", false,
		"also run tests against /dev/mem and /dev/vcio")
	VV = flag.Bool("test.vv", false, "log register traffic")
)
