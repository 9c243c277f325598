// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// lidarbridge - Servo and RPLIDAR debug console
//
// A CLI tool bridging an operator command line to a hobby servo, the LiDAR
// motor and an RPLIDAR range scanner.

package main

import (
	"os"

	"github.com/Thermoquad/lidarbridge/cmd"
	"github.com/golang/glog"
)

func main() {
	err := cmd.Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
