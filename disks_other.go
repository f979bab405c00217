//go:build !linux

package main

import (
	"errors"
	"runtime"
)

// Device enumeration relies on Linux sysfs; elsewhere use --image.
func listBlockDevices(sysfs string) ([]Device, error) {
	return nil, nil
}

func blockDevicePath(devDir string, dev Device) (string, error) {
	return "", errors.New("selecting a device by BUS:DEVNUM is not supported on " + runtime.GOOS + ", use --image")
}
