//go:build linux

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var excludePrefixes = []string{"loop", "zram", "ram", "dm-", "md"}

// listBlockDevices enumerates whole-disk flash candidates under sysfs:
// removable disks, USB attached disks and MMC cards. Fixed system disks
// are left out so that a single attached device is picked automatically.
func listBlockDevices(sysfs string) ([]Device, error) {
	classDir := filepath.Join(sysfs, "class", "block")
	blockDevices, err := os.ReadDir(classDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", classDir, err)
	}

	var devices []Device
	for _, bd := range blockDevices {
		devName := bd.Name()

		shouldContinue := false
		for _, prefix := range excludePrefixes {
			if strings.HasPrefix(devName, prefix) {
				shouldContinue = true
				break
			}
		}
		if shouldContinue {
			continue
		}

		dir := filepath.Join(classDir, devName)
		// Partitions of a disk carry a "partition" attribute.
		if _, err := os.Stat(filepath.Join(dir, "partition")); err == nil {
			continue
		}
		if readSysfs(dir, "size") == "0" {
			continue
		}

		major, minor, ok := parseMajorMinor(readSysfs(dir, "dev"))
		if !ok {
			continue
		}

		vendor, product, usb := usbIDs(sysfs, dir)
		removable := readSysfs(dir, "removable") == "1"
		if !usb && !removable && !strings.HasPrefix(devName, "mmcblk") {
			continue
		}

		devices = append(devices, Device{
			Bus:     major,
			Dev:     minor,
			Vendor:  vendor,
			Product: product,
			Path:    "/dev/" + devName,
		})
	}
	return devices, nil
}

// blockDevicePath returns the node of a device selected by major:minor.
func blockDevicePath(devDir string, dev Device) (string, error) {
	path := filepath.Join(devDir, "block", fmt.Sprintf("%d:%d", dev.Bus, dev.Dev))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("no such device %d:%d (see --list-devices)", dev.Bus, dev.Dev)
		}
		return "", err
	}
	return path, nil
}

func readSysfs(dir, attr string) string {
	data, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func parseMajorMinor(s string) (int, int, bool) {
	majStr, minStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, false
	}
	major, err := strconv.Atoi(majStr)
	if err != nil {
		return 0, 0, false
	}
	minor, err := strconv.Atoi(minStr)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

// usbIDs walks up from the device's sysfs node to the USB device that
// carries idVendor and idProduct.
func usbIDs(sysfs, dir string) (vendor, product uint16, ok bool) {
	node, err := filepath.EvalSymlinks(filepath.Join(dir, "device"))
	if err != nil {
		return 0, 0, false
	}
	root, err := filepath.EvalSymlinks(sysfs)
	if err != nil {
		root = sysfs
	}

	for node != root && node != "/" && node != "." {
		v, vErr := strconv.ParseUint(readSysfs(node, "idVendor"), 16, 16)
		p, pErr := strconv.ParseUint(readSysfs(node, "idProduct"), 16, 16)
		if vErr == nil && pErr == nil {
			return uint16(v), uint16(p), true
		}
		node = filepath.Dir(node)
	}
	return 0, 0, false
}
