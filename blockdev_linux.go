//go:build linux

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// getSectorSize returns the logical block size of a block device, 512 for
// regular files.
func getSectorSize(file *os.File) uint64 {
	if !isBlockDevice(file) {
		return sectorBytes
	}

	sectorSize, err := unix.IoctlGetInt(int(file.Fd()), unix.BLKSSZGET)
	if err == nil && sectorSize > 0 {
		return uint64(sectorSize)
	}

	// If ioctl fails, fallback to reading from sysfs
	data, err := os.ReadFile(filepath.Join(sysfsBlockDir(file.Name()), "queue", "logical_block_size"))
	if err == nil {
		if sz, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil && sz > 0 {
			return uint64(sz)
		}
	}

	return sectorBytes
}

// sysfsBlockDir maps /dev/sda or /dev/block/8:0 to its sysfs directory.
func sysfsBlockDir(devPath string) string {
	name := filepath.Base(devPath)
	if strings.Contains(name, ":") {
		return "/sys/dev/block/" + name
	}
	return "/sys/class/block/" + name
}

// getDeviceSize returns the size of a file or block device in bytes.
func getDeviceSize(f *os.File) (int64, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err == nil && (size > 0 || !isBlockDevice(f)) {
		_, _ = f.Seek(0, io.SeekStart)
		return size, nil
	}

	var sizeBytes uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&sizeBytes)))
	if errno != 0 {
		return 0, fmt.Errorf("ioctl BLKGETSIZE64 failed: %v", errno)
	}
	return int64(sizeBytes), nil
}

func isBlockDevice(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	mode := info.Mode()
	return mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0
}

// rereadPartitionTable asks the kernel to rescan the partitions of a block
// device after its table may have been rewritten.
func rereadPartitionTable(f *os.File) error {
	if !isBlockDevice(f) {
		return nil
	}
	if err := unix.IoctlSetInt(int(f.Fd()), unix.BLKRRPART, 0); err != nil {
		return fmt.Errorf("ioctl BLKRRPART failed: %w", err)
	}
	return nil
}
