//go:build !linux

package main

import (
	"io"
	"os"
)

func getSectorSize(file *os.File) uint64 {
	return sectorBytes
}

func getDeviceSize(f *os.File) (int64, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	_, _ = f.Seek(0, io.SeekStart)
	return size, nil
}

func rereadPartitionTable(f *os.File) error {
	return nil
}
