package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"syscall"

	"github.com/rs/zerolog"
)

// diskDriver treats block devices and raw image files as flash devices.
type diskDriver struct {
	sysfs  string
	devDir string
	log    *Logger
}

func newDiskDriver(log *Logger) *diskDriver {
	return &diskDriver{sysfs: "/sys", devDir: "/dev", log: log}
}

func (d *diskDriver) ListDevices() ([]Device, error) {
	return listBlockDevices(d.sysfs)
}

// Open opens dev.Path, or the node of dev's BUS:DEVNUM when no path is set.
// Devices that refuse write access are opened read-only.
func (d *diskDriver) Open(dev Device) (Operation, error) {
	path := dev.Path
	if path == "" {
		p, err := blockDevicePath(d.devDir, dev)
		if err != nil {
			return nil, err
		}
		path = p
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	readOnly := false
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EROFS) {
		f, err = os.Open(path)
		readOnly = true
	}
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("no permission to open %s, try with elevated privileges: %w", path, err)
		}
		return nil, err
	}

	size, err := getDeviceSize(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("size of %s: %w", path, err)
	}

	op := &diskOperation{
		f:        f,
		path:     path,
		lbaSize:  getSectorSize(f),
		sectors:  uint64(size) / sectorBytes,
		readOnly: readOnly,
		log:      d.log,
	}
	tracer.Debug().
		Str("path", path).
		Uint64("sectors", op.sectors).
		Uint64("lba_size", op.lbaSize).
		Bool("read_only", readOnly).
		Msg("device opened")
	return op, nil
}

type diskOperation struct {
	f        *os.File
	path     string
	lbaSize  uint64
	sectors  uint64
	readOnly bool
	log      *Logger
}

func (op *diskOperation) LoadPartitions() ([]RawPartition, error) {
	parts, kind, err := readPartitionTable(op.f, op.lbaSize, op.sectors)
	if err != nil {
		return nil, err
	}
	tracer.Debug().Str("table", kind).Int("partitions", len(parts)).Msg("partition table loaded")
	if tracer.GetLevel() <= zerolog.TraceLevel {
		for _, p := range parts {
			tracer.Trace().
				Str("name", p.Name).
				Uint64("offset", p.Offset).
				Uint64("size", p.Size).
				Str("content", probeContent(op.f, int64(p.Offset*sectorBytes), int64(p.Size*sectorBytes))).
				Msg("partition")
		}
	}
	return parts, nil
}

func (op *diskOperation) checkRange(offset, size uint64) error {
	if offset+size < offset || offset+size > op.sectors {
		return fmt.Errorf("range 0x%08X @ 0x%08X exceeds device size 0x%08X", size, offset, op.sectors)
	}
	return nil
}

func (op *diskOperation) checkWritable() error {
	if op.readOnly {
		return fmt.Errorf("%s is opened read-only", op.path)
	}
	return nil
}

// chunks calls fn for each transfer chunk of the range, in order.
func chunks(offset, size uint64, fn func(sector, count uint64) error) error {
	for done := uint64(0); done < size; {
		count := min(uint64(chunkSectors), size-done)
		if err := fn(offset+done, count); err != nil {
			return err
		}
		done += count
	}
	return nil
}

func (op *diskOperation) BackupPartition(offset, size uint64, filename string, verify bool) error {
	if err := op.checkRange(offset, size); err != nil {
		return err
	}

	iw, err := createImage(filename)
	if err != nil {
		return err
	}

	buf := make([]byte, chunkSectors*sectorBytes)
	err = chunks(offset, size, func(sector, count uint64) error {
		op.log.Logf("Reading flash memory at offset 0x%08X\n", sector)
		b := buf[:count*sectorBytes]
		if _, err := op.f.ReadAt(b, int64(sector*sectorBytes)); err != nil {
			return fmt.Errorf("read at sector 0x%08X: %w", sector, err)
		}
		if _, err := iw.Write(b); err != nil {
			return fmt.Errorf("write %s: %w", filename, err)
		}
		return nil
	})
	if closeErr := iw.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close %s: %w", filename, closeErr)
	}
	if err != nil {
		return err
	}

	if codec := iw.Codec(); codec != "" {
		raw, stored := iw.Written()
		op.log.Logf("Stored %d bytes as %d bytes of %s\n", raw, stored, codec)
	}

	if verify {
		return op.verify(offset, size, filename)
	}
	return nil
}

func (op *diskOperation) ErasePartition(offset, size uint64) error {
	if err := op.checkRange(offset, size); err != nil {
		return err
	}
	if err := op.checkWritable(); err != nil {
		return err
	}

	// Erased flash reads back as all ones.
	blank := bytes.Repeat([]byte{0xFF}, chunkSectors*sectorBytes)
	err := chunks(offset, size, func(sector, count uint64) error {
		op.log.Logf("Erasing flash memory at offset 0x%08X\n", sector)
		if _, err := op.f.WriteAt(blank[:count*sectorBytes], int64(sector*sectorBytes)); err != nil {
			return fmt.Errorf("erase at sector 0x%08X: %w", sector, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return op.f.Sync()
}

func (op *diskOperation) FlashImageFile(offset, size uint64, filename string, verify bool) error {
	if err := op.checkRange(offset, size); err != nil {
		return err
	}
	if err := op.checkWritable(); err != nil {
		return err
	}

	// Raw images are size checked before anything is written.
	if imageCodec(filename) == "" {
		info, err := os.Stat(filename)
		if err != nil {
			return err
		}
		if uint64(info.Size()) > size*sectorBytes {
			return fmt.Errorf("size mismatch: %s is %d bytes, partition holds %d", filename, info.Size(), size*sectorBytes)
		}
	}

	r, err := openImage(filename)
	if err != nil {
		return err
	}
	defer r.Close()

	buf := make([]byte, chunkSectors*sectorBytes)
	var eof bool
	err = chunks(offset, size, func(sector, count uint64) error {
		if eof {
			return nil
		}
		n, err := io.ReadFull(r, buf[:count*sectorBytes])
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			eof = true
		case err != nil:
			return fmt.Errorf("read %s: %w", filename, err)
		}
		if n == 0 {
			return nil
		}
		op.log.Logf("Writing flash memory at offset 0x%08X\n", sector)
		if _, err := op.f.WriteAt(buf[:n], int64(sector*sectorBytes)); err != nil {
			return fmt.Errorf("write at sector 0x%08X: %w", sector, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !eof {
		if n, _ := r.Read(buf[:1]); n > 0 {
			return fmt.Errorf("size mismatch: %s is larger than the partition (%d bytes)", filename, size*sectorBytes)
		}
	}
	if err := op.f.Sync(); err != nil {
		return err
	}

	if verify {
		return op.verify(offset, size, filename)
	}
	return nil
}

// CompareWithFile compares the range with the decoded file content and
// returns the number of differing sectors. A file shorter than the range
// is compared over its own length; a longer one is an error.
func (op *diskOperation) CompareWithFile(offset, size uint64, filename string) (int, error) {
	if err := op.checkRange(offset, size); err != nil {
		return 0, err
	}

	r, err := openImage(filename)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	fileBuf := make([]byte, chunkSectors*sectorBytes)
	devBuf := make([]byte, chunkSectors*sectorBytes)
	var mismatches int
	var eof bool
	err = chunks(offset, size, func(sector, count uint64) error {
		if eof {
			return nil
		}
		n, err := io.ReadFull(r, fileBuf[:count*sectorBytes])
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			eof = true
		case err != nil:
			return fmt.Errorf("read %s: %w", filename, err)
		}
		if n == 0 {
			return nil
		}

		op.log.Logf("Comparing flash memory at offset 0x%08X\n", sector)
		if _, err := op.f.ReadAt(devBuf[:n], int64(sector*sectorBytes)); err != nil {
			return fmt.Errorf("read at sector 0x%08X: %w", sector, err)
		}
		for i := 0; i < n; i += sectorBytes {
			end := min(i+sectorBytes, n)
			if !bytes.Equal(fileBuf[i:end], devBuf[i:end]) {
				mismatches++
				op.log.Importantf("\tSector 0x%08X differs from file\n", sector+uint64(i/sectorBytes))
			}
		}
		return nil
	})
	if err != nil {
		return mismatches, err
	}
	if !eof {
		if n, _ := r.Read(fileBuf[:1]); n > 0 {
			return mismatches, fmt.Errorf("size mismatch: %s is larger than the partition (%d bytes)", filename, size*sectorBytes)
		}
	}
	return mismatches, nil
}

func (op *diskOperation) verify(offset, size uint64, filename string) error {
	mismatches, err := op.CompareWithFile(offset, size, filename)
	if err != nil {
		return err
	}
	if mismatches != 0 {
		return fmt.Errorf("verify %s: %d sectors differ", filename, mismatches)
	}
	return nil
}

// Reboot flushes the device and has the kernel reread its partition table.
func (op *diskOperation) Reboot() error {
	if op.readOnly {
		return rereadPartitionTable(op.f)
	}
	if err := op.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", op.path, err)
	}
	return rereadPartitionTable(op.f)
}

func (op *diskOperation) Close() error {
	return op.f.Close()
}
