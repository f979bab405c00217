package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	testDiskSectors = 64
	testPartOffset  = 8
	testPartSize    = 16
)

// newTestImage writes a disk image with one MBR partition at sector 8 and
// a recognisable byte pattern inside it.
func newTestImage(t *testing.T) string {
	t.Helper()
	disk := make([]byte, testDiskSectors*sectorBytes)
	putMBREntry(disk, 0, 0x83, testPartOffset, testPartSize)
	putSignature(disk)
	for i := testPartOffset * sectorBytes; i < (testPartOffset+testPartSize)*sectorBytes; i++ {
		disk[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, disk, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func openTestImage(t *testing.T, path string) (*diskOperation, *bytes.Buffer) {
	t.Helper()
	var logBuf bytes.Buffer
	drv := newDiskDriver(NewLogger(&logBuf, 2))
	op, err := drv.Open(Device{Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { op.Close() })
	return op.(*diskOperation), &logBuf
}

func partitionBytes(t *testing.T, path string) []byte {
	t.Helper()
	disk, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return disk[testPartOffset*sectorBytes : (testPartOffset+testPartSize)*sectorBytes]
}

func TestDiskDriver_LoadPartitions(t *testing.T) {
	op, _ := openTestImage(t, newTestImage(t))
	if op.sectors != testDiskSectors || op.lbaSize != sectorBytes {
		t.Fatalf("unexpected geometry: %d sectors of %d bytes", op.sectors, op.lbaSize)
	}
	parts, err := op.LoadPartitions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parts) != 1 || parts[0] != (RawPartition{Size: testPartSize, Offset: testPartOffset, Name: "part1"}) {
		t.Fatalf("unexpected partitions %+v", parts)
	}
}

func TestDiskDriver_OpenMissing(t *testing.T) {
	drv := newDiskDriver(NewLogger(io.Discard, 0))
	if _, err := drv.Open(Device{Path: filepath.Join(t.TempDir(), "none.img")}); err == nil {
		t.Fatalf("expected error opening a missing image")
	}
}

func TestDiskDriver_BackupAndCompare(t *testing.T) {
	img := newTestImage(t)
	op, logBuf := openTestImage(t, img)
	out := filepath.Join(t.TempDir(), "part.bin")

	if err := op.BackupPartition(testPartOffset, testPartSize, out, true); err != nil {
		t.Fatalf("backup: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, partitionBytes(t, img)) {
		t.Fatalf("backup content differs from partition")
	}
	if !strings.Contains(logBuf.String(), "Reading flash memory at offset 0x00000008") {
		t.Fatalf("expected read progress, got %q", logBuf.String())
	}

	n, err := op.CompareWithFile(testPartOffset, testPartSize, out)
	if err != nil || n != 0 {
		t.Fatalf("expected identical compare, got %d, %v", n, err)
	}

	got[0] ^= 1
	got[3*sectorBytes+7] ^= 1
	got[3*sectorBytes+9] ^= 1
	if err := os.WriteFile(out, got, 0o644); err != nil {
		t.Fatal(err)
	}
	n, err = op.CompareWithFile(testPartOffset, testPartSize, out)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 differing sectors, got %d", n)
	}
	if !strings.Contains(logBuf.String(), "Sector 0x0000000B differs from file") {
		t.Fatalf("expected mismatch report, got %q", logBuf.String())
	}
}

func TestDiskDriver_CompareShortAndLongFiles(t *testing.T) {
	img := newTestImage(t)
	op, _ := openTestImage(t, img)
	dir := t.TempDir()

	short := filepath.Join(dir, "short.bin")
	if err := os.WriteFile(short, partitionBytes(t, img)[:1000], 0o644); err != nil {
		t.Fatal(err)
	}
	if n, err := op.CompareWithFile(testPartOffset, testPartSize, short); err != nil || n != 0 {
		t.Fatalf("short file should compare over its length, got %d, %v", n, err)
	}

	long := filepath.Join(dir, "long.bin")
	if err := os.WriteFile(long, make([]byte, (testPartSize+1)*sectorBytes), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := op.CompareWithFile(testPartOffset, testPartSize, long); err == nil || !strings.Contains(err.Error(), "size mismatch") {
		t.Fatalf("expected size mismatch, got %v", err)
	}
}

func TestDiskDriver_Erase(t *testing.T) {
	img := newTestImage(t)
	op, _ := openTestImage(t, img)

	if err := op.ErasePartition(testPartOffset, testPartSize); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if !bytes.Equal(partitionBytes(t, img), bytes.Repeat([]byte{0xFF}, testPartSize*sectorBytes)) {
		t.Fatalf("expected erased partition to read back as 0xFF")
	}

	disk, _ := os.ReadFile(img)
	if disk[510] != 0x55 || disk[(testPartOffset+testPartSize)*sectorBytes] != 0 {
		t.Fatalf("erase touched data outside the partition")
	}
}

func TestDiskDriver_Flash(t *testing.T) {
	img := newTestImage(t)
	op, _ := openTestImage(t, img)
	dir := t.TempDir()

	data := bytes.Repeat([]byte("flash!"), 300)
	src := filepath.Join(dir, "new.img")
	if err := os.WriteFile(src, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := op.FlashImageFile(testPartOffset, testPartSize, src, true); err != nil {
		t.Fatalf("flash: %v", err)
	}
	part := partitionBytes(t, img)
	if !bytes.Equal(part[:len(data)], data) {
		t.Fatalf("flashed content differs")
	}
	if part[len(data)] != byte((testPartOffset*sectorBytes+len(data))%251) {
		t.Fatalf("bytes past a short image must be left alone")
	}
}

func TestDiskDriver_FlashTooLarge(t *testing.T) {
	img := newTestImage(t)
	op, _ := openTestImage(t, img)
	before := append([]byte(nil), partitionBytes(t, img)...)

	src := filepath.Join(t.TempDir(), "big.img")
	if err := os.WriteFile(src, make([]byte, (testPartSize+1)*sectorBytes), 0o644); err != nil {
		t.Fatal(err)
	}
	err := op.FlashImageFile(testPartOffset, testPartSize, src, false)
	if err == nil || !strings.HasPrefix(err.Error(), "size mismatch") {
		t.Fatalf("expected size mismatch, got %v", err)
	}
	if !bytes.Equal(partitionBytes(t, img), before) {
		t.Fatalf("oversized raw image must not be written")
	}
}

func TestDiskDriver_OutOfRange(t *testing.T) {
	op, _ := openTestImage(t, newTestImage(t))
	if err := op.ErasePartition(testDiskSectors-4, 8); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestDiskDriver_CompressedRoundTrip(t *testing.T) {
	for _, ext := range []string{".gz", ".zlib", ".bz2", ".snappy", ".s2", ".zst"} {
		t.Run(ext, func(t *testing.T) {
			img := newTestImage(t)
			op, logBuf := openTestImage(t, img)
			want := append([]byte(nil), partitionBytes(t, img)...)

			out := filepath.Join(t.TempDir(), "part.bin"+ext)
			if err := op.BackupPartition(testPartOffset, testPartSize, out, true); err != nil {
				t.Fatalf("backup: %v", err)
			}
			if !strings.Contains(logBuf.String(), "bytes of "+imageCodec(out)) {
				t.Fatalf("expected compression summary, got %q", logBuf.String())
			}

			if err := op.ErasePartition(testPartOffset, testPartSize); err != nil {
				t.Fatalf("erase: %v", err)
			}
			if err := op.FlashImageFile(testPartOffset, testPartSize, out, true); err != nil {
				t.Fatalf("flash: %v", err)
			}
			if !bytes.Equal(partitionBytes(t, img), want) {
				t.Fatalf("restored content differs")
			}
		})
	}
}

func TestDiskDriver_ReadOnly(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	img := newTestImage(t)
	if err := os.Chmod(img, 0o444); err != nil {
		t.Fatal(err)
	}
	op, _ := openTestImage(t, img)
	if !op.readOnly {
		t.Fatalf("expected read-only fallback")
	}
	if err := op.ErasePartition(testPartOffset, testPartSize); err == nil || !strings.Contains(err.Error(), "read-only") {
		t.Fatalf("expected read-only error, got %v", err)
	}
	if _, err := op.LoadPartitions(); err != nil {
		t.Fatalf("reading must still work: %v", err)
	}
}

func TestChunks(t *testing.T) {
	var got [][2]uint64
	err := chunks(10, chunkSectors*2+5, func(sector, count uint64) error {
		got = append(got, [2]uint64{sector, count})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]uint64{{10, chunkSectors}, {10 + chunkSectors, chunkSectors}, {10 + 2*chunkSectors, 5}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
