package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestImageCodec(t *testing.T) {
	tests := map[string]string{
		"boot.img":       "",
		"boot.img.gz":    "gzip",
		"BOOT.IMG.GZ":    "gzip",
		"boot.zlib":      "zlib",
		"boot.bz2":       "bzip2",
		"boot.snappy":    "snappy",
		"boot.s2":        "s2",
		"boot.zst":       "zstd",
		"dir.gz/boot":    "",
		"partflash-1.gz": "gzip",
	}
	for name, want := range tests {
		if got := imageCodec(name); got != want {
			t.Errorf("imageCodec(%q): expected %q, got %q", name, want, got)
		}
	}
}

func TestImageRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("rockchip "), 4096)
	for _, ext := range []string{"", ".gz", ".zlib", ".bz2", ".snappy", ".s2", ".zst"} {
		t.Run("ext"+ext, func(t *testing.T) {
			name := filepath.Join(t.TempDir(), "image.bin"+ext)
			iw, err := createImage(name)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := iw.Write(payload); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := iw.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			raw, stored := iw.Written()
			if raw != int64(len(payload)) {
				t.Fatalf("expected %d raw bytes, got %d", len(payload), raw)
			}
			info, err := os.Stat(name)
			if err != nil {
				t.Fatal(err)
			}
			if stored != info.Size() {
				t.Fatalf("stored count %d does not match file size %d", stored, info.Size())
			}
			if ext != "" && stored >= raw {
				t.Fatalf("expected %s to shrink a repetitive payload, got %d of %d", iw.Codec(), stored, raw)
			}

			r, err := openImage(name)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer r.Close()
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("decoded content differs")
			}
		})
	}
}

func TestUnsupportedCodec(t *testing.T) {
	if _, err := createCompressionWriter("lzma", io.Discard); !errors.Is(err, ErrUnsupportedCodec) {
		t.Fatalf("expected ErrUnsupportedCodec, got %v", err)
	}
	if _, err := createDecompressionReader("lzma", bytes.NewReader(nil)); !errors.Is(err, ErrUnsupportedCodec) {
		t.Fatalf("expected ErrUnsupportedCodec, got %v", err)
	}
}

func TestOpenImageCorrupt(t *testing.T) {
	name := filepath.Join(t.TempDir(), "bad.gz")
	if err := os.WriteFile(name, []byte("not gzip at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := openImage(name); err == nil {
		t.Fatalf("expected error for corrupt gzip header")
	}
}
