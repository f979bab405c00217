package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// ErrUnsupportedCodec is returned for an unknown compression algorithm.
var ErrUnsupportedCodec = errors.New("unsupported compression algorithm")

type countingWriter struct {
	w     io.Writer
	count int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.count += int64(n)
	return n, err
}

// imageCodec returns the compression algorithm implied by the file
// extension, or "" for raw images.
func imageCodec(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".gz":
		return "gzip"
	case ".zlib":
		return "zlib"
	case ".bz2":
		return "bzip2"
	case ".snappy":
		return "snappy"
	case ".s2":
		return "s2"
	case ".zst":
		return "zstd"
	default:
		return ""
	}
}

// createCompressionWriter creates a compression writer based on the algorithm
func createCompressionWriter(algorithm string, output io.Writer) (io.WriteCloser, error) {
	switch algorithm {
	case "gzip":
		return gzip.NewWriter(output), nil
	case "zlib":
		return zlib.NewWriter(output), nil
	case "bzip2":
		return bzip2.NewWriter(output, &bzip2.WriterConfig{})
	case "snappy":
		return snappy.NewBufferedWriter(output), nil
	case "s2":
		return s2.NewWriter(output), nil
	case "zstd":
		return zstd.NewWriter(output)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, algorithm)
	}
}

// createDecompressionReader is the inverse of createCompressionWriter.
func createDecompressionReader(algorithm string, input io.Reader) (io.ReadCloser, error) {
	switch algorithm {
	case "gzip":
		return gzip.NewReader(input)
	case "zlib":
		return zlib.NewReader(input)
	case "bzip2":
		return bzip2.NewReader(input, &bzip2.ReaderConfig{})
	case "snappy":
		return io.NopCloser(snappy.NewReader(input)), nil
	case "s2":
		return io.NopCloser(s2.NewReader(input)), nil
	case "zstd":
		dec, err := zstd.NewReader(input)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, algorithm)
	}
}

// imageWriter writes an image file, compressing it when the name asks for it.
type imageWriter struct {
	file  *os.File
	cw    *countingWriter
	enc   io.WriteCloser
	codec string
	raw   int64
}

// createImage creates filename for writing partition content.
func createImage(filename string) (*imageWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	iw := &imageWriter{file: f, cw: &countingWriter{w: f}, codec: imageCodec(filename)}
	if iw.codec != "" {
		iw.enc, err = createCompressionWriter(iw.codec, iw.cw)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to create compression writer: %w", err)
		}
	}
	return iw, nil
}

func (iw *imageWriter) Write(p []byte) (int, error) {
	var n int
	var err error
	if iw.enc != nil {
		n, err = iw.enc.Write(p)
	} else {
		n, err = iw.cw.Write(p)
	}
	iw.raw += int64(n)
	return n, err
}

// Written returns the uncompressed and on-disk byte counts.
func (iw *imageWriter) Written() (raw, stored int64) {
	return iw.raw, iw.cw.count
}

// Codec returns the compression algorithm in use, "" for raw.
func (iw *imageWriter) Codec() string {
	return iw.codec
}

func (iw *imageWriter) Close() error {
	var encErr error
	if iw.enc != nil {
		encErr = iw.enc.Close()
	}
	if err := iw.file.Close(); err != nil {
		return err
	}
	return encErr
}

type imageReader struct {
	io.Reader
	dec  io.ReadCloser
	file *os.File
}

// openImage opens filename for reading its decoded partition content.
func openImage(filename string) (io.ReadCloser, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	codec := imageCodec(filename)
	if codec == "" {
		return f, nil
	}
	dec, err := createDecompressionReader(codec, f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open %s image %s: %w", codec, filename, err)
	}
	return &imageReader{Reader: dec, dec: dec, file: f}, nil
}

func (ir *imageReader) Close() error {
	_ = ir.dec.Close()
	return ir.file.Close()
}
