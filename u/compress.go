package u

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/kjk/kvfile/atomicfile"
)

// Compression identifies how a file on disk is compressed
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionBrotli
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionBrotli:
		return "brotli"
	}
	return "none"
}

// CompressionForPath picks compression based on file extension:
// .gz, .zst / .zstd, .br. Anything else is not compressed.
// TODO: could sniff file content instead of checking file extension
func CompressionForPath(path string) Compression {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gz":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	case ".br":
		return CompressionBrotli
	}
	return CompressionNone
}

func getErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func zstdNewWriter(dst io.Writer) (*zstd.Encoder, error) {
	// zstd.SpeedBestCompression is much slower and not much better
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

// CompressData compresses d with c. CompressionNone returns d as is.
func CompressData(d []byte, c Compression) ([]byte, error) {
	var dst bytes.Buffer
	var w io.WriteCloser
	switch c {
	case CompressionNone:
		return d, nil
	case CompressionGzip:
		gw, err := gzip.NewWriterLevel(&dst, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		w = gw
	case CompressionZstd:
		zw, err := zstdNewWriter(&dst)
		if err != nil {
			return nil, err
		}
		w = zw
	case CompressionBrotli:
		w = brotli.NewWriterLevel(&dst, brotli.DefaultCompression)
	default:
		return nil, fmt.Errorf("unknown compression %d", int(c))
	}
	_, err := w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

// DecompressData reverses CompressData
func DecompressData(d []byte, c Compression) ([]byte, error) {
	r := bytes.NewReader(d)
	switch c {
	case CompressionNone:
		return d, nil
	case CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case CompressionBrotli:
		return io.ReadAll(brotli.NewReader(r))
	}
	return nil, fmt.Errorf("unknown compression %d", int(c))
}

// ReadFileMaybeCompressed reads a file and decompresses it
// if the extension says it's compressed
func ReadFileMaybeCompressed(path string) ([]byte, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecompressData(d, CompressionForPath(path))
}

// WriteFileMaybeCompressed compresses data according to the extension
// of path and atomically writes it. Creates the directory if needed.
func WriteFileMaybeCompressed(path string, data []byte, perm os.FileMode) error {
	d, err := CompressData(data, CompressionForPath(path))
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return atomicfile.WriteFile(path, d, perm)
}
