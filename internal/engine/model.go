package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrModelNotFound means no model file exists for the requested size.
	ErrModelNotFound = errors.New("model not found")
	// ErrInvalidModel means the file is not a ggml/gguf whisper model.
	ErrInvalidModel = errors.New("invalid model file")
)

const ggmlMagic uint32 = 0x67676d6c

// Handle is a loaded, validated model.
type Handle struct {
	Size     string
	Path     string
	Bytes    int64
	LoadedAt time.Time
}

// ModelFileNames lists the file names tried for size, in order.
func ModelFileNames(size string) []string {
	if size == "large" {
		return []string{"ggml-large-v3.bin", "ggml-large-v2.bin", "ggml-large.bin"}
	}
	return []string{"ggml-" + size + ".bin"}
}

// resolveModel finds the model file for size in dir.
func resolveModel(dir, explicit, size string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s", ErrModelNotFound, explicit)
		}
		return explicit, nil
	}
	for _, name := range ModelFileNames(size) {
		p := filepath.Join(dir, name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s in %s", ErrModelNotFound, ModelFileNames(size)[0], dir)
}

// validateHeader checks the ggml or gguf magic at the start of r.
func validateHeader(r io.Reader) error {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if string(head[:]) == "GGUF" || binary.LittleEndian.Uint32(head[:]) == ggmlMagic {
		return nil
	}
	return fmt.Errorf("%w: bad magic %x", ErrInvalidModel, head)
}

// warm reads the whole file so the first inference does not pay for disk
// I/O. It stops early when ctx is done.
func warm(ctx context.Context, f *os.File) (int64, error) {
	buf := make([]byte, 4<<20)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := f.Read(buf)
		total += int64(n)
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
