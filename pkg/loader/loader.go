// Package loader is the image loader the core explicitly treats as an
// external collaborator (spec.md §1): it opens a host file and copies up
// to a fixed prefix into a pre-populated Memory at a caller-chosen
// offset. The engine never imports this package; only cmd/rv64i does.
package loader

import (
	"fmt"
	"io"
	"os"

	"github.com/elttil/r5/pkg/mmu"
)

// MaxImageSize bounds how much of a host file is ever copied into guest
// RAM in one call, regardless of the file's actual size. A runaway image
// still fails cleanly at mem.LoadImage's bounds check if it does not fit
// the declared RAM, but this cap keeps a maliciously large file from
// being read into host memory at all before that check runs.
const MaxImageSize = 64 * 1024 * 1024

// LoadFile opens path and copies up to MaxImageSize bytes into mem at
// offset.
func LoadFile(mem *mmu.Memory, path string, offset uint64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("loader: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, MaxImageSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, fmt.Errorf("loader: read %s: %w", path, err)
	}

	if err := mem.LoadImage(offset, buf[:n]); err != nil {
		return 0, fmt.Errorf("loader: image of %d bytes does not fit at offset 0x%x: %w", n, offset, err)
	}
	return n, nil
}
