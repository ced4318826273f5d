package substrate

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/roach88/pyrewind/internal/ir"
)

const pageSize = 4096

// Image is a sparse, page-granular memory image. It is not safe for
// concurrent use; Replayer guards its own Image.
type Image struct {
	pages map[uint64][]byte
}

// NewImage returns an empty image with no mapped pages.
func NewImage() *Image {
	return &Image{pages: make(map[uint64][]byte)}
}

func pageBase(addr uint64) uint64 {
	return addr &^ (pageSize - 1)
}

// MapRange maps every page touched by [addr, addr+n) zero-filled.
func (m *Image) MapRange(addr uint64, n int) {
	if n <= 0 {
		return
	}
	end := addr + uint64(n)
	for base := pageBase(addr); base < end; base += pageSize {
		if _, ok := m.pages[base]; !ok {
			m.pages[base] = make([]byte, pageSize)
		}
	}
}

// Read returns a copy of n bytes at addr.
func (m *Image) Read(addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read size %d", n)
	}
	out := make([]byte, n)
	for done := 0; done < n; {
		cur := addr + uint64(done)
		page, ok := m.pages[pageBase(cur)]
		if !ok {
			return nil, fmt.Errorf("read 0x%x: %w", cur, ErrUnmapped)
		}
		off := int(cur - pageBase(cur))
		done += copy(out[done:], page[off:])
	}
	return out, nil
}

// Write stores data at addr. Every page written must be mapped.
func (m *Image) Write(addr uint64, data []byte) error {
	for done := 0; done < len(data); {
		cur := addr + uint64(done)
		page, ok := m.pages[pageBase(cur)]
		if !ok {
			return fmt.Errorf("write 0x%x: %w", cur, ErrUnmapped)
		}
		off := int(cur - pageBase(cur))
		done += copy(page[off:], data[done:])
	}
	return nil
}

// Swap checks that the bytes at addr equal expect, then writes data.
func (m *Image) Swap(addr uint64, expect, data []byte) error {
	cur, err := m.Read(addr, len(expect))
	if err != nil {
		return err
	}
	if !bytes.Equal(cur, expect) {
		return fmt.Errorf("write 0x%x: %w", addr, ErrDiverged)
	}
	return m.Write(addr, data)
}

// Pages returns the mapped pages in address order.
func (m *Image) Pages() []ir.Segment {
	bases := make([]uint64, 0, len(m.pages))
	for b := range m.pages {
		bases = append(bases, b)
	}
	slices.Sort(bases)
	out := make([]ir.Segment, len(bases))
	for i, b := range bases {
		out[i] = ir.Segment{Addr: b, Data: m.pages[b]}
	}
	return out
}

// ReadUint reads a little-endian unsigned integer of size 1, 2, 4 or 8.
func (m *Image) ReadUint(addr uint64, size int) (uint64, error) {
	b, err := m.Read(addr, size)
	if err != nil {
		return 0, err
	}
	return DecodeUint(b)
}

// DecodeUint decodes a little-endian unsigned integer of size 1, 2, 4 or 8.
func DecodeUint(b []byte) (uint64, error) {
	switch len(b) {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	default:
		return 0, fmt.Errorf("unsupported integer size %d", len(b))
	}
}
