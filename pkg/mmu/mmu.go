// Package mmu implements the physical memory and memory-mapped I/O that
// every program-observable read and write in the engine goes through.
//
// The bounds predicate, the UART write-one-byte special case, and the
// bit-exact `addr+len >= size` boundary are all load-bearing details of
// spec.md §4.1 and are preserved exactly, off-by-one included.
package mmu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// UARTBase is the single memory-mapped device address. A store whose
// destination equals exactly UARTBase forwards one byte to the host
// output sink; it is not a range.
const UARTBase = 0x10000000

// ErrAllocationFailed is returned by New when the host cannot provide
// the requested backing buffer.
var ErrAllocationFailed = errors.New("mmu: allocation failed")

// FaultKind distinguishes the two ways a memory access can be invalid.
type FaultKind int

const (
	FaultOverflow FaultKind = iota
	FaultOutOfBounds
)

func (k FaultKind) String() string {
	switch k {
	case FaultOverflow:
		return "overflow"
	case FaultOutOfBounds:
		return "out of bounds"
	default:
		return "unknown"
	}
}

// MemoryFault is raised by the MMU whenever a requested [addr, addr+len)
// span is invalid. Reads that fault still zero-fill the caller's buffer
// before returning the fault (spec.md §4.1, §9 note 5): the fault value
// is the externally observable outcome, the error is the diagnostic.
type MemoryFault struct {
	Kind FaultKind
	Addr uint64
	Len  uint64
}

func (f *MemoryFault) Error() string {
	return fmt.Sprintf("memory fault (%s): addr=0x%x len=%d", f.Kind, f.Addr, f.Len)
}

// DeviceReadFunc handles a read that falls inside a registered device
// range. It returns the bytes to hand back to the caller.
type DeviceReadFunc func(addr uint64, length int) []byte

// DeviceWriteFunc handles a write that falls inside a registered device
// range.
type DeviceWriteFunc func(addr uint64, data []byte)

// deviceRegion is one entry in the MMU's address-range dispatch table,
// the typed replacement the source's §9 redesign note asks for in place
// of hardcoding UART handling into the write path. Grounded on the
// teacher's SystemBus.IORegion: a start/end pair plus optional read and
// write callbacks.
type deviceRegion struct {
	start   uint64
	end     uint64 // inclusive
	onRead  DeviceReadFunc
	onWrite DeviceWriteFunc
}

// pageSize and pageMask bucket device registrations the same way the
// teacher's memory bus does, so a lookup only scans the handful of
// devices that can plausibly cover a given address instead of every
// device ever registered.
const (
	pageSize = 0x1000
	pageMask = ^uint64(pageSize - 1)
)

// Memory is the engine's physical RAM plus its device registry. It owns
// a contiguous byte buffer of declared size, addressed from offset 0.
type Memory struct {
	ram     []byte
	size    uint64
	devices map[uint64][]*deviceRegion
}

// New allocates size bytes of zeroed RAM and an empty device registry.
func New(size uint64) (*Memory, error) {
	if size == 0 {
		return nil, ErrAllocationFailed
	}
	ram := make([]byte, size)
	if uint64(len(ram)) != size {
		return nil, ErrAllocationFailed
	}
	return &Memory{
		ram:     ram,
		size:    size,
		devices: make(map[uint64][]*deviceRegion),
	}, nil
}

// Size reports the number of bytes backing this Memory.
func (m *Memory) Size() uint64 {
	return m.size
}

// LoadImage copies data into RAM at offset, bypassing device dispatch
// entirely. It exists for pkg/loader: populating the initial image is a
// host-side bulk operation, not a guest store instruction, so it is
// never subject to the UART special case. The same bounds predicate as
// Write still applies.
func (m *Memory) LoadImage(offset uint64, data []byte) error {
	if fault := m.checkBounds(offset, uint64(len(data))); fault != nil {
		return fault
	}
	copy(m.ram[offset:offset+uint64(len(data))], data)
	return nil
}

// MapDevice registers a device covering [start, end] (inclusive) with
// the MMU. onRead may be nil for a write-only device such as the UART
// sink; onWrite may be nil for a read-only device.
func (m *Memory) MapDevice(start, end uint64, onRead DeviceReadFunc, onWrite DeviceWriteFunc) {
	region := &deviceRegion{start: start, end: end, onRead: onRead, onWrite: onWrite}
	first := start & pageMask
	last := end & pageMask
	for page := first; page <= last; page += pageSize {
		m.devices[page] = append(m.devices[page], region)
		if page+pageSize < page {
			break // overflow guard, unreachable for any sane device range
		}
	}
}

// deviceFor returns the device region covering addr, if any.
func (m *Memory) deviceFor(addr uint64) *deviceRegion {
	for _, region := range m.devices[addr&pageMask] {
		if addr >= region.start && addr <= region.end {
			return region
		}
	}
	return nil
}

// checkBounds applies the spec's bit-exact predicate:
//
//	fail if  addr + len overflows u64
//	fail if  addr + len  >= size
//	otherwise ok
//
// The strict `>=` (not `>`) is preserved from the source: an access that
// ends exactly at size faults, so the final byte size-1 is not
// addressable and the last usable byte is size-2. This is called
// out as suspect in spec.md §9 note 2 but kept for compatibility.
func (m *Memory) checkBounds(addr, length uint64) *MemoryFault {
	end := addr + length
	if end < addr {
		return &MemoryFault{Kind: FaultOverflow, Addr: addr, Len: length}
	}
	if end >= m.size {
		return &MemoryFault{Kind: FaultOutOfBounds, Addr: addr, Len: length}
	}
	return nil
}

// Read copies length bytes starting at addr into a freshly allocated
// slice. On a bounds or overflow failure the returned slice is
// zero-filled and the fault is returned; no partial read is observable.
func (m *Memory) Read(addr uint64, length int) ([]byte, error) {
	out := make([]byte, length)
	if fault := m.checkBounds(addr, uint64(length)); fault != nil {
		return out, fault
	}
	if region := m.deviceFor(addr); region != nil && region.onRead != nil {
		copy(out, region.onRead(addr, length))
		return out, nil
	}
	copy(out, m.ram[addr:addr+uint64(length)])
	return out, nil
}

// Write copies data into RAM at addr, unless addr is exactly UARTBase,
// in which case exactly one byte (the first byte of data) is forwarded
// to the registered UART device instead of being copied byte-for-byte.
// The UART address lives outside RAM entirely (spec.md §6's memory map
// puts it at 0x10000000, far above any reference RAM size), so this path
// never touches the backing buffer and never bounds-faults: RAM is
// unchanged by a UART write, by construction. On a bounds or overflow
// failure on the RAM path, RAM is left unmodified.
func (m *Memory) Write(addr uint64, data []byte) error {
	if addr == UARTBase {
		if len(data) == 0 {
			return nil
		}
		if region := m.deviceFor(addr); region != nil && region.onWrite != nil {
			region.onWrite(addr, data[:1])
		}
		return nil
	}

	if fault := m.checkBounds(addr, uint64(len(data))); fault != nil {
		return fault
	}
	if region := m.deviceFor(addr); region != nil && region.onWrite != nil {
		region.onWrite(addr, data)
	}
	copy(m.ram[addr:addr+uint64(len(data))], data)
	return nil
}

// ReadUint64 / ReadUint32 / ReadUint16 / ReadUint8 and their Write
// counterparts are little-endian fixed-width conveniences used by
// pkg/cpu for every load/store opcode, matching RV64's endianness
// (spec.md §4.1).

func (m *Memory) ReadUint8(addr uint64) (uint8, error) {
	b, err := m.Read(addr, 1)
	return b[0], err
}

func (m *Memory) ReadUint16(addr uint64) (uint16, error) {
	b, err := m.Read(addr, 2)
	return binary.LittleEndian.Uint16(b), err
}

func (m *Memory) ReadUint32(addr uint64) (uint32, error) {
	b, err := m.Read(addr, 4)
	return binary.LittleEndian.Uint32(b), err
}

func (m *Memory) ReadUint64(addr uint64) (uint64, error) {
	b, err := m.Read(addr, 8)
	return binary.LittleEndian.Uint64(b), err
}

func (m *Memory) WriteUint8(addr uint64, v uint8) error {
	return m.Write(addr, []byte{v})
}

func (m *Memory) WriteUint16(addr uint64, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return m.Write(addr, b[:])
}

func (m *Memory) WriteUint32(addr uint64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return m.Write(addr, b[:])
}

func (m *Memory) WriteUint64(addr uint64, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return m.Write(addr, b[:])
}
