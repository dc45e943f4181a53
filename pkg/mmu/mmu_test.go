package mmu

import (
	"bytes"
	"testing"
)

func TestNew_ZeroSizeFails(t *testing.T) {
	if _, err := New(0); err != ErrAllocationFailed {
		t.Fatalf("err = %v, want ErrAllocationFailed", err)
	}
}

func TestReadWrite_RoundTrip(t *testing.T) {
	mem, err := New(1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := mem.WriteUint64(0x10, 0xDEADBEEFCAFEBABE); err != nil {
		t.Fatalf("WriteUint64: %v", err)
	}
	got, err := mem.ReadUint64(0x10)
	if err != nil {
		t.Fatalf("ReadUint64: %v", err)
	}
	if got != 0xDEADBEEFCAFEBABE {
		t.Fatalf("got 0x%x, want 0xDEADBEEFCAFEBABE", got)
	}
}

func TestRead_OutOfBoundsZeroFills(t *testing.T) {
	mem, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := mem.Read(10, 8) // 10+8=18 >= size(16)
	if err == nil {
		t.Fatal("expected a fault")
	}
	fault, ok := err.(*MemoryFault)
	if !ok {
		t.Fatalf("err = %T, want *MemoryFault", err)
	}
	if fault.Kind != FaultOutOfBounds {
		t.Fatalf("Kind = %v, want FaultOutOfBounds", fault.Kind)
	}
	for _, b := range out {
		if b != 0 {
			t.Fatalf("out not zero-filled: %v", out)
		}
	}
}

func TestBounds_StrictGreaterOrEqual(t *testing.T) {
	// spec.md §4.1: addr+len >= size faults even when addr+len == size
	// exactly (the preserved off-by-one), so the last addressable byte
	// is size-2 and the byte at size-1 is not reachable.
	mem, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := mem.Read(14, 1); err != nil {
		t.Fatalf("Read(14,1) should succeed (last addressable byte): %v", err)
	}
	if _, err := mem.Read(15, 2); err == nil {
		t.Fatal("Read(15,2) should fault: 15+2=17 >= 16")
	}
	// addr+len == size exactly still faults under the preserved >= rule.
	if _, err := mem.Read(8, 8); err == nil {
		t.Fatal("Read(8,8) should fault: 8+8=16 >= 16")
	}
}

func TestWrite_OverflowFaults(t *testing.T) {
	mem, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	hugeAddr := ^uint64(0) - 2 // addr + 8 overflows u64
	if err := mem.Write(hugeAddr, make([]byte, 8)); err == nil {
		t.Fatal("expected overflow fault")
	} else if f, ok := err.(*MemoryFault); !ok || f.Kind != FaultOverflow {
		t.Fatalf("err = %v, want FaultOverflow", err)
	}
}

func TestUARTWrite_ForwardsOneByteAndLeavesRAMUnchanged(t *testing.T) {
	mem, err := New(1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var sink bytes.Buffer
	mem.MapDevice(UARTBase, UARTBase, nil, func(_ uint64, data []byte) {
		sink.Write(data)
	})
	before := append([]byte(nil), mem.ram...)

	if err := mem.WriteUint32(UARTBase, 0x41); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if sink.String() != "A" {
		t.Fatalf("sink = %q, want %q", sink.String(), "A")
	}
	if !bytes.Equal(before, mem.ram) {
		t.Fatalf("RAM mutated by a UART write, want unchanged")
	}
}

func TestLoadImage_BypassesUARTSpecialCase(t *testing.T) {
	mem, err := New(1 << 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	img := []byte{1, 2, 3, 4}
	if err := mem.LoadImage(0x1000, img); err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	got, err := mem.Read(0x1000, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, img) {
		t.Fatalf("got %v, want %v", got, img)
	}
}
