package decode

import "testing"

// encodeR builds an R-type word: opcode | rd<<7 | funct3<<12 | rs1<<15 | rs2<<20 | funct7<<25.
func encodeR(opcode Opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return uint32(opcode) | rd<<7 | funct3<<12 | rs1<<15 | rs2<<20 | funct7<<25
}

// encodeI builds an I-type word with a 12-bit immediate.
func encodeI(opcode Opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return uint32(opcode) | rd<<7 | funct3<<12 | rs1<<15 | (uint32(imm)&0xFFF)<<20
}

func TestDecode_ITypeSignExtension(t *testing.T) {
	// ADDI x2, x1, -1 : imm = 0xFFF
	inst := encodeI(OpImm, 2, 0, 1, -1)
	d, err := Decode(inst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Imm != -1 {
		t.Fatalf("Imm = %d, want -1", d.Imm)
	}
	if d.Rd != 2 || d.Rs1 != 1 {
		t.Fatalf("Rd=%d Rs1=%d, want 2,1", d.Rd, d.Rs1)
	}
}

func TestDecode_RType(t *testing.T) {
	// ADD x3, x1, x2
	inst := encodeR(OpOp, 3, 0, 1, 2, 0)
	d, err := Decode(inst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Rd != 3 || d.Rs1 != 1 || d.Rs2 != 2 || d.Funct3 != 0 || d.Funct7 != 0 {
		t.Fatalf("unexpected decode: %+v", d)
	}
}

func TestDecode_UType_LUI(t *testing.T) {
	// LUI x1, 0x80000 -> raw imm bits set, top bit of imm31 -> sign extension
	inst := uint32(OpLUI) | 1<<7 | 0x80000<<12
	d, err := Decode(inst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := int64(-0x80000000) // 0x80000000 sign-extended from bit 31
	if d.Imm != want {
		t.Fatalf("Imm = 0x%x, want 0x%x", d.Imm, want)
	}
}

func TestDecode_JType_JAL(t *testing.T) {
	// JAL x1, 0x20 : imm bits distributed per spec.md table.
	// imm = 0x20 = 0b10_0000; bit5 set (maps to inst[25]), rest zero.
	imm := int32(0x20)
	inst := uint32(OpJAL) | 1<<7
	inst |= uint32(imm>>1&0x3FF) << 21 // imm[10:1]
	inst |= uint32(imm>>11&0x1) << 20  // imm[11]
	inst |= uint32(imm>>12&0xFF) << 12 // imm[19:12]
	inst |= uint32(imm>>20&0x1) << 31  // imm[20]

	d, err := Decode(inst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Imm != 0x20 {
		t.Fatalf("Imm = 0x%x, want 0x20", d.Imm)
	}
	if d.Rd != 1 {
		t.Fatalf("Rd = %d, want 1", d.Rd)
	}
}

func TestDecode_BType_Negative(t *testing.T) {
	// BNE x1, x2, -0x40 : imm = -64
	imm := int32(-64)
	inst := uint32(OpBranch) | 1<<15 | 2<<20 | 1<<12 // funct3=1 (BNE)
	inst |= uint32(imm>>11&0x1) << 7                 // imm[11]
	inst |= uint32(imm>>1&0xF) << 8                  // imm[4:1]
	inst |= uint32(imm>>5&0x3F) << 25                // imm[10:5]
	inst |= uint32(imm>>12&0x1) << 31                // imm[12]

	d, err := Decode(inst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Imm != -64 {
		t.Fatalf("Imm = %d, want -64", d.Imm)
	}
}

func TestDecode_IllegalOpcode(t *testing.T) {
	_, err := Decode(0x7F) // all opcode bits set, not a supported opcode
	if err == nil {
		t.Fatal("expected an IllegalInstruction error")
	}
	if _, ok := err.(*IllegalInstruction); !ok {
		t.Fatalf("error = %T, want *IllegalInstruction", err)
	}
}

func TestDecode_RegisterZeroIsJustAnIndex(t *testing.T) {
	// The decoder does not special-case register 0; that is the
	// engine's responsibility (spec.md §3).
	inst := encodeR(OpOp, 0, 0, 0, 0, 0)
	d, err := Decode(inst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Rd != 0 || d.Rs1 != 0 || d.Rs2 != 0 {
		t.Fatalf("unexpected decode: %+v", d)
	}
}
