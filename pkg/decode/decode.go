// Package decode turns a raw 32-bit RISC-V instruction word into a
// tagged, already-sign-extended Decoded value.
//
// The source this module replaces pasted a field-extraction macro block
// into every instruction handler (one copy per R/I/S/B/U/J site). That
// duplicated the bit arithmetic dozens of times and made it easy for one
// site to drift from another. Here decoding happens exactly once per
// fetched instruction; every opcode branch in pkg/cpu consumes the same
// Decoded value by field name.
package decode

import "fmt"

// Opcode is the low 7 bits of a RISC-V instruction word.
type Opcode uint32

const (
	OpLoad    Opcode = 0x03 // LB, LH, LW, LD, LBU, LHU
	OpImm     Opcode = 0x13 // ADDI, SLTI, SLTIU, ANDI, ORI, XORI, SLLI, SRLI, SRAI
	OpAUIPC   Opcode = 0x17 // RV64I opcode; not in spec's supported set, rejected by Decode
	OpStore   Opcode = 0x23 // SB, SH, SW, SD
	OpOp      Opcode = 0x33 // ADD, SUB, SLTU, AND, OR, XOR, ...
	OpLUI     Opcode = 0x37 // LUI
	OpBranch  Opcode = 0x63 // BEQ, BNE, BLT, BGE, BLTU, BGEU
	OpJALR    Opcode = 0x67
	OpJAL     Opcode = 0x6F
	OpImm32   Opcode = 0x1B // ADDIW, SLLIW, SRLIW, SRAIW
	OpOp32    Opcode = 0x3B // ADDW, SUBW, SLLW, SRLW, SRAW
)

// Format identifies which immediate-assembly rule produced Decoded.Imm.
type Format int

const (
	FormatR Format = iota
	FormatI
	FormatS
	FormatB
	FormatU
	FormatJ
)

// Decoded is the fully extracted form of one instruction word. Fields
// that a given opcode does not use simply hold their raw bit-extracted
// value; the engine only reads the fields its opcode branch needs.
type Decoded struct {
	Raw    uint32
	Opcode Opcode
	Format Format

	Rd     uint8
	Rs1    uint8
	Rs2    uint8
	Funct3 uint8
	Funct7 uint8

	// Imm is the format's immediate, sign-extended to 64 bits per
	// spec.md §4.2. Shift amounts are derived from it by the engine
	// (6 bits for RV64 full-width shifts, 5 bits for the .W family),
	// not stored separately here.
	Imm int64
}

// IllegalInstruction is returned for any instruction word the decoder
// does not recognize: an opcode outside the supported set, or (detected
// later, by the engine) an unknown funct3/funct7 combination within a
// known opcode.
type IllegalInstruction struct {
	Raw    uint32
	Reason string
}

func (e *IllegalInstruction) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("illegal instruction 0x%08x: %s", e.Raw, e.Reason)
	}
	return fmt.Sprintf("illegal instruction 0x%08x", e.Raw)
}

// Decode classifies inst by its opcode field and extracts the registers,
// function codes, and sign-extended immediate for that opcode's format.
// Decode is pure and total: every 32-bit input produces a Decoded value
// (possibly one the engine will reject later for an unsupported
// funct3/funct7), except for opcodes outside the RV64I subset this core
// implements, which Decode rejects immediately as IllegalInstruction.
func Decode(inst uint32) (Decoded, error) {
	op := Opcode(inst & 0x7F)

	d := Decoded{
		Raw:    inst,
		Opcode: op,
		Rd:     uint8((inst >> 7) & 0x1F),
		Rs1:    uint8((inst >> 15) & 0x1F),
		Rs2:    uint8((inst >> 20) & 0x1F),
		Funct3: uint8((inst >> 12) & 0x7),
		Funct7: uint8((inst >> 25) & 0x7F),
	}

	switch op {
	case OpOp, OpOp32:
		d.Format = FormatR
		// no immediate

	case OpImm, OpImm32, OpLoad, OpJALR:
		d.Format = FormatI
		d.Imm = signExtend(uint64(inst>>20), 11)

	case OpStore:
		d.Format = FormatS
		raw := ((inst >> 25) << 5) | ((inst >> 7) & 0x1F)
		d.Imm = signExtend(uint64(raw), 11)

	case OpBranch:
		d.Format = FormatB
		raw := ((inst >> 31) << 12) |
			(((inst >> 7) & 0x1) << 11) |
			(((inst >> 25) & 0x3F) << 5) |
			(((inst >> 8) & 0xF) << 1)
		d.Imm = signExtend(uint64(raw), 12)

	case OpLUI:
		d.Format = FormatU
		raw := inst & 0xFFFFF000
		d.Imm = int64(int32(raw))

	case OpJAL:
		d.Format = FormatJ
		raw := ((inst >> 31) << 20) |
			(((inst >> 12) & 0xFF) << 12) |
			(((inst >> 20) & 0x1) << 11) |
			(((inst >> 21) & 0x3FF) << 1)
		d.Imm = signExtend(uint64(raw), 20)

	default:
		return Decoded{}, &IllegalInstruction{Raw: inst, Reason: fmt.Sprintf("unsupported opcode 0x%02x", uint32(op))}
	}

	return d, nil
}

// signExtend replicates bit `from` of v into every higher bit of a
// 64-bit result, per spec.md §4.2's "sign-extend from bit n" rule.
func signExtend(v uint64, from uint) int64 {
	shift := 63 - from
	return int64(v<<shift) >> shift
}
