package cpu

import (
	"fmt"

	"github.com/elttil/r5/pkg/decode"
	"github.com/elttil/r5/pkg/mmu"
)

// funct3 values shared by several opcodes below.
const (
	f3ADDSUB = 0x0
	f3SLL    = 0x1
	f3SLT    = 0x2
	f3SLTU   = 0x3
	f3XOR    = 0x4
	f3SR     = 0x5 // SRL or SRA, distinguished by funct7's top bit
	f3OR     = 0x6
	f3AND    = 0x7

	f3LB  = 0x0
	f3LH  = 0x1
	f3LW  = 0x2
	f3LD  = 0x3
	f3LBU = 0x4
	f3LHU = 0x5

	f3SB = 0x0
	f3SH = 0x1
	f3SW = 0x2
	f3SD = 0x3

	f3BEQ  = 0x0
	f3BNE  = 0x1
	f3BLT  = 0x4
	f3BGE  = 0x5
	f3BLTU = 0x6
	f3BGEU = 0x7
)

// funct7 top bit: set selects the arithmetic/subtract variant of an
// otherwise funct3-identical pair (SRA vs SRL, SUB vs ADD).
const funct7Alt = 0x20

// execute dispatches one decoded instruction and reports whether it set
// PC directly (a taken branch or a jump). The caller (Step) advances PC
// by InstructionWidth itself when it did not.
func (e *Engine) execute(mem *mmu.Memory, d decode.Decoded) (branched bool, err error) {
	switch d.Opcode {
	case decode.OpOp:
		return false, e.execOp(d)
	case decode.OpImm:
		return false, e.execOpImm(d)
	case decode.OpOp32:
		return false, e.execOp32(d)
	case decode.OpImm32:
		return false, e.execOpImm32(d)
	case decode.OpLUI:
		e.setReg(d.Rd, uint64(d.Imm))
		return false, nil
	case decode.OpLoad:
		return false, e.execLoad(mem, d)
	case decode.OpStore:
		return false, e.execStore(mem, d)
	case decode.OpBranch:
		return e.execBranch(d)
	case decode.OpJAL:
		e.setReg(d.Rd, e.pc+InstructionWidth)
		e.pc = uint64(int64(e.pc) + d.Imm)
		return true, nil
	case decode.OpJALR:
		// Compute the target, write the link with the OLD pc+4, THEN
		// set PC — spec.md §4.3 requires this order so that JALR x1,x1,0
		// (a common "return" idiom when rd==rs1) observes rs1 before it
		// is overwritten.
		target := (uint64(int64(e.Reg(d.Rs1)) + d.Imm)) &^ 1
		link := e.pc + InstructionWidth
		e.setReg(d.Rd, link)
		e.pc = target
		return true, nil
	default:
		return false, &decode.IllegalInstruction{Raw: d.Raw, Reason: "unsupported opcode"}
	}
}

// execOp handles the register-register ALU family (opcode 0x33).
func (e *Engine) execOp(d decode.Decoded) error {
	rs1, rs2 := e.Reg(d.Rs1), e.Reg(d.Rs2)
	switch d.Funct3 {
	case f3ADDSUB:
		switch d.Funct7 {
		case 0:
			e.setReg(d.Rd, rs1+rs2) // ADD, wraps
		case funct7Alt:
			e.setReg(d.Rd, rs1-rs2) // SUB, wraps
		default:
			return illegalFunct7(d)
		}
	case f3SLTU:
		if d.Funct7 != 0 {
			return illegalFunct7(d)
		}
		e.setReg(d.Rd, boolToU64(rs1 < rs2))
	case f3SLT:
		if d.Funct7 != 0 {
			return illegalFunct7(d)
		}
		e.setReg(d.Rd, boolToU64(int64(rs1) < int64(rs2)))
	case f3AND:
		if d.Funct7 != 0 {
			return illegalFunct7(d)
		}
		e.setReg(d.Rd, rs1&rs2)
	case f3OR:
		if d.Funct7 != 0 {
			return illegalFunct7(d)
		}
		e.setReg(d.Rd, rs1|rs2)
	case f3XOR:
		if d.Funct7 != 0 {
			return illegalFunct7(d)
		}
		e.setReg(d.Rd, rs1^rs2)
	case f3SLL:
		if d.Funct7 != 0 {
			return illegalFunct7(d)
		}
		e.setReg(d.Rd, rs1<<(rs2&0x3F))
	case f3SR:
		switch d.Funct7 {
		case 0:
			e.setReg(d.Rd, rs1>>(rs2&0x3F)) // SRL
		case funct7Alt:
			e.setReg(d.Rd, uint64(int64(rs1)>>(rs2&0x3F))) // SRA
		default:
			return illegalFunct7(d)
		}
	default:
		return illegalFunct3(d)
	}
	return nil
}

// execOpImm handles the register-immediate ALU family (opcode 0x13).
// The immediate is already sign-extended from 12 bits by the decoder;
// SLTIU compares it after reinterpreting as unsigned, per spec.md §4.3's
// "sign-extended-then-reinterpreted-as-unsigned" rule.
func (e *Engine) execOpImm(d decode.Decoded) error {
	rs1 := e.Reg(d.Rs1)
	imm := uint64(d.Imm)
	switch d.Funct3 {
	case f3ADDSUB: // ADDI
		e.setReg(d.Rd, rs1+imm)
	case f3SLTU: // SLTIU
		e.setReg(d.Rd, boolToU64(rs1 < imm))
	case f3SLT: // SLTI
		e.setReg(d.Rd, boolToU64(int64(rs1) < d.Imm))
	case f3AND: // ANDI
		e.setReg(d.Rd, rs1&imm)
	case f3OR: // ORI
		e.setReg(d.Rd, rs1|imm)
	case f3XOR: // XORI
		e.setReg(d.Rd, rs1^imm)
	case f3SLL: // SLLI: shift amount is 6 bits on RV64, top bits of imm must be 0
		shamt := d.Imm & 0x3F
		if d.Imm&^0x3F != 0 {
			return illegalShift(d)
		}
		e.setReg(d.Rd, rs1<<uint(shamt))
	case f3SR: // SRLI / SRAI, distinguished by imm bit 10 (funct7's top bit, shifted)
		shamt := d.Imm & 0x3F
		switch d.Imm &^ 0x3F {
		case 0:
			e.setReg(d.Rd, rs1>>uint(shamt)) // SRLI
		case funct7Alt << 5:
			e.setReg(d.Rd, uint64(int64(rs1)>>uint(shamt))) // SRAI
		default:
			return illegalShift(d)
		}
	default:
		return illegalFunct3(d)
	}
	return nil
}

// execOp32 handles the .W register-register family (opcode 0x3B). Every
// result is computed on the low 32 bits of its operands and sign-extended
// into the full 64-bit destination (spec.md §4.3, §8).
func (e *Engine) execOp32(d decode.Decoded) error {
	rs1, rs2 := int32(e.Reg(d.Rs1)), int32(e.Reg(d.Rs2))
	shamt := uint(e.Reg(d.Rs2) & 0x1F)
	switch d.Funct3 {
	case f3ADDSUB:
		switch d.Funct7 {
		case 0:
			e.setReg(d.Rd, sx32(rs1+rs2)) // ADDW
		case funct7Alt:
			e.setReg(d.Rd, sx32(rs1-rs2)) // SUBW
		default:
			return illegalFunct7(d)
		}
	case f3SLL:
		if d.Funct7 != 0 {
			return illegalFunct7(d)
		}
		e.setReg(d.Rd, sx32(rs1<<shamt)) // SLLW
	case f3SR:
		switch d.Funct7 {
		case 0:
			e.setReg(d.Rd, sx32(int32(uint32(rs1)>>shamt))) // SRLW
		case funct7Alt:
			e.setReg(d.Rd, sx32(rs1>>shamt)) // SRAW
		default:
			return illegalFunct7(d)
		}
	default:
		return illegalFunct3(d)
	}
	return nil
}

// execOpImm32 handles the .W register-immediate family (opcode 0x1B).
// Shift amount is 5 bits, unlike the full-width I-type shifts.
func (e *Engine) execOpImm32(d decode.Decoded) error {
	rs1 := int32(e.Reg(d.Rs1))
	switch d.Funct3 {
	case f3ADDSUB: // ADDIW
		e.setReg(d.Rd, sx32(rs1+int32(d.Imm)))
	case f3SLL: // SLLIW: 5-bit shift amount, top bits of imm must be 0
		shamt := d.Imm & 0x1F
		if d.Imm&^0x1F != 0 {
			return illegalShift(d)
		}
		e.setReg(d.Rd, sx32(rs1<<uint(shamt)))
	case f3SR: // SRLIW / SRAIW
		shamt := uint(d.Imm & 0x1F)
		switch d.Imm &^ 0x1F {
		case 0:
			e.setReg(d.Rd, sx32(int32(uint32(rs1)>>shamt))) // SRLIW
		case funct7Alt << 5:
			e.setReg(d.Rd, sx32(rs1>>shamt)) // SRAIW
		default:
			return illegalShift(d)
		}
	default:
		return illegalFunct3(d)
	}
	return nil
}

// execLoad handles opcode 0x03: LB, LH, LW, LD sign-extend into the
// 64-bit destination (LW and LD trivially for LD); LBU, LHU zero-extend.
func (e *Engine) execLoad(mem *mmu.Memory, d decode.Decoded) error {
	addr := uint64(int64(e.Reg(d.Rs1)) + d.Imm)
	switch d.Funct3 {
	case f3LB:
		v, err := mem.ReadUint8(addr)
		if err != nil {
			return err
		}
		e.setReg(d.Rd, uint64(int64(int8(v))))
	case f3LH:
		v, err := mem.ReadUint16(addr)
		if err != nil {
			return err
		}
		e.setReg(d.Rd, uint64(int64(int16(v))))
	case f3LW:
		v, err := mem.ReadUint32(addr)
		if err != nil {
			return err
		}
		e.setReg(d.Rd, uint64(int64(int32(v))))
	case f3LD:
		v, err := mem.ReadUint64(addr)
		if err != nil {
			return err
		}
		e.setReg(d.Rd, v)
	case f3LBU:
		v, err := mem.ReadUint8(addr)
		if err != nil {
			return err
		}
		e.setReg(d.Rd, uint64(v))
	case f3LHU:
		v, err := mem.ReadUint16(addr)
		if err != nil {
			return err
		}
		e.setReg(d.Rd, uint64(v))
	default:
		return illegalFunct3(d)
	}
	return nil
}

// execStore handles opcode 0x23. Each width writes exactly that many
// bytes to RAM: spec.md §4.3 and §9 note 1 call out that writing 4 bytes
// for SB/SH would clobber adjacent memory, which this does not do.
func (e *Engine) execStore(mem *mmu.Memory, d decode.Decoded) error {
	addr := uint64(int64(e.Reg(d.Rs1)) + d.Imm)
	rs2 := e.Reg(d.Rs2)
	switch d.Funct3 {
	case f3SB:
		return mem.WriteUint8(addr, uint8(rs2))
	case f3SH:
		return mem.WriteUint16(addr, uint16(rs2))
	case f3SW:
		return mem.WriteUint32(addr, uint32(rs2))
	case f3SD:
		return mem.WriteUint64(addr, rs2)
	default:
		return illegalFunct3(d)
	}
}

// execBranch handles opcode 0x63: compares rs1/rs2 per funct3 and, if
// taken, sets PC to PC + sign_extend(B-imm). An untaken branch leaves PC
// untouched here; Step advances it by InstructionWidth.
func (e *Engine) execBranch(d decode.Decoded) (bool, error) {
	rs1, rs2 := e.Reg(d.Rs1), e.Reg(d.Rs2)
	var taken bool
	switch d.Funct3 {
	case f3BEQ:
		taken = rs1 == rs2
	case f3BNE:
		taken = rs1 != rs2
	case f3BLT:
		taken = int64(rs1) < int64(rs2)
	case f3BGE:
		taken = int64(rs1) >= int64(rs2)
	case f3BLTU:
		taken = rs1 < rs2
	case f3BGEU:
		taken = rs1 >= rs2
	default:
		return false, illegalFunct3(d)
	}
	if taken {
		e.pc = uint64(int64(e.pc) + d.Imm)
		return true, nil
	}
	return false, nil
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// sx32 sign-extends a 32-bit result into the 64-bit destination register,
// the ".W variant always produces a value whose bits 63..32 equal bit 31
// of the low 32" invariant from spec.md §8.
func sx32(v int32) uint64 {
	return uint64(int64(v))
}

func illegalFunct3(d decode.Decoded) error {
	return &decode.IllegalInstruction{Raw: d.Raw, Reason: fmt.Sprintf("unknown funct3 0x%x for opcode 0x%02x", d.Funct3, uint32(d.Opcode))}
}

func illegalFunct7(d decode.Decoded) error {
	return &decode.IllegalInstruction{Raw: d.Raw, Reason: fmt.Sprintf("unknown funct7 0x%x for opcode 0x%02x funct3 0x%x", d.Funct7, uint32(d.Opcode), d.Funct3)}
}

func illegalShift(d decode.Decoded) error {
	return &decode.IllegalInstruction{Raw: d.Raw, Reason: fmt.Sprintf("invalid shift immediate 0x%x", d.Imm)}
}
