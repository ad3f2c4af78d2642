package loader

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/carved4/phpext-inspect/pkg/memory"
)

// get_module is ZEND_GET_MODULE's one-liner returning &name_module_entry.
// Compilers emit a handful of shapes for it:
//
//	x64:  lea rax, [rip+disp]; ret
//	x86:  mov eax, imm32; ret      (optionally inside push ebp/mov ebp,esp/pop ebp)
//	both: jmp rel32                (incremental-link thunk in front of any of the above)
//
// plus a load of a pointer variable (mov rax, [rip+disp]) in some builds.
const maxGetterSteps = 32

const maxInstLen = 15

func evalGetter(r memory.Reader, pc uint64, mode int) (uint64, error) {
	var result uint64
	var loaded bool

	for step := 0; step < maxGetterSteps; step++ {
		code, err := readCode(r, pc)
		if err != nil {
			return 0, fmt.Errorf("get_module at 0x%x: %w", pc, err)
		}
		inst, err := x86asm.Decode(code, mode)
		if err != nil {
			return 0, fmt.Errorf("decoding get_module at 0x%x: %w", pc, err)
		}
		next := pc + uint64(inst.Len)

		switch inst.Op {
		case x86asm.RET:
			if !loaded {
				return 0, fmt.Errorf("get_module returns at 0x%x before loading a result", pc)
			}
			return result, nil

		case x86asm.JMP:
			rel, ok := inst.Args[0].(x86asm.Rel)
			if !ok {
				return 0, fmt.Errorf("unsupported indirect jump at 0x%x: %v", pc, inst)
			}
			pc = uint64(int64(next) + int64(rel))
			continue

		case x86asm.LEA:
			dst, ok := resultReg(inst.Args[0])
			mem, isMem := inst.Args[1].(x86asm.Mem)
			if !ok || !isMem {
				return 0, unsupported(pc, inst)
			}
			addr, ok := effectiveAddr(mem, next, mode)
			if !ok {
				return 0, unsupported(pc, inst)
			}
			result, loaded = truncate(dst, addr), true

		case x86asm.MOV:
			if isFrameReg(inst.Args[0]) && isFrameReg(inst.Args[1]) {
				break
			}
			dst, ok := resultReg(inst.Args[0])
			if !ok {
				return 0, unsupported(pc, inst)
			}
			switch src := inst.Args[1].(type) {
			case x86asm.Imm:
				result, loaded = truncate(dst, uint64(src)), true
			case x86asm.Mem:
				addr, ok := effectiveAddr(src, next, mode)
				if !ok {
					return 0, unsupported(pc, inst)
				}
				v, err := loadReg(r, dst, addr)
				if err != nil {
					return 0, fmt.Errorf("get_module loads 0x%x: %w", addr, err)
				}
				result, loaded = v, true
			default:
				return 0, unsupported(pc, inst)
			}

		case x86asm.PUSH, x86asm.POP:
			if !isFrameReg(inst.Args[0]) {
				return 0, unsupported(pc, inst)
			}

		case x86asm.SUB, x86asm.ADD:
			if _, imm := inst.Args[1].(x86asm.Imm); !imm || !isStackReg(inst.Args[0]) {
				return 0, unsupported(pc, inst)
			}

		case x86asm.NOP:

		default:
			return 0, unsupported(pc, inst)
		}
		pc = next
	}
	return 0, fmt.Errorf("get_module does not return within %d instructions", maxGetterSteps)
}

func unsupported(pc uint64, inst x86asm.Inst) error {
	return fmt.Errorf("unsupported instruction in get_module at 0x%x: %v", pc, inst)
}

// readCode fetches up to one maximal instruction, trimming near the end of
// a section.
func readCode(r memory.Reader, pc uint64) ([]byte, error) {
	var err error
	for n := maxInstLen; n > 0; n-- {
		buf := make([]byte, n)
		if err = r.ReadAt(buf, pc); err == nil {
			return buf, nil
		}
	}
	return nil, err
}

func resultReg(arg x86asm.Arg) (x86asm.Reg, bool) {
	reg, ok := arg.(x86asm.Reg)
	if ok && (reg == x86asm.EAX || reg == x86asm.RAX) {
		return reg, true
	}
	return 0, false
}

func isFrameReg(arg x86asm.Arg) bool {
	reg, ok := arg.(x86asm.Reg)
	return ok && (reg == x86asm.EBP || reg == x86asm.RBP || reg == x86asm.ESP || reg == x86asm.RSP)
}

func isStackReg(arg x86asm.Arg) bool {
	reg, ok := arg.(x86asm.Reg)
	return ok && (reg == x86asm.ESP || reg == x86asm.RSP)
}

func effectiveAddr(mem x86asm.Mem, next uint64, mode int) (uint64, bool) {
	if mem.Segment != 0 || mem.Index != 0 {
		return 0, false
	}
	switch mem.Base {
	case x86asm.RIP:
		return uint64(int64(next) + mem.Disp), true
	case 0:
		if mode == 32 {
			return uint64(uint32(mem.Disp)), true
		}
		return uint64(mem.Disp), true
	}
	return 0, false
}

// truncate applies the zero-extension of a 32-bit destination.
func truncate(dst x86asm.Reg, v uint64) uint64 {
	if dst == x86asm.EAX {
		return uint64(uint32(v))
	}
	return v
}

func loadReg(r memory.Reader, dst x86asm.Reg, addr uint64) (uint64, error) {
	if dst == x86asm.EAX {
		v, err := memory.ReadU32(r, addr)
		return uint64(v), err
	}
	return memory.ReadU64(r, addr)
}
