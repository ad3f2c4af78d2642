package loader

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carved4/phpext-inspect/pkg/memory"
)

func codeMap(ptrSize int, base uint64, code []byte) *memory.Map {
	m := memory.NewMap(ptrSize)
	m.Add(base, code, 0x1000)
	return m
}

func TestEvalGetter(t *testing.T) {
	tests := []struct {
		name string
		mode int
		base uint64
		code []byte
		want uint64
	}{
		{
			name: "x64 lea rip-relative",
			mode: 64,
			base: 0x180001000,
			code: []byte{0x48, 0x8d, 0x05, 0xf9, 0x0f, 0x00, 0x00, 0xc3},
			want: 0x180002000,
		},
		{
			name: "x86 mov imm32",
			mode: 32,
			base: 0x10001000,
			code: []byte{0xb8, 0x00, 0x20, 0x00, 0x10, 0xc3},
			want: 0x10002000,
		},
		{
			name: "x86 with frame",
			mode: 32,
			base: 0x10001000,
			// push ebp; mov ebp, esp; mov eax, 0x10003000; pop ebp; ret
			code: []byte{0x55, 0x8b, 0xec, 0xb8, 0x00, 0x30, 0x00, 0x10, 0x5d, 0xc3},
			want: 0x10003000,
		},
		{
			name: "x86 high address",
			mode: 32,
			base: 0x10001000,
			code: []byte{0xb8, 0x00, 0x10, 0x00, 0x90, 0xc3},
			want: 0x90001000,
		},
		{
			name: "x64 nop padding",
			mode: 64,
			base: 0x180001000,
			code: []byte{0x90, 0x48, 0x8d, 0x05, 0xf8, 0x0f, 0x00, 0x00, 0xc3},
			want: 0x180002000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ptrSize := 8
			if tt.mode == 32 {
				ptrSize = 4
			}
			got, err := evalGetter(codeMap(ptrSize, tt.base, tt.code), tt.base, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalGetter_FollowsJumpThunk(t *testing.T) {
	code := make([]byte, 0x1010)
	// 0x1000: jmp 0x2000
	copy(code[0:], []byte{0xe9, 0xfb, 0x0f, 0x00, 0x00})
	// 0x2000: lea rax, [rip+0x0ff9]; ret  -> 0x3000
	copy(code[0x1000:], []byte{0x48, 0x8d, 0x05, 0xf9, 0x0f, 0x00, 0x00, 0xc3})

	m := memory.NewMap(8)
	m.Add(0x1000, code, 0)

	got, err := evalGetter(m, 0x1000, 64)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x3000), got)
}

func TestEvalGetter_LoadsPointer(t *testing.T) {
	code := make([]byte, 0x1010)
	// 0x1000: mov rax, [rip+0x0ff9]; ret  -> reads 0x2000
	copy(code[0:], []byte{0x48, 0x8b, 0x05, 0xf9, 0x0f, 0x00, 0x00, 0xc3})
	binary.LittleEndian.PutUint64(code[0x1000:], 0x7000)

	m := memory.NewMap(8)
	m.Add(0x1000, code, 0)

	got, err := evalGetter(m, 0x1000, 64)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7000), got)
}

func TestEvalGetter_Rejects(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"ret without result", []byte{0xc3}},
		{"xor rax, rax", []byte{0x48, 0x31, 0xc0, 0xc3}},
		{"call", []byte{0xe8, 0x00, 0x00, 0x00, 0x00, 0xc3}},
		{"endless loop", []byte{0xeb, 0xfe}},
		{"indirect jump", []byte{0xff, 0x25, 0x00, 0x00, 0x00, 0x00}},
		{"lea into rcx", []byte{0x48, 0x8d, 0x0d, 0xf9, 0x0f, 0x00, 0x00, 0xc3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evalGetter(codeMap(8, 0x1000, tt.code), 0x1000, 64)
			assert.Error(t, err)
		})
	}
}

func TestEvalGetter_Unmapped(t *testing.T) {
	_, err := evalGetter(memory.NewMap(8), 0x1000, 64)
	assert.ErrorIs(t, err, memory.ErrFault)
}
