package loader

import (
	"encoding/binary"

	"kernelcore/defs"
	"kernelcore/util"
	"kernelcore/vm"
)

// MarshalArgv lays out argv on the user stack below USERSTACK, spec.md
// section 6: argc+1 pointers (the last NULL), then argc null-terminated
// strings each padded with zero bytes so the following address stays
// 4-aligned. It returns the new stack pointer, which also doubles as
// uargv (the vector's address), per "stackptr points to the pointer
// vector; uargv == stackptr."
func MarshalArgv(as *vm.AddrSpace, argv []string) (int, defs.Err_t) {
	padded := make([]int, len(argv))
	totalStrBytes := 0
	for i, s := range argv {
		l := len(s) + 1 // null terminator
		p := util.Roundup(l, 4)
		padded[i] = p
		totalStrBytes += p
	}
	vecBytes := (len(argv) + 1) * 4
	newSP := defs.USERSTACK - totalStrBytes - vecBytes
	stringAreaStart := newSP + vecBytes

	ptrs := make([]int, len(argv)+1)
	cursor := stringAreaStart
	for i, s := range argv {
		ptrs[i] = cursor
		buf := make([]byte, padded[i])
		copy(buf, s)
		if err := as.WriteBytes(cursor, buf); err != 0 {
			return 0, err
		}
		cursor += padded[i]
	}
	ptrs[len(argv)] = 0

	vec := make([]byte, vecBytes)
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(vec[i*4:], uint32(p))
	}
	if err := as.WriteBytes(newSP, vec); err != 0 {
		return 0, err
	}
	return newSP, 0
}
