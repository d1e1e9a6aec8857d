package defs

// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

// PAGE_SIZE is the size of a single page in bytes.
const PAGE_SIZE int = 1 << PGSHIFT

// PGOFFSET masks offsets within a page.
const PGOFFSET int = PAGE_SIZE - 1

// USERSTACK is the top of the user address space; the stack grows down
// from here.
const USERSTACK int = 0x7fff0000

// Process control constants mirrored from the OS/161 MIPS target this
// spec distills.
const (
	PID_MIN = 2
	PID_MAX = 1 << 20

	// ARG_MAX bounds the total bytes of an argv vector copied into the
	// kernel during execv.
	ARG_MAX = 64 * 1024

	// FILE_NAME_MAXLEN bounds a path copied in from user space.
	FILE_NAME_MAXLEN = 1024

	// SBRK_MAX_DELTA is the largest |delta| sbrk will honor in one call.
	SBRK_MAX_DELTA = 256 * 1024 * 1024

	// NUM_TLB is the number of software TLB entry slots.
	NUM_TLB = 64
)

// Open-flag bits, mirroring the O_* constants copyin'd from user space in
// the original file_syscalls.c. Kept narrow and explicit rather than
// importing the standard library's os.O_* so the "flag bits > 128" check
// in spec.md section 4.8 has a concrete meaning.
const (
	O_RDONLY = 0x0
	O_WRONLY = 0x1
	O_RDWR   = 0x2
	O_CREAT  = 0x4
	O_EXCL   = 0x8
	O_TRUNC  = 0x10
	O_APPEND = 0x20
)

// Seek whence values.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)
