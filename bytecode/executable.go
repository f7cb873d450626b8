package bytecode

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Magic identifies the binary executable format.
const Magic uint32 = 0x00BABE00

// frameHeaderSize is the byte size of everything before the code stream:
// magic, checksum, stack_size, locals_size.
const frameHeaderSize = 16

// Sentinel load-time errors returned by FromBytes/FromText, distinguishable
// with errors.Is.
var (
	ErrBadMagic    = errors.New("bytecode: bad magic number")
	ErrBadChecksum = errors.New("bytecode: checksum mismatch")
	ErrTruncated   = errors.New("bytecode: truncated executable")
)

// Executable is a compiled, loadable program: a fixed stack size, the
// number of locals slots the VM must zero-fill, and the linear opcode
// stream. It is produced once by the compiler and consumed once by
// Machine.Load.
type Executable struct {
	StackSize  uint32
	LocalsSize uint32
	Code       []OpCode
}

// New builds an Executable from already-emitted code.
func New(stackSize, localsSize uint32, code []OpCode) *Executable {
	return &Executable{StackSize: stackSize, LocalsSize: localsSize, Code: code}
}

// ToBytes serializes e to its framed binary form: magic, a CRC-32/CKSUM of
// everything after the checksum field, stack_size, locals_size, then one
// 4-byte word per opcode.
func (e *Executable) ToBytes() []byte {
	buf := make([]byte, frameHeaderSize+4*len(e.Code))

	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	// checksum written last, once the tail is final
	binary.LittleEndian.PutUint32(buf[8:12], e.StackSize)
	binary.LittleEndian.PutUint32(buf[12:16], e.LocalsSize)
	for i, op := range e.Code {
		word := op.Encode()
		copy(buf[frameHeaderSize+4*i:], word[:])
	}

	sum := cksum(buf[8:])
	binary.LittleEndian.PutUint32(buf[4:8], sum)
	return buf
}

// FromBytes parses the framed binary form produced by ToBytes. It fails
// with ErrBadMagic, ErrBadChecksum, or ErrTruncated (wrapped with
// context) on anything else; there are no partial results.
func FromBytes(raw []byte) (*Executable, error) {
	if len(raw) < frameHeaderSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, got %d", ErrTruncated, frameHeaderSize, len(raw))
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not 32-bit aligned", ErrTruncated, len(raw))
	}

	magic := binary.LittleEndian.Uint32(raw[0:4])
	if magic != Magic {
		return nil, fmt.Errorf("%w: got %#08x", ErrBadMagic, magic)
	}

	wantSum := binary.LittleEndian.Uint32(raw[4:8])
	gotSum := cksum(raw[8:])
	if wantSum != gotSum {
		return nil, fmt.Errorf("%w: want %#08x, got %#08x", ErrBadChecksum, wantSum, gotSum)
	}

	stackSize := binary.LittleEndian.Uint32(raw[8:12])
	localsSize := binary.LittleEndian.Uint32(raw[12:16])

	body := raw[frameHeaderSize:]
	code := make([]OpCode, 0, len(body)/4)
	for i := 0; i < len(body); i += 4 {
		var word [4]byte
		copy(word[:], body[i:i+4])
		op, err := Decode(word)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		code = append(code, op)
	}

	return &Executable{StackSize: stackSize, LocalsSize: localsSize, Code: code}, nil
}

// ToText renders ToBytes as unpadded standard base64, the form the
// compiler emits and the VM accepts over text-only transports.
func (e *Executable) ToText() string {
	return base64.RawStdEncoding.EncodeToString(e.ToBytes())
}

// FromText decodes the base64 form produced by ToText. A malformed
// base64 payload fails before FromBytes ever sees it.
func FromText(text string) (*Executable, error) {
	raw, err := base64.RawStdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("bytecode: invalid base64: %w", err)
	}
	return FromBytes(raw)
}

func (e *Executable) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Executable\n  StackSize=%d\n  LocalsSize=%d\n\n", e.StackSize, e.LocalsSize)
	for _, op := range e.Code {
		fmt.Fprintf(&b, "  %s\n", op)
	}
	return b.String()
}
