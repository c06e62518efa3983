package protocol

import (
	"errors"
	"math"
)

// ErrFraming is returned for malformed frames: unknown type tags or a
// size field that overflows the host's addressable payload limit.
var ErrFraming = errors.New("protocol: framing error")

// maxPayloadSize bounds the size field to what this process can
// actually allocate. On 32-bit hosts math.MaxInt is far smaller than
// the wire format's 64-bit size field allows, so oversized frames are
// rejected as framing errors rather than overflowing make([]byte, n).
const maxPayloadSize = uint64(math.MaxInt)
