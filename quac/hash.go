package quac

import (
	"crypto/sha256"
	"encoding/hex"
)

// contentHash digests every term descriptor installed on inst so far, in
// installation order, into a hex-encoded SHA-256 string. Two instances that
// installed the same term-tree source strings against the same variable
// bindings hash identically regardless of how their builders happened to
// assemble the resulting matrices.
func (inst *Instance) contentHash() string {
	h := sha256.New()
	for _, s := range inst.termLog {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
