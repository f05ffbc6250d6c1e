package taskpool

import "crypto/rand"

const tidAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
const tidLength = 8

// GenTID returns an 8-character, purely alphabetic task id; the pool
// re-rolls on collision. It also names anonymous slaves ("client-<tid>")
// when a manifest declares no name.
func GenTID() string {
	idx := make([]byte, tidLength)
	_, _ = rand.Read(idx)
	out := make([]byte, tidLength)
	for i, v := range idx {
		out[i] = tidAlphabet[int(v)%len(tidAlphabet)]
	}
	return string(out)
}
