package bot

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand"
)

const (
	codeAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	defaultCodeLength = 6
)

// ReservationCode returns n characters drawn uniformly from A-Z0-9.
// Codes are shown to the user only; collisions are harmless.
func ReservationCode(n int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

func fallbackCode(seed int64, n int) string {
	r := mrand.New(mrand.NewSource(seed ^ mrand.Int63()))
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = codeAlphabet[r.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
