package handler

import (
	"crypto/rand"
	"encoding/hex"
)

func newSessionToken() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return hex.EncodeToString(b)
}
