package testutil

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"

	"romba-go/internal/ingest"
	"romba-go/internal/model"
)

// SHA1Hex returns the SHA-1 of data as a lowercase hex string.
func SHA1Hex(data []byte) string {
	h := sha1.Sum(data)
	return hex.EncodeToString(h[:])
}

// HashesOf returns every hash romba computes for data.
func HashesOf(data []byte) model.HashSet {
	hs, _, err := ingest.Sum(bytes.NewReader(data))
	if err != nil {
		panic(err)
	}
	return hs
}
