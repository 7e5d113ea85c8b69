package ingest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"hash/crc32"
	"io"

	"romba-go/internal/model"
)

// Hasher computes every digest the index and the depot need in one pass.
type Hasher struct {
	crc    hash.Hash32
	md5    hash.Hash
	sha1   hash.Hash
	sha256 hash.Hash
	sha384 hash.Hash
	sha512 hash.Hash
	w      io.Writer
	n      int64
}

func NewHasher() *Hasher {
	h := &Hasher{
		crc:    crc32.NewIEEE(),
		md5:    md5.New(),
		sha1:   sha1.New(),
		sha256: sha256.New(),
		sha384: sha512.New384(),
		sha512: sha512.New(),
	}
	h.w = io.MultiWriter(h.crc, h.md5, h.sha1, h.sha256, h.sha384, h.sha512)
	return h
}

func (h *Hasher) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	h.n += int64(n)
	return n, err
}

// Size is the number of bytes written so far.
func (h *Hasher) Size() int64 { return h.n }

// Sum returns the lowercase hex digests of everything written so far.
func (h *Hasher) Sum() model.HashSet {
	return model.HashSet{
		CRC32:  hex.EncodeToString(h.crc.Sum(nil)),
		MD5:    hex.EncodeToString(h.md5.Sum(nil)),
		SHA1:   hex.EncodeToString(h.sha1.Sum(nil)),
		SHA256: hex.EncodeToString(h.sha256.Sum(nil)),
		SHA384: hex.EncodeToString(h.sha384.Sum(nil)),
		SHA512: hex.EncodeToString(h.sha512.Sum(nil)),
		Status: model.StatusGood,
	}
}

// Sum reads r to the end and returns its hashes and length.
func Sum(r io.Reader) (model.HashSet, int64, error) {
	h := NewHasher()
	if _, err := io.Copy(h, r); err != nil {
		return model.HashSet{}, h.Size(), err
	}
	return h.Sum(), h.Size(), nil
}
