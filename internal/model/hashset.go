package model

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Algorithm identifies one of the hash algorithms a HashSet can carry.
type Algorithm int

const (
	CRC32 Algorithm = iota
	MD5
	SHA1
	SHA256
	SHA384
	SHA512
	SpamSum
)

// Algorithms lists every algorithm in canonical order.
var Algorithms = []Algorithm{CRC32, MD5, SHA1, SHA256, SHA384, SHA512, SpamSum}

// Hex lengths of each fixed-width algorithm. SpamSum is variable length.
const (
	CRC32Length  = 8
	MD5Length    = 32
	SHA1Length   = 40
	SHA256Length = 64
	SHA384Length = 96
	SHA512Length = 128
)

// Hashes of the empty input. These denote "known empty", not absence.
const (
	ZeroCRC32   = "00000000"
	ZeroMD5     = "d41d8cd98f00b204e9800998ecf8427e"
	ZeroSHA1    = "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	ZeroSHA256  = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	ZeroSHA384  = "38b060a751ac96384cd9327eb1b1e36a21fdb71114be07434c0cc7bf63f6e1da274edebfe76f65fbd51ad2f14898b95b"
	ZeroSHA512  = "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e"
	ZeroSpamSum = "QXX"
)

func (a Algorithm) String() string {
	switch a {
	case CRC32:
		return "crc"
	case MD5:
		return "md5"
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	case SHA384:
		return "sha384"
	case SHA512:
		return "sha512"
	case SpamSum:
		return "spamsum"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

// HexLength returns the canonical hex length of the algorithm, or 0 for
// variable-length algorithms.
func (a Algorithm) HexLength() int {
	switch a {
	case CRC32:
		return CRC32Length
	case MD5:
		return MD5Length
	case SHA1:
		return SHA1Length
	case SHA256:
		return SHA256Length
	case SHA384:
		return SHA384Length
	case SHA512:
		return SHA512Length
	default:
		return 0
	}
}

// Zero returns the hash of the empty input for the algorithm.
func (a Algorithm) Zero() string {
	switch a {
	case CRC32:
		return ZeroCRC32
	case MD5:
		return ZeroMD5
	case SHA1:
		return ZeroSHA1
	case SHA256:
		return ZeroSHA256
	case SHA384:
		return ZeroSHA384
	case SHA512:
		return ZeroSHA512
	case SpamSum:
		return ZeroSpamSum
	default:
		return ""
	}
}

// AlgorithmForLength guesses the algorithm of a hex digest by its length.
func AlgorithmForLength(n int) (Algorithm, bool) {
	for _, a := range Algorithms {
		if a.HexLength() == n && n != 0 {
			return a, true
		}
	}
	return 0, false
}

// Status is the dump status a DAT declares for an item.
type Status int

const (
	StatusNone Status = iota
	StatusGood
	StatusBadDump
	StatusNodump
	StatusVerified
)

func (s Status) String() string {
	switch s {
	case StatusGood:
		return "good"
	case StatusBadDump:
		return "baddump"
	case StatusNodump:
		return "nodump"
	case StatusVerified:
		return "verified"
	default:
		return ""
	}
}

// ParseStatus maps a DAT status attribute to a Status. Unknown strings map
// to StatusNone.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good":
		return StatusGood
	case "baddump":
		return StatusBadDump
	case "nodump":
		return StatusNodump
	case "verified":
		return StatusVerified
	default:
		return StatusNone
	}
}

// HashSet is the bag of hashes a DAT item or scanned file carries. Values
// are hex strings; an empty string means the algorithm was not supplied.
type HashSet struct {
	CRC32   string
	MD5     string
	SHA1    string
	SHA256  string
	SHA384  string
	SHA512  string
	SpamSum string
	Status  Status
}

// Get returns the value stored for an algorithm.
func (h HashSet) Get(a Algorithm) string {
	switch a {
	case CRC32:
		return h.CRC32
	case MD5:
		return h.MD5
	case SHA1:
		return h.SHA1
	case SHA256:
		return h.SHA256
	case SHA384:
		return h.SHA384
	case SHA512:
		return h.SHA512
	case SpamSum:
		return h.SpamSum
	default:
		return ""
	}
}

// Set stores a value for an algorithm.
func (h *HashSet) Set(a Algorithm, v string) {
	switch a {
	case CRC32:
		h.CRC32 = v
	case MD5:
		h.MD5 = v
	case SHA1:
		h.SHA1 = v
	case SHA256:
		h.SHA256 = v
	case SHA384:
		h.SHA384 = v
	case SHA512:
		h.SHA512 = v
	case SpamSum:
		h.SpamSum = v
	}
}

// Has reports whether the algorithm is populated.
func (h HashSet) Has(a Algorithm) bool {
	return strings.TrimSpace(h.Get(a)) != ""
}

// Normalize trims whitespace and lowercases every hex field. SpamSum is
// only trimmed since its alphabet is case sensitive.
func (h HashSet) Normalize() HashSet {
	for _, a := range Algorithms {
		v := strings.TrimSpace(h.Get(a))
		if a != SpamSum {
			v = strings.ToLower(v)
		}
		h.Set(a, v)
	}
	return h
}

// Validate checks that every populated fixed-width field is valid hex of
// the algorithm's canonical length.
func (h HashSet) Validate() error {
	for _, a := range Algorithms {
		n := a.HexLength()
		v := strings.TrimSpace(h.Get(a))
		if v == "" || n == 0 {
			continue
		}
		if len(v) != n {
			return fmt.Errorf("%s hash %q has length %d, want %d", a, v, len(v), n)
		}
		if _, err := hex.DecodeString(v); err != nil {
			return fmt.Errorf("%s hash %q is not hex: %w", a, v, err)
		}
	}
	return nil
}

// IsHex reports whether s is exactly n hex characters.
func IsHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
