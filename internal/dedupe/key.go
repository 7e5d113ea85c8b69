package dedupe

import (
	"fmt"
	"strings"

	"romba-go/internal/model"
)

// BucketBy selects the key items are grouped by.
type BucketBy int

const (
	BucketNone BucketBy = iota
	BucketCRC
	BucketMD5
	BucketSHA1
	BucketSHA256
	BucketSHA384
	BucketSHA512
	BucketSpamSum
	BucketMachine
)

func (b BucketBy) String() string {
	switch b {
	case BucketCRC:
		return "crc"
	case BucketMD5:
		return "md5"
	case BucketSHA1:
		return "sha1"
	case BucketSHA256:
		return "sha256"
	case BucketSHA384:
		return "sha384"
	case BucketSHA512:
		return "sha512"
	case BucketSpamSum:
		return "spamsum"
	case BucketMachine:
		return "machine"
	default:
		return "none"
	}
}

// ParseBucketBy maps a flag value to a BucketBy.
func ParseBucketBy(s string) (BucketBy, error) {
	switch strings.ToLower(s) {
	case "crc", "crc32":
		return BucketCRC, nil
	case "md5":
		return BucketMD5, nil
	case "sha1":
		return BucketSHA1, nil
	case "sha256":
		return BucketSHA256, nil
	case "sha384":
		return BucketSHA384, nil
	case "sha512":
		return BucketSHA512, nil
	case "spamsum":
		return BucketSpamSum, nil
	case "machine", "game":
		return BucketMachine, nil
	default:
		return BucketNone, fmt.Errorf("unknown bucket key: %q", s)
	}
}

// algorithm returns the hash algorithm a bucket kind keys on.
func (b BucketBy) algorithm() (model.Algorithm, bool) {
	switch b {
	case BucketCRC:
		return model.CRC32, true
	case BucketMD5:
		return model.MD5, true
	case BucketSHA1:
		return model.SHA1, true
	case BucketSHA256:
		return model.SHA256, true
	case BucketSHA384:
		return model.SHA384, true
	case BucketSHA512:
		return model.SHA512, true
	case BucketSpamSum:
		return model.SpamSum, true
	default:
		return 0, false
	}
}

// GetKey derives the grouping key of an entry.
//
// Hash keys fall back to the algorithm's zero hash when the item kind can
// carry the algorithm but did not, and to "" when it cannot. Machine keys
// are "<10-digit source index>-<machine name>", or the bare machine name
// when norename is set.
func GetKey(e model.Entry, by BucketBy, lowercase, norename bool) string {
	if e.Item == nil {
		return ""
	}

	var key string
	if alg, ok := by.algorithm(); ok {
		key = strings.TrimSpace(e.Item.Hashes.Get(alg))
		if key == "" && e.Item.Kind.Supports(alg) {
			key = alg.Zero()
		}
	} else if by == BucketMachine {
		if e.Machine == nil {
			return ""
		}
		if norename {
			key = e.Machine.Name
		} else {
			key = fmt.Sprintf("%010d-%s", e.Source.Index, e.Machine.Name)
		}
	} else {
		return ""
	}

	if lowercase {
		key = strings.ToLower(key)
	}
	return key
}
