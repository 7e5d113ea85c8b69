// Package dedupe groups DAT items by key and classifies duplicates.
package dedupe

import (
	"strings"

	"romba-go/internal/model"
)

// Classify compares self against other, the item immediately preceding it
// in name-sorted bucket order, and returns the duplicate flags for self.
//
// Precedence: kind mismatch, no-dump placeholder match, hash match, size
// veto, then scope (same source is internal) and breadth (same machine
// name is all, otherwise hash).
func Classify(self, other model.Entry) model.DupeType {
	if self.Item == nil || other.Item == nil {
		return 0
	}
	a, b := self.Item, other.Item
	if a.Kind != b.Kind {
		return 0
	}

	if !nodumpMatch(a, b) {
		if !model.HashMatch(a.Hashes, b.Hashes) {
			return 0
		}
		if a.HasSize() && b.HasSize() && a.Size != b.Size {
			return 0
		}
	}

	var flags model.DupeType
	if self.Source.Index == other.Source.Index {
		flags |= model.DupeInternal
	} else {
		flags |= model.DupeExternal
	}

	if strings.EqualFold(self.MachineName(), other.MachineName()) {
		flags |= model.DupeAll
	} else {
		flags |= model.DupeHash
	}
	return flags
}

// nodumpMatch matches two no-dump placeholders by name. HasZeroHash is true
// for empty sets, so placeholders with no hashes qualify.
func nodumpMatch(a, b *model.Item) bool {
	return a.Hashes.Status == model.StatusNodump &&
		b.Hashes.Status == model.StatusNodump &&
		model.HasZeroHash(a.Hashes) &&
		model.HasZeroHash(b.Hashes) &&
		strings.EqualFold(a.Name, b.Name)
}
