package model

import (
	"fmt"
	"strings"
)

// ItemKind is the closed set of DAT item variants.
type ItemKind int

const (
	KindRom ItemKind = iota
	KindDisk
	KindMedia
	KindFile
)

func (k ItemKind) String() string {
	switch k {
	case KindRom:
		return "rom"
	case KindDisk:
		return "disk"
	case KindMedia:
		return "media"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseItemKind maps an element name to an ItemKind.
func ParseItemKind(s string) (ItemKind, error) {
	switch strings.ToLower(s) {
	case "rom":
		return KindRom, nil
	case "disk":
		return KindDisk, nil
	case "media":
		return KindMedia, nil
	case "file":
		return KindFile, nil
	default:
		return 0, fmt.Errorf("unknown item kind: %q", s)
	}
}

// Sized reports whether items of this kind carry a byte size.
func (k ItemKind) Sized() bool {
	return k == KindRom || k == KindFile
}

// SizeUnknown marks an item whose size was not declared.
const SizeUnknown int64 = -1

// NoMachine marks an item with no owning machine.
const NoMachine = -1

// DupeType is the bitset written by the duplicate classifier.
type DupeType uint8

const (
	DupeInternal DupeType = 1 << iota
	DupeExternal
	DupeHash
	DupeAll
)

// Has reports whether every bit of flag is set.
func (d DupeType) Has(flag DupeType) bool {
	return flag != 0 && d&flag == flag
}

func (d DupeType) String() string {
	if d == 0 {
		return "none"
	}
	var parts []string
	if d.Has(DupeInternal) {
		parts = append(parts, "internal")
	}
	if d.Has(DupeExternal) {
		parts = append(parts, "external")
	}
	if d.Has(DupeHash) {
		parts = append(parts, "hash")
	}
	if d.Has(DupeAll) {
		parts = append(parts, "all")
	}
	return strings.Join(parts, "|")
}

// Item is a single content record from a DAT or a scan. Machine and Source
// are indexes into the owning DatFile's arenas.
type Item struct {
	Kind    ItemKind
	Name    string
	Size    int64 // SizeUnknown unless Kind.Sized()
	Hashes  HashSet
	Machine int
	Source  int
	Removed bool
	Dupe    DupeType
}

// HasSize reports whether the item declares a meaningful size.
func (it *Item) HasSize() bool {
	return it.Kind.Sized() && it.Size >= 0
}

// Machine is the game or set grouping that items belong to. Two machines
// with the same name are the same logical container.
type Machine struct {
	Name         string
	Description  string
	Year         string
	Manufacturer string
	CloneOf      string
	RomOf        string
}

// Source identifies the input DAT an item came from.
type Source struct {
	Index int
	Name  string
}

// Entry is a resolved view of an item with its machine and source.
type Entry struct {
	Item    *Item
	Machine *Machine
	Source  Source
}

// MachineName returns the owning machine name, or "" when unattached.
func (e Entry) MachineName() string {
	if e.Machine == nil {
		return ""
	}
	return e.Machine.Name
}

// Supports reports whether DAT items of this kind can carry the algorithm.
func (k ItemKind) Supports(a Algorithm) bool {
	switch k {
	case KindRom:
		return true
	case KindDisk:
		return a == MD5 || a == SHA1
	case KindMedia:
		return a == MD5 || a == SHA1 || a == SHA256 || a == SpamSum
	case KindFile:
		return a == CRC32 || a == MD5 || a == SHA1 || a == SHA256
	default:
		return false
	}
}

// IndexEntry is one unit of content recorded in the hash index. Depot is the
// root of the depot holding the content, or "" when only a DAT references it.
type IndexEntry struct {
	Hashes HashSet
	Depot  string
}
