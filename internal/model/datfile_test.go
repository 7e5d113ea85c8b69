package model

import "testing"

func TestDatFile_AddMachineDeduplicatesByName(t *testing.T) {
	d := NewDatFile(Header{Name: "test"})

	first := d.AddMachine(Machine{Name: "game", Description: "first"})
	second := d.AddMachine(Machine{Name: "game", Description: "second"})

	if first != second {
		t.Errorf("AddMachine() indexes = %d, %d, want equal", first, second)
	}
	if len(d.Machines) != 1 {
		t.Fatalf("len(Machines) = %d, want 1", len(d.Machines))
	}
	if d.Machines[0].Description != "first" {
		t.Errorf("Description = %q, want %q", d.Machines[0].Description, "first")
	}
}

func TestDatFile_Entry(t *testing.T) {
	d := NewDatFile(Header{})
	src := d.AddSource("a.dat")
	m := d.AddMachine(Machine{Name: "game"})
	i := d.AddItem(Item{Kind: KindRom, Name: "foo.rom", Size: 4, Machine: m, Source: src, Hashes: HashSet{CRC32: "DEADBEEF"}})

	e := d.Entry(i)
	if e.MachineName() != "game" {
		t.Errorf("MachineName() = %q, want %q", e.MachineName(), "game")
	}
	if e.Source.Name != "a.dat" {
		t.Errorf("Source.Name = %q, want %q", e.Source.Name, "a.dat")
	}
	if e.Item.Hashes.CRC32 != "deadbeef" {
		t.Errorf("CRC32 = %q, want normalized %q", e.Item.Hashes.CRC32, "deadbeef")
	}
}

func TestDatFile_AddItemClearsSizeForUnsizedKinds(t *testing.T) {
	d := NewDatFile(Header{})
	i := d.AddItem(Item{Kind: KindDisk, Name: "disk.chd", Size: 1024, Machine: NoMachine})

	if d.Items[i].Size != SizeUnknown {
		t.Errorf("Size = %d, want %d", d.Items[i].Size, SizeUnknown)
	}
	if d.Items[i].HasSize() {
		t.Error("HasSize() = true for disk, want false")
	}
}

func TestDatFile_CopyPreservesSourceIndex(t *testing.T) {
	src := NewDatFile(Header{})
	src.AddSource("old.dat")
	s1 := src.AddSource("new.dat")
	m := src.AddMachine(Machine{Name: "game"})
	i := src.AddItem(Item{Kind: KindRom, Name: "a.rom", Machine: m, Source: s1})

	dst := NewDatFile(Header{})
	j := dst.Copy(src.Entry(i))

	e := dst.Entry(j)
	if e.Source.Index != 1 || e.Source.Name != "new.dat" {
		t.Errorf("Source = %+v, want index 1 name new.dat", e.Source)
	}
	if e.MachineName() != "game" {
		t.Errorf("MachineName() = %q, want %q", e.MachineName(), "game")
	}
}

func TestDupeType_String(t *testing.T) {
	tests := []struct {
		d    DupeType
		want string
	}{
		{0, "none"},
		{DupeExternal | DupeAll, "external|all"},
		{DupeInternal | DupeHash, "internal|hash"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
