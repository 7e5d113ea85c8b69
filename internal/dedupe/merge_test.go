package dedupe

import (
	"testing"

	"romba-go/internal/model"
)

func newDat(name string) *model.DatFile {
	d := model.NewDatFile(model.Header{Name: name})
	d.AddSource(name)
	return d
}

func addRom(d *model.DatFile, machine, name, sha1 string) int {
	m := d.AddMachine(model.Machine{Name: machine})
	return d.AddItem(model.Item{
		Kind:    model.KindRom,
		Name:    name,
		Size:    model.SizeUnknown,
		Machine: m,
		Source:  0,
		Hashes:  model.HashSet{SHA1: sha1},
	})
}

func sha(c byte) string {
	b := make([]byte, model.SHA1Length)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

func TestGetKey(t *testing.T) {
	d := model.NewDatFile(model.Header{})
	d.AddSource("a.dat")
	d.AddSource("b.dat")
	m := d.AddMachine(model.Machine{Name: "Game"})
	r := d.AddItem(model.Item{Kind: model.KindRom, Name: "a", Machine: m, Source: 1, Hashes: model.HashSet{CRC32: "DEADBEEF"}})
	disk := d.AddItem(model.Item{Kind: model.KindDisk, Name: "d", Machine: model.NoMachine, Source: 0})

	tests := []struct {
		name      string
		item      int
		by        BucketBy
		lowercase bool
		norename  bool
		want      string
	}{
		{name: "crc lowercased", item: r, by: BucketCRC, lowercase: true, want: "deadbeef"},
		{name: "absent md5 defaults to zero", item: r, by: BucketMD5, want: model.ZeroMD5},
		{name: "disk cannot carry crc", item: disk, by: BucketCRC, want: ""},
		{name: "disk sha1 defaults to zero", item: disk, by: BucketSHA1, want: model.ZeroSHA1},
		{name: "machine with source prefix", item: r, by: BucketMachine, want: "0000000001-Game"},
		{name: "machine lowercased", item: r, by: BucketMachine, lowercase: true, want: "0000000001-game"},
		{name: "machine norename", item: r, by: BucketMachine, norename: true, want: "Game"},
		{name: "machine missing", item: disk, by: BucketMachine, want: ""},
		{name: "none", item: r, by: BucketNone, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetKey(d.Entry(tt.item), tt.by, tt.lowercase, tt.norename)
			if got != tt.want {
				t.Errorf("GetKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseBucketBy(t *testing.T) {
	for _, by := range []BucketBy{BucketCRC, BucketMD5, BucketSHA1, BucketSHA256, BucketSHA384, BucketSHA512, BucketSpamSum, BucketMachine} {
		got, err := ParseBucketBy(by.String())
		if err != nil {
			t.Fatalf("ParseBucketBy(%q) error = %v", by.String(), err)
		}
		if got != by {
			t.Errorf("ParseBucketBy(%q) = %v, want %v", by.String(), got, by)
		}
	}
	if _, err := ParseBucketBy("bogus"); err == nil {
		t.Error("ParseBucketBy(bogus) expected error")
	}
}

func TestMarkDuplicates(t *testing.T) {
	a := newDat("a.dat")
	addRom(a, "game", "foo.rom", sha('1'))
	addRom(a, "game", "bar.rom", sha('2'))
	b := newDat("b.dat")
	addRom(b, "game", "foo.rom", sha('1'))
	addRom(b, "other", "baz.rom", sha('2'))

	merged := Merge(model.Header{Name: "merged"}, a, b)
	flagged := MarkDuplicates(merged, BucketSHA1)
	if flagged != 2 {
		t.Fatalf("MarkDuplicates() = %d, want 2", flagged)
	}

	// foo.rom from b.dat duplicates foo.rom from a.dat in the same machine.
	if got := merged.Items[2].Dupe; got != model.DupeExternal|model.DupeAll {
		t.Errorf("foo.rom dupe = %v, want external|all", got)
	}
	// bar.rom sorts before baz.rom, so baz.rom is the flagged one.
	if got := merged.Items[3].Dupe; got != model.DupeExternal|model.DupeHash {
		t.Errorf("baz.rom dupe = %v, want external|hash", got)
	}
	if merged.Items[0].Dupe != 0 || merged.Items[1].Dupe != 0 {
		t.Error("first item of each bucket should not be flagged")
	}
}

func TestDeduplicate(t *testing.T) {
	d := newDat("a.dat")
	addRom(d, "game", "foo.rom", sha('1'))
	addRom(d, "game", "foo.rom", sha('1'))
	addRom(d, "game", "bar.rom", sha('2'))

	out := Deduplicate(d, BucketSHA1)
	if out.Len() != 2 {
		t.Fatalf("Deduplicate() len = %d, want 2", out.Len())
	}
	if !d.Items[1].Removed {
		t.Error("duplicate item was not marked removed")
	}
}

func TestBucket_Deterministic(t *testing.T) {
	d := newDat("a.dat")
	addRom(d, "game", "B.rom", sha('1'))
	addRom(d, "game", "a.rom", sha('1'))
	addRom(d, "game", "c.rom", sha('2'))

	b := Bucket(d, BucketSHA1, true, false)
	if len(b.Keys) != 2 {
		t.Fatalf("len(Keys) = %d, want 2", len(b.Keys))
	}
	first := b.Items[b.Keys[0]]
	if len(first) != 2 || d.Items[first[0]].Name != "a.rom" {
		t.Errorf("bucket order = %v, want a.rom first", first)
	}
}

func TestDiff(t *testing.T) {
	older := newDat("old.dat")
	addRom(older, "game", "A", sha('1'))
	addRom(older, "game", "B", sha('2'))

	newer := newDat("new.dat")
	addRom(newer, "game", "B", sha('2'))
	addRom(newer, "game", "C", sha('3'))

	out := Diff(older, newer)
	if out.Len() != 1 {
		t.Fatalf("Diff() len = %d, want 1", out.Len())
	}
	if out.Items[0].Name != "C" {
		t.Errorf("Diff() item = %q, want C", out.Items[0].Name)
	}
}

func TestDiff_KeepsCollidingNewItems(t *testing.T) {
	older := newDat("old.dat")
	newer := newDat("new.dat")
	addRom(newer, "game1", "x", sha('4'))
	addRom(newer, "game2", "x", sha('4'))

	out := Diff(older, newer)
	if out.Len() != 2 {
		t.Fatalf("Diff() len = %d, want 2", out.Len())
	}
	if out.Entry(0).MachineName() != "game1" || out.Entry(1).MachineName() != "game2" {
		t.Error("Diff() should retain every colliding new item with its machine")
	}
}
