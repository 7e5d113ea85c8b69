package dedupe

import (
	"sort"
	"strings"

	"romba-go/internal/model"
)

// Buckets holds item indexes grouped by key. Keys are sorted and every
// bucket is in name order, so iteration is deterministic.
type Buckets struct {
	Keys  []string
	Items map[string][]int
}

// Bucket groups the non-removed items of d by key. Within a bucket items
// are ordered by case-folded name, then source index, then original
// position.
func Bucket(d *model.DatFile, by BucketBy, lowercase, norename bool) *Buckets {
	b := &Buckets{Items: make(map[string][]int)}
	for i := range d.Items {
		if d.Items[i].Removed {
			continue
		}
		key := GetKey(d.Entry(i), by, lowercase, norename)
		if _, ok := b.Items[key]; !ok {
			b.Keys = append(b.Keys, key)
		}
		b.Items[key] = append(b.Items[key], i)
	}
	sort.Strings(b.Keys)

	for _, key := range b.Keys {
		idx := b.Items[key]
		sort.SliceStable(idx, func(x, y int) bool {
			a, c := &d.Items[idx[x]], &d.Items[idx[y]]
			an, cn := strings.ToLower(a.Name), strings.ToLower(c.Name)
			if an != cn {
				return an < cn
			}
			if a.Source != c.Source {
				return a.Source < c.Source
			}
			return idx[x] < idx[y]
		})
	}
	return b
}

// MarkDuplicates runs the bucketed merge pass: every item is classified
// against its predecessor in its bucket and its Dupe flags are written in
// place. It returns the number of items flagged.
func MarkDuplicates(d *model.DatFile, by BucketBy) int {
	buckets := Bucket(d, by, true, false)
	flagged := 0
	for _, key := range buckets.Keys {
		idx := buckets.Items[key]
		if len(idx) > 0 {
			d.Items[idx[0]].Dupe = 0
		}
		for j := 1; j < len(idx); j++ {
			flags := Classify(d.Entry(idx[j]), d.Entry(idx[j-1]))
			d.Items[idx[j]].Dupe = flags
			if flags != 0 {
				flagged++
			}
		}
	}
	return flagged
}

// Deduplicate marks duplicates in d and returns a new DatFile holding only
// the first item of every duplicate run. Flagged items in d are marked
// Removed.
func Deduplicate(d *model.DatFile, by BucketBy) *model.DatFile {
	MarkDuplicates(d, by)

	out := model.NewDatFile(d.Header)
	for _, s := range d.Sources {
		out.AddSource(s.Name)
	}
	for i := range d.Items {
		it := &d.Items[i]
		if it.Removed {
			continue
		}
		if it.Dupe != 0 {
			it.Removed = true
			continue
		}
		out.Copy(d.Entry(i))
	}
	return out
}

// Merge concatenates several DATs into one, assigning each input its own
// source index in argument order.
func Merge(header model.Header, dats ...*model.DatFile) *model.DatFile {
	out := model.NewDatFile(header)
	for _, d := range dats {
		name := d.Header.Name
		src := out.AddSource(name)
		for i := range d.Items {
			e := d.Entry(i)
			item := *e.Item
			item.Machine = model.NoMachine
			if e.Machine != nil {
				item.Machine = out.AddMachine(*e.Machine)
			}
			item.Source = src
			item.Dupe = 0
			out.AddItem(item)
		}
	}
	return out
}
