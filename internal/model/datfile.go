package model

// Header is the descriptive block at the top of a DAT.
type Header struct {
	Name        string
	Description string
	Version     string
	Author      string
	Comment     string
}

// DatFile is an owned collection of items. Machines and sources live in
// arenas shared by many items; items refer to them by index.
type DatFile struct {
	Header   Header
	Machines []Machine
	Sources  []Source
	Items    []Item

	machineByName map[string]int
}

// NewDatFile creates an empty DatFile with the given header.
func NewDatFile(header Header) *DatFile {
	return &DatFile{
		Header:        header,
		machineByName: make(map[string]int),
	}
}

// AddSource registers an input DAT and returns its index.
func (d *DatFile) AddSource(name string) int {
	idx := len(d.Sources)
	d.Sources = append(d.Sources, Source{Index: idx, Name: name})
	return idx
}

// AddMachine returns the index of the machine with m.Name, creating it if
// it is not yet present. An existing machine keeps its original metadata.
func (d *DatFile) AddMachine(m Machine) int {
	if d.machineByName == nil {
		d.machineByName = make(map[string]int)
	}
	if idx, ok := d.machineByName[m.Name]; ok {
		return idx
	}
	idx := len(d.Machines)
	d.Machines = append(d.Machines, m)
	d.machineByName[m.Name] = idx
	return idx
}

// MachineIndex returns the arena index of the named machine.
func (d *DatFile) MachineIndex(name string) (int, bool) {
	idx, ok := d.machineByName[name]
	return idx, ok
}

// AddItem appends an item and returns its index. Hashes are normalized.
func (d *DatFile) AddItem(it Item) int {
	it.Hashes = it.Hashes.Normalize()
	if !it.Kind.Sized() {
		it.Size = SizeUnknown
	}
	d.Items = append(d.Items, it)
	return len(d.Items) - 1
}

// Entry resolves item i against the arenas.
func (d *DatFile) Entry(i int) Entry {
	it := &d.Items[i]
	e := Entry{Item: it}
	if it.Machine >= 0 && it.Machine < len(d.Machines) {
		e.Machine = &d.Machines[it.Machine]
	}
	if it.Source >= 0 && it.Source < len(d.Sources) {
		e.Source = d.Sources[it.Source]
	} else {
		e.Source = Source{Index: it.Source}
	}
	return e
}

// Len returns the number of items, removed ones included.
func (d *DatFile) Len() int {
	return len(d.Items)
}

// Copy appends the item described by e to d, re-homing its machine and
// source into d's arenas. The source index is preserved.
func (d *DatFile) Copy(e Entry) int {
	it := *e.Item
	it.Machine = NoMachine
	if e.Machine != nil {
		it.Machine = d.AddMachine(*e.Machine)
	}
	it.Source = d.sourceFor(e.Source)
	return d.AddItem(it)
}

func (d *DatFile) sourceFor(src Source) int {
	if src.Index < 0 {
		return src.Index
	}
	for len(d.Sources) <= src.Index {
		d.AddSource("")
	}
	if d.Sources[src.Index].Name == "" {
		d.Sources[src.Index].Name = src.Name
	}
	return src.Index
}
