// Package datfile reads and writes DAT files in the Logiqx XML dialect.
package datfile

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"romba-go/internal/ingest"
	"romba-go/internal/model"
)

const doctype = `<!DOCTYPE datafile PUBLIC "-//Logiqx//DTD ROM Management Datafile//EN" "http://www.logiqx.com/Dats/datafile.dtd">`

type xmlDatafile struct {
	XMLName  xml.Name     `xml:"datafile"`
	Header   xmlHeader    `xml:"header"`
	Machines []xmlMachine `xml:"machine"`
	Games    []xmlMachine `xml:"game"`
}

type xmlHeader struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	Version     string `xml:"version,omitempty"`
	Author      string `xml:"author,omitempty"`
	Comment     string `xml:"comment,omitempty"`
}

type xmlMachine struct {
	Name         string     `xml:"name,attr"`
	CloneOf      string     `xml:"cloneof,attr,omitempty"`
	RomOf        string     `xml:"romof,attr,omitempty"`
	Description  string     `xml:"description"`
	Year         string     `xml:"year,omitempty"`
	Manufacturer string     `xml:"manufacturer,omitempty"`
	Roms         []xmlRom   `xml:"rom"`
	Disks        []xmlDisk  `xml:"disk"`
	Media        []xmlMedia `xml:"media"`
}

type xmlRom struct {
	Name    string `xml:"name,attr"`
	Size    string `xml:"size,attr,omitempty"`
	CRC     string `xml:"crc,attr,omitempty"`
	MD5     string `xml:"md5,attr,omitempty"`
	SHA1    string `xml:"sha1,attr,omitempty"`
	SHA256  string `xml:"sha256,attr,omitempty"`
	SHA384  string `xml:"sha384,attr,omitempty"`
	SHA512  string `xml:"sha512,attr,omitempty"`
	SpamSum string `xml:"spamsum,attr,omitempty"`
	Status  string `xml:"status,attr,omitempty"`
}

type xmlDisk struct {
	Name   string `xml:"name,attr"`
	MD5    string `xml:"md5,attr,omitempty"`
	SHA1   string `xml:"sha1,attr,omitempty"`
	Status string `xml:"status,attr,omitempty"`
}

type xmlMedia struct {
	Name    string `xml:"name,attr"`
	MD5     string `xml:"md5,attr,omitempty"`
	SHA1    string `xml:"sha1,attr,omitempty"`
	SHA256  string `xml:"sha256,attr,omitempty"`
	SpamSum string `xml:"spamsum,attr,omitempty"`
}

// Read parses one Logiqx DAT. All items get the single source named source.
func Read(r io.Reader, source string) (*model.DatFile, error) {
	var doc xmlDatafile
	dec := xml.NewDecoder(r)
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding dat: %w", err)
	}

	d := model.NewDatFile(model.Header{
		Name:        doc.Header.Name,
		Description: doc.Header.Description,
		Version:     doc.Header.Version,
		Author:      doc.Header.Author,
		Comment:     doc.Header.Comment,
	})
	src := d.AddSource(source)

	for _, m := range append(doc.Machines, doc.Games...) {
		mi := d.AddMachine(model.Machine{
			Name:         m.Name,
			Description:  m.Description,
			Year:         m.Year,
			Manufacturer: m.Manufacturer,
			CloneOf:      m.CloneOf,
			RomOf:        m.RomOf,
		})
		for _, r := range m.Roms {
			d.AddItem(model.Item{
				Kind:    model.KindRom,
				Name:    r.Name,
				Size:    parseSize(r.Size),
				Machine: mi,
				Source:  src,
				Hashes: model.HashSet{
					CRC32:   r.CRC,
					MD5:     r.MD5,
					SHA1:    r.SHA1,
					SHA256:  r.SHA256,
					SHA384:  r.SHA384,
					SHA512:  r.SHA512,
					SpamSum: r.SpamSum,
					Status:  model.ParseStatus(r.Status),
				},
			})
		}
		for _, dk := range m.Disks {
			d.AddItem(model.Item{
				Kind:    model.KindDisk,
				Name:    dk.Name,
				Machine: mi,
				Source:  src,
				Hashes:  model.HashSet{MD5: dk.MD5, SHA1: dk.SHA1, Status: model.ParseStatus(dk.Status)},
			})
		}
		for _, md := range m.Media {
			d.AddItem(model.Item{
				Kind:    model.KindMedia,
				Name:    md.Name,
				Machine: mi,
				Source:  src,
				Hashes:  model.HashSet{MD5: md.MD5, SHA1: md.SHA1, SHA256: md.SHA256, SpamSum: md.SpamSum},
			})
		}
	}
	return d, nil
}

// ReadFile parses the DAT at path and returns it with the SHA-1 of the raw
// file, which identifies the DAT in the index.
func ReadFile(path string) (*model.DatFile, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading dat: %w", err)
	}
	d, sha1, err := Parse(data, filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return d, sha1, nil
}

// Parse is ReadFile for a DAT already in memory.
func Parse(data []byte, source string) (*model.DatFile, string, error) {
	hs, _, err := ingest.Sum(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	d, err := Read(bytes.NewReader(data), source)
	if err != nil {
		return nil, "", err
	}
	return d, hs.SHA1, nil
}

// IsDatFile reports whether path has an extension DAT files use.
func IsDatFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dat", ".xml":
		return true
	}
	return false
}

func parseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.SizeUnknown
	}
	var n int64
	var err error
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		n, err = strconv.ParseInt(rest, 16, 64)
	} else {
		n, err = strconv.ParseInt(s, 10, 64)
	}
	if err != nil || n < 0 {
		return model.SizeUnknown
	}
	return n
}

// Write emits d as Logiqx XML. Removed items are skipped and machines are
// written in the order they first appear. Generic files are written as
// roms.
func Write(w io.Writer, d *model.DatFile) error {
	doc := xmlDatafile{Header: xmlHeader{
		Name:        d.Header.Name,
		Description: d.Header.Description,
		Version:     d.Header.Version,
		Author:      d.Header.Author,
		Comment:     d.Header.Comment,
	}}
	if doc.Header.Description == "" {
		doc.Header.Description = doc.Header.Name
	}

	slot := make(map[int]int)
	for i := range d.Items {
		it := &d.Items[i]
		if it.Removed {
			continue
		}
		j, ok := slot[it.Machine]
		if !ok {
			m := xmlMachine{}
			if it.Machine >= 0 && it.Machine < len(d.Machines) {
				src := d.Machines[it.Machine]
				m = xmlMachine{
					Name:         src.Name,
					CloneOf:      src.CloneOf,
					RomOf:        src.RomOf,
					Description:  src.Description,
					Year:         src.Year,
					Manufacturer: src.Manufacturer,
				}
			}
			if m.Description == "" {
				m.Description = m.Name
			}
			doc.Machines = append(doc.Machines, m)
			j = len(doc.Machines) - 1
			slot[it.Machine] = j
		}
		m := &doc.Machines[j]
		h := it.Hashes
		switch it.Kind {
		case model.KindDisk:
			m.Disks = append(m.Disks, xmlDisk{Name: it.Name, MD5: h.MD5, SHA1: h.SHA1, Status: statusAttr(h.Status)})
		case model.KindMedia:
			m.Media = append(m.Media, xmlMedia{Name: it.Name, MD5: h.MD5, SHA1: h.SHA1, SHA256: h.SHA256, SpamSum: h.SpamSum})
		default:
			rom := xmlRom{
				Name:    it.Name,
				CRC:     h.CRC32,
				MD5:     h.MD5,
				SHA1:    h.SHA1,
				SHA256:  h.SHA256,
				SHA384:  h.SHA384,
				SHA512:  h.SHA512,
				SpamSum: h.SpamSum,
				Status:  statusAttr(h.Status),
			}
			if it.HasSize() {
				rom.Size = strconv.FormatInt(it.Size, 10)
			}
			m.Roms = append(m.Roms, rom)
		}
	}

	if _, err := io.WriteString(w, xml.Header+doctype+"\n"); err != nil {
		return fmt.Errorf("writing dat: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "\t")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding dat: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("writing dat: %w", err)
	}
	return nil
}

// WriteFile writes d to path, replacing it atomically.
func WriteFile(path string, d *model.DatFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := Write(tmp, d); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// statusAttr omits the default status.
func statusAttr(s model.Status) string {
	if s == model.StatusGood || s == model.StatusNone {
		return ""
	}
	return s.String()
}
