package depot

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"romba-go/internal/ingest"
	"romba-go/internal/model"
	"romba-go/internal/romba"
)

// extraLen is the length of the gzip extra field: MD5, CRC32, size.
const extraLen = md5Bytes + crcBytes + sizeBytes

const (
	md5Bytes  = 16
	crcBytes  = 4
	sizeBytes = 8
)

// encodeExtra packs the header metadata. CRC32 is big-endian as it is
// printed; the size is little-endian.
func encodeExtra(info romba.ObjectInfo) ([]byte, error) {
	md5, err := hex.DecodeString(info.MD5)
	if err != nil || len(md5) != md5Bytes {
		return nil, fmt.Errorf("md5 %q: %w", info.MD5, romba.ErrInvalidHash)
	}
	crc, err := hex.DecodeString(info.CRC32)
	if err != nil || len(crc) != crcBytes {
		return nil, fmt.Errorf("crc32 %q: %w", info.CRC32, romba.ErrInvalidHash)
	}
	extra := make([]byte, 0, extraLen)
	extra = append(extra, md5...)
	extra = append(extra, crc...)
	extra = binary.LittleEndian.AppendUint64(extra, uint64(info.Size))
	return extra, nil
}

func decodeExtra(extra []byte) (*romba.ObjectInfo, error) {
	if len(extra) != extraLen {
		return nil, fmt.Errorf("extra field has %d bytes, want %d: %w", len(extra), extraLen, romba.ErrCorruptObject)
	}
	return &romba.ObjectInfo{
		MD5:   hex.EncodeToString(extra[:md5Bytes]),
		CRC32: hex.EncodeToString(extra[md5Bytes : md5Bytes+crcBytes]),
		Size:  int64(binary.LittleEndian.Uint64(extra[md5Bytes+crcBytes:])),
	}, nil
}

// writeObject compresses r into w with the depot header. It returns the
// hashes of what it read so the caller can check them against the claim.
func writeObject(w io.Writer, r io.Reader, info romba.ObjectInfo) (model.HashSet, int64, error) {
	extra, err := encodeExtra(info)
	if err != nil {
		return model.HashSet{}, 0, err
	}
	zw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return model.HashSet{}, 0, fmt.Errorf("creating gzip writer: %w", err)
	}
	zw.Header.Extra = extra
	zw.Header.OS = 0
	zw.Header.ModTime = time.Unix(0, 0)

	h := ingest.NewHasher()
	if _, err := io.Copy(zw, io.TeeReader(r, h)); err != nil {
		zw.Close()
		return model.HashSet{}, h.Size(), fmt.Errorf("compressing content: %w", err)
	}
	if err := zw.Close(); err != nil {
		return model.HashSet{}, h.Size(), fmt.Errorf("finishing gzip stream: %w", err)
	}
	return h.Sum(), h.Size(), nil
}

// readHeader opens a gzip reader over an object and decodes its metadata.
func readHeader(r io.Reader) (*gzip.Reader, *romba.ObjectInfo, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading gzip header: %v: %w", err, romba.ErrCorruptObject)
	}
	info, err := decodeExtra(zr.Header.Extra)
	if err != nil {
		zr.Close()
		return nil, nil, err
	}
	return zr, info, nil
}

// verify compares hashes computed from decompressed content with the
// header and with the SHA-1 the object is named by.
func verify(sha1 string, info *romba.ObjectInfo, got model.HashSet, size int64) error {
	switch {
	case size != info.Size:
		return fmt.Errorf("%s: size %d, header says %d: %w", sha1, size, info.Size, romba.ErrCorruptObject)
	case got.SHA1 != sha1:
		return fmt.Errorf("%s: content hashes to %s: %w", sha1, got.SHA1, romba.ErrCorruptObject)
	case got.MD5 != info.MD5:
		return fmt.Errorf("%s: md5 %s, header says %s: %w", sha1, got.MD5, info.MD5, romba.ErrCorruptObject)
	case got.CRC32 != info.CRC32:
		return fmt.Errorf("%s: crc32 %s, header says %s: %w", sha1, got.CRC32, info.CRC32, romba.ErrCorruptObject)
	}
	return nil
}

// verifyingReader hashes decompressed content as it is read and checks the
// result against the header once the stream ends.
type verifyingReader struct {
	sha1 string
	info *romba.ObjectInfo
	zr   *gzip.Reader
	f    io.Closer
	h    *ingest.Hasher
	err  error
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	if v.err != nil {
		return 0, v.err
	}
	n, err := v.zr.Read(p)
	v.h.Write(p[:n])
	if err == io.EOF {
		if verr := verify(v.sha1, v.info, v.h.Sum(), v.h.Size()); verr != nil {
			v.err = verr
			return n, verr
		}
	} else if err != nil {
		v.err = fmt.Errorf("%s: %v: %w", v.sha1, err, romba.ErrCorruptObject)
		return n, v.err
	}
	return n, err
}

func (v *verifyingReader) Close() error {
	zerr := v.zr.Close()
	ferr := v.f.Close()
	if zerr != nil {
		return zerr
	}
	return ferr
}
