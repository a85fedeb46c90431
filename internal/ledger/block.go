// Package ledger mirrors the upstream append-only block log into a local
// file and decodes it into typed entries for indexing. The wire format is
// byte-exact: a fixed 16-byte little-endian header per block, followed by a
// zlib-deflated body.
package ledger

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the fixed on-disk size of a block header.
const HeaderSize = 16

// EntryOp distinguishes an upsert from a tombstone entry.
type EntryOp uint8

const (
	OpUpsert EntryOp = 0
	OpDelete EntryOp = 1
)

var (
	ErrUnsupportedBlockVersion = errors.New("ledger: unsupported block version")
	ErrTruncatedBlock          = errors.New("ledger: truncated block")
	ErrMalformedBody           = errors.New("ledger: malformed block body")
)

// Header is the bit-exact 16-byte little-endian block header.
//
//	offset 0  u32  block_version (>=1; 0 means empty slot)
//	offset 4  i32  jump_bytes_prev (negative, offset back to previous header)
//	offset 8  u32  jump_bytes_next (positive, offset forward to next header)
//	offset 12 u32  reserved (0)
type Header struct {
	Version  uint32
	JumpPrev int32
	JumpNext uint32
	Reserved uint32
}

// IsEmptySlot reports whether this header marks the end of the log.
func (h Header) IsEmptySlot() bool { return h.Version == 0 }

// EncodeHeader writes the 16-byte wire form of h.
func EncodeHeader(h Header) [HeaderSize]byte {
	var out [HeaderSize]byte
	binary.LittleEndian.PutUint32(out[0:4], h.Version)
	binary.LittleEndian.PutUint32(out[4:8], uint32(h.JumpPrev))
	binary.LittleEndian.PutUint32(out[8:12], h.JumpNext)
	binary.LittleEndian.PutUint32(out[12:16], h.Reserved)
	return out
}

// DecodeHeader parses a 16-byte header. It does not reject unknown versions
// by itself; callers that need the full block must use DecodeBlock, which
// enforces ErrUnsupportedBlockVersion for anything this codec can't read.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: need %d bytes, got %d", ErrTruncatedBlock, HeaderSize, len(b))
	}
	return Header{
		Version:  binary.LittleEndian.Uint32(b[0:4]),
		JumpPrev: int32(binary.LittleEndian.Uint32(b[4:8])),
		JumpNext: binary.LittleEndian.Uint32(b[8:12]),
		Reserved: binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// Entry is a single labeled mutation inside a block body.
type Entry struct {
	Label string
	Key   []byte
	Value []byte
	Op    EntryOp
}

// Body is the decompressed, decoded payload of a block.
type Body struct {
	Entries     []Entry
	TimestampNs uint64
	ParentHash  []byte
}

// Block is a header paired with its decoded body.
type Block struct {
	Header Header
	Body   Body
}

// knownBodyVersion is the only body encoding this codec currently emits or
// accepts; bumping it would require a migration, which is out of scope.
const knownBodyVersion uint32 = 1

// EncodeBlockBody serializes entries/timestamp/parent_hash into the
// zlib-deflated structured byte form described in the wire spec.
func EncodeBlockBody(body Body) ([]byte, error) {
	var raw bytes.Buffer
	if err := binary.Write(&raw, binary.LittleEndian, uint32(len(body.Entries))); err != nil {
		return nil, err
	}
	for _, e := range body.Entries {
		if err := writeByteString(&raw, []byte(e.Label)); err != nil {
			return nil, err
		}
		if err := writeByteString(&raw, e.Key); err != nil {
			return nil, err
		}
		if err := writeByteString(&raw, e.Value); err != nil {
			return nil, err
		}
		if err := raw.WriteByte(byte(e.Op)); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(&raw, binary.LittleEndian, body.TimestampNs); err != nil {
		return nil, err
	}
	if err := writeByteString(&raw, body.ParentHash); err != nil {
		return nil, err
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return compressed.Bytes(), nil
}

// DecodeBlockBody inflates and decodes a block body produced by EncodeBlockBody.
func DecodeBlockBody(compressed []byte) (Body, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return Body{}, fmt.Errorf("%w: zlib: %v", ErrMalformedBody, err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return Body{}, fmt.Errorf("%w: inflate: %v", ErrMalformedBody, err)
	}

	r := bytes.NewReader(raw)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return Body{}, fmt.Errorf("%w: entry count: %v", ErrMalformedBody, err)
	}
	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		label, err := readByteString(r)
		if err != nil {
			return Body{}, fmt.Errorf("%w: entry %d label: %v", ErrMalformedBody, i, err)
		}
		key, err := readByteString(r)
		if err != nil {
			return Body{}, fmt.Errorf("%w: entry %d key: %v", ErrMalformedBody, i, err)
		}
		value, err := readByteString(r)
		if err != nil {
			return Body{}, fmt.Errorf("%w: entry %d value: %v", ErrMalformedBody, i, err)
		}
		opByte, err := r.ReadByte()
		if err != nil {
			return Body{}, fmt.Errorf("%w: entry %d op: %v", ErrMalformedBody, i, err)
		}
		entries = append(entries, Entry{Label: string(label), Key: key, Value: value, Op: EntryOp(opByte)})
	}

	var ts uint64
	if err := binary.Read(r, binary.LittleEndian, &ts); err != nil {
		return Body{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedBody, err)
	}
	parentHash, err := readByteString(r)
	if err != nil {
		return Body{}, fmt.Errorf("%w: parent hash: %v", ErrMalformedBody, err)
	}
	return Body{Entries: entries, TimestampNs: ts, ParentHash: parentHash}, nil
}

// DecodeBlock parses a header and its following compressed body from a byte
// slice positioned at the start of a block.
func DecodeBlock(buf []byte) (Block, int, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Block{}, 0, err
	}
	if h.IsEmptySlot() {
		return Block{Header: h}, HeaderSize, nil
	}
	if h.Version != knownBodyVersion {
		return Block{}, 0, fmt.Errorf("%w: %d", ErrUnsupportedBlockVersion, h.Version)
	}
	if int(h.JumpNext) < HeaderSize {
		return Block{}, 0, fmt.Errorf("%w: jump_next too small", ErrTruncatedBlock)
	}
	bodyEnd := int(h.JumpNext)
	if bodyEnd > len(buf) {
		return Block{}, 0, fmt.Errorf("%w: need %d bytes, got %d", ErrTruncatedBlock, bodyEnd, len(buf))
	}
	body, err := DecodeBlockBody(buf[HeaderSize:bodyEnd])
	if err != nil {
		return Block{}, 0, err
	}
	return Block{Header: h, Body: body}, bodyEnd, nil
}

// EncodeBlock assembles a full block (header+body) given the body contents;
// the header's JumpNext is computed from the compressed body length.
func EncodeBlock(version uint32, jumpPrev int32, body Body) ([]byte, error) {
	compressed, err := EncodeBlockBody(body)
	if err != nil {
		return nil, err
	}
	h := Header{
		Version:  version,
		JumpPrev: jumpPrev,
		JumpNext: uint32(HeaderSize + len(compressed)),
	}
	out := make([]byte, 0, HeaderSize+len(compressed))
	hdr := EncodeHeader(h)
	out = append(out, hdr[:]...)
	out = append(out, compressed...)
	return out, nil
}

func writeByteString(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readByteString(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, ErrTruncatedBlock
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
