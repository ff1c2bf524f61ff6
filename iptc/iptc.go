// Package iptc implements the record-edit semantics of the IPTC IIM
// block embedded in a JPEG's Photoshop APP13 Image Resource Block
// (spec.md §4.6, §6). Block-level segment layout (the APP13/IRB
// wrapper) is jpegseg's job; this package only understands the binary
// IIM record stream found inside the 0x0404 resource.
package iptc

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
)

// ErrTruncated is returned when a record header or its declared data
// runs past the end of the buffer, and when a record does not start with
// the 0x1C marker byte.
var ErrTruncated = errors.New("iptc: truncated record")

const (
	recordMarker   = 0x1c
	recordEnvelope = 1
	recordApp      = 2

	datasetCharsetMarker = 90 // 1:90, identifies the text encoding used below
	datasetKeywords      = 25 // 2:25, repeated once per keyword
)

// utf8CharsetMarker is the IIM 1:90 payload that selects UTF-8, per the
// ISO 2022 escape sequence IPTC registered for it.
var utf8CharsetMarker = []byte{0x1b, 0x25, 0x47}

// Record is one IIM dataset: record number (1 = envelope, 2 = application)
// plus dataset number (e.g. 25 for Keywords) and its raw data bytes.
type Record struct {
	RecordNumber  byte
	DatasetNumber byte
	Data          []byte
}

// Block is a parsed IIM record stream.
type Block struct {
	Records []Record
}

// Parse decodes a raw IIM byte stream into a Block. Non-IIM bytes
// between records (padding) are not expected and cause a parse error;
// real-world IRBs should already isolate the IIM block before calling
// this.
func Parse(buf []byte) (*Block, error) {
	b := &Block{}
	pos := 0
	for pos < len(buf) {
		if buf[pos] != recordMarker {
			return nil, errors.Wrapf(ErrTruncated, "unexpected byte %#02x at %d", buf[pos], pos)
		}
		if pos+5 > len(buf) {
			return nil, errors.Wrap(ErrTruncated, "record header")
		}
		recNum := buf[pos+1]
		dsNum := buf[pos+2]
		length := int(buf[pos+3])<<8 | int(buf[pos+4])
		pos += 5
		if length >= 0x8000 {
			// Extended dataset (length-of-length form): not supported;
			// Parse fails here rather than misreading the length.
			return nil, errors.New("iptc: extended-length datasets are not supported")
		}
		if pos+length > len(buf) {
			return nil, errors.Wrap(ErrTruncated, "record data")
		}
		b.Records = append(b.Records, Record{RecordNumber: recNum, DatasetNumber: dsNum, Data: append([]byte(nil), buf[pos:pos+length]...)})
		pos += length
	}
	return b, nil
}

// Serialize re-emits the IIM record stream.
func (b *Block) Serialize() []byte {
	var out []byte
	for _, r := range b.Records {
		out = append(out, recordMarker, r.RecordNumber, r.DatasetNumber, byte(len(r.Data)>>8), byte(len(r.Data)))
		out = append(out, r.Data...)
	}
	return out
}

// Keywords returns every 2:25 record's data decoded as a string,
// in on-disk order.
func (b *Block) Keywords() []string {
	var out []string
	for _, r := range b.Records {
		if r.RecordNumber == recordApp && r.DatasetNumber == datasetKeywords {
			out = append(out, decodeText(b, r.Data))
		}
	}
	return out
}

// SetKeywords replaces every existing 2:25 record with one record per
// keyword, sorted ascending by string (spec.md §6), and ensures a 1:90
// UTF-8 charset marker is present whenever any keyword needs it.
func (b *Block) SetKeywords(keywords []string) {
	sorted := append([]string(nil), keywords...)
	sort.Strings(sorted)

	out := b.Records[:0]
	for _, r := range b.Records {
		if r.RecordNumber == recordApp && r.DatasetNumber == datasetKeywords {
			continue
		}
		if r.RecordNumber == recordEnvelope && r.DatasetNumber == datasetCharsetMarker {
			continue // re-added below if still needed
		}
		out = append(out, r)
	}
	b.Records = out

	if needsUTF8Marker(sorted) {
		b.Records = append([]Record{{RecordNumber: recordEnvelope, DatasetNumber: datasetCharsetMarker, Data: utf8CharsetMarker}}, b.Records...)
	}
	for _, kw := range sorted {
		b.Records = append(b.Records, Record{RecordNumber: recordApp, DatasetNumber: datasetKeywords, Data: []byte(kw)})
	}
}

// DeleteKeywords drops every 2:25 record.
func (b *Block) DeleteKeywords() {
	b.SetKeywords(nil)
}

func needsUTF8Marker(values []string) bool {
	for _, v := range values {
		for _, r := range v {
			if r > 0x7f {
				return true
			}
		}
	}
	return false
}

// decodeText decodes a dataset's bytes as UTF-8 when the block carries
// a 1:90 UTF-8 marker, falling back to Latin-1 (the IIM default charset)
// otherwise — using x/text/encoding/charmap for that legacy decode path
// rather than hand-rolling a byte-to-rune table.
func decodeText(b *Block, data []byte) string {
	for _, r := range b.Records {
		if r.RecordNumber == recordEnvelope && r.DatasetNumber == datasetCharsetMarker {
			if string(r.Data) == string(utf8CharsetMarker) {
				return string(data)
			}
		}
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}
