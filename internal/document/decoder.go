// Package document normalizes fetched report documents into UTF-8 bytes.
// Payloads may be gzip-compressed and, for the Japanese marketplace, encoded
// in Shift-JIS rather than UTF-8.
package document

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// gzipMagic is the two-byte gzip stream header.
var gzipMagic = []byte{0x1f, 0x8b}

// Decode turns one raw document payload into normalized UTF-8 bytes,
// decompressing when needed. The compressed flag comes from the document
// reference; the gzip magic number is checked as well because some payloads
// arrive compressed without being flagged.
func Decode(raw []byte, compressed bool) ([]byte, error) {
	if compressed || isGzip(raw) {
		decompressed, err := gunzip(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress document: %w", err)
		}
		raw = decompressed
	}
	return normalize(raw)
}

// DecodeParts decodes a multi-part document, concatenating the parts in
// document order.
func DecodeParts(parts [][]byte, compressed bool) ([]byte, error) {
	var buf bytes.Buffer
	for i, part := range parts {
		decoded, err := Decode(part, compressed)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		buf.Write(decoded)
	}
	return buf.Bytes(), nil
}

func isGzip(raw []byte) bool {
	return len(raw) >= 2 && bytes.Equal(raw[:2], gzipMagic)
}

func gunzip(raw []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// normalize returns the payload as UTF-8. UTF-8 input passes through;
// otherwise Shift-JIS is tried first (JP marketplace TSVs), then Latin-1,
// which never fails.
func normalize(raw []byte) ([]byte, error) {
	if utf8.Valid(raw) {
		return raw, nil
	}

	if decoded, err := decodeWith(raw, japanese.ShiftJIS.NewDecoder()); err == nil {
		return decoded, nil
	}

	return decodeWith(raw, charmap.ISO8859_1.NewDecoder())
}

func decodeWith(raw []byte, decoder transform.Transformer) ([]byte, error) {
	decoded, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}
