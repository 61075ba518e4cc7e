package document

import (
	"bytes"
	"compress/gzip"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDecodePlainUTF8(t *testing.T) {
	payload := []byte("sku\tqty\nABC-123\t4\n")
	decoded, err := Decode(payload, false)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestDecodeGzip(t *testing.T) {
	payload := []byte("sku\tqty\nABC-123\t4\n")

	t.Run("flagged compressed", func(t *testing.T) {
		decoded, err := Decode(gzipBytes(t, payload), true)
		require.NoError(t, err)
		assert.Equal(t, payload, decoded)
	})

	t.Run("unflagged but carrying the gzip magic", func(t *testing.T) {
		decoded, err := Decode(gzipBytes(t, payload), false)
		require.NoError(t, err)
		assert.Equal(t, payload, decoded)
	})

	t.Run("flagged but truncated stream fails", func(t *testing.T) {
		_, err := Decode([]byte{0x1f, 0x8b, 0x00}, true)
		assert.Error(t, err)
	})
}

func TestDecodeShiftJIS(t *testing.T) {
	// 商品 ("product") in Shift-JIS, as JP marketplace TSVs arrive.
	encoded, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte("商品\t数量\n"))
	require.NoError(t, err)
	require.False(t, bytes.Equal(encoded, []byte("商品\t数量\n")))

	decoded, err := Decode(encoded, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("商品\t数量\n"), decoded)
}

func TestDecodeGzipShiftJIS(t *testing.T) {
	encoded, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte("商品名\n"))
	require.NoError(t, err)

	decoded, err := Decode(gzipBytes(t, encoded), true)
	require.NoError(t, err)
	assert.Equal(t, []byte("商品名\n"), decoded)
}

func TestDecodeNonUTF8NeverFails(t *testing.T) {
	// 0xE9 is invalid as UTF-8; whichever legacy decoder handles it, the
	// result must be valid UTF-8 with the ASCII run preserved.
	decoded, err := Decode([]byte{'c', 'a', 'f', 0xE9, '\n'}, false)
	require.NoError(t, err)
	assert.True(t, utf8.Valid(decoded))
	assert.True(t, bytes.Contains(decoded, []byte("caf")))
}

func TestDecodeEmpty(t *testing.T) {
	decoded, err := Decode(nil, false)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDecodeParts(t *testing.T) {
	t.Run("concatenates in order", func(t *testing.T) {
		decoded, err := DecodeParts([][]byte{
			[]byte("header\n"), []byte("row1\n"), []byte("row2\n"),
		}, false)
		require.NoError(t, err)
		assert.Equal(t, []byte("header\nrow1\nrow2\n"), decoded)
	})

	t.Run("each part decompressed independently", func(t *testing.T) {
		decoded, err := DecodeParts([][]byte{
			gzipBytes(t, []byte("a\n")), gzipBytes(t, []byte("b\n")),
		}, true)
		require.NoError(t, err)
		assert.Equal(t, []byte("a\nb\n"), decoded)
	})

	t.Run("bad part reports its index", func(t *testing.T) {
		_, err := DecodeParts([][]byte{[]byte("ok\n"), {0x1f, 0x8b, 0x00}}, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "part 1")
	})
}
