package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCompressionRoundTripProperty(t *testing.T) {
	codecs := map[string]struct {
		encode func([]byte) ([]byte, error)
		decode func([]byte) ([]byte, error)
	}{
		"zlib":   {ZlibEncode, ZlibDecode},
		"brotli": {BrotliEncode, BrotliDecode},
	}

	for name, c := range codecs {
		c := c
		t.Run(name, func(t *testing.T) {
			rapid.Check(t, func(rt *rapid.T) {
				data := rapid.SliceOfN(rapid.Byte(), 0, 8192).Draw(rt, "data")
				compressed, err := c.encode(data)
				if err != nil {
					rt.Fatalf("encode: %v", err)
				}
				out, err := c.decode(compressed)
				if err != nil {
					rt.Fatalf("decode: %v", err)
				}
				if len(out) != len(data) || string(out) != string(data) {
					rt.Fatalf("round trip mismatch: got %d bytes, want %d", len(out), len(data))
				}
			})
		})
	}
}

func TestCompressionEmptyInput(t *testing.T) {
	z, err := ZlibEncode(nil)
	require.NoError(t, err)
	out, err := ZlibDecode(z)
	require.NoError(t, err)
	assert.Empty(t, out)

	b, err := BrotliEncode(nil)
	require.NoError(t, err)
	out, err = BrotliDecode(b)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecompressMalformed(t *testing.T) {
	garbage := []byte("definitely not a compressed stream")

	_, err := ZlibDecode(garbage)
	assert.ErrorIs(t, err, ErrDecompress)

	_, err = BrotliDecode(garbage)
	assert.ErrorIs(t, err, ErrDecompress)
}
