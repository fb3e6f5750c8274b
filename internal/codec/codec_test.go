package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"go-danmaku/internal/model"
)

func rawHeader(total uint32, headerSize, ver uint16, op, seq uint32) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint32(b[0:4], total)
	binary.BigEndian.PutUint16(b[4:6], headerSize)
	binary.BigEndian.PutUint16(b[6:8], ver)
	binary.BigEndian.PutUint32(b[8:12], op)
	binary.BigEndian.PutUint32(b[12:16], seq)
	return b
}

func TestEncodeLayout(t *testing.T) {
	msg := model.Verification(1, []byte(`{"uid":1}`))
	out := Encode(msg)

	require.Len(t, out, int(msg.Header.TotalSize))
	assert.Equal(t, rawHeader(16+9, 16, 1, 7, 1), out[:16])
	assert.Equal(t, []byte(`{"uid":1}`), out[16:])
}

func TestHeartbeatEncodesBareHeader(t *testing.T) {
	out := Encode(model.Heartbeat(42))
	assert.Equal(t, rawHeader(16, 16, 1, 2, 42), out)
}

func TestDecodeRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, 1<<16).Draw(t, "payload")
		msg := model.Message{
			Header: model.Header{
				TotalSize:       uint32(16 + len(payload)),
				HeaderSize:      16,
				ProtocolVersion: model.ProtocolVersion(rapid.Uint16().Draw(t, "ver")),
				Opcode:          model.Opcode(rapid.Uint32().Draw(t, "op")),
				Sequence:        rapid.Uint32().Draw(t, "seq"),
			},
			Payload: payload,
		}
		encoded := Encode(msg)
		trailing := rapid.SliceOfN(rapid.Byte(), 0, 32).Draw(t, "trailing")

		got, n, err := Decode(append(encoded, trailing...))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got == nil || n != len(encoded) {
			t.Fatalf("expected full frame, consumed %d of %d", n, len(encoded))
		}
		if got.Header != msg.Header || !bytes.Equal(got.Payload, payload) {
			t.Fatalf("round trip mismatch: %+v", got.Header)
		}
	})
}

func TestDecodeMaxPayload(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, model.MaxFrameSize-model.HeaderSize)
	msg := model.Message{
		Header:  model.Header{TotalSize: model.MaxFrameSize, HeaderSize: 16, Opcode: model.OpNormal},
		Payload: payload,
	}
	got, n, err := Decode(Encode(msg))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.MaxFrameSize, n)
	assert.Equal(t, len(payload), len(got.Payload))
}

func TestDecodeNeedsMoreData(t *testing.T) {
	full := Encode(model.Verification(1, []byte("hello world")))

	for _, cut := range []int{0, 1, 15, 16, len(full) - 1} {
		got, n, err := Decode(full[:cut])
		require.NoError(t, err, "cut=%d", cut)
		assert.Nil(t, got, "cut=%d", cut)
		assert.Zero(t, n, "cut=%d", cut)
	}
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	buf := rawHeader(model.MaxFrameSize+1, 16, 0, 5, 0)

	_, n, err := Decode(buf)
	assert.True(t, errors.Is(err, ErrOversizedFrame))
	assert.Zero(t, n)

	// 后续负载内容无关紧要
	_, _, err = Decode(append(buf, make([]byte, 1024)...))
	assert.ErrorIs(t, err, ErrOversizedFrame)
}

func TestDecodeRejectsInconsistentHeader(t *testing.T) {
	_, _, err := Decode(rawHeader(20, 32, 0, 5, 0))
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, _, err = Decode(rawHeader(0, 0, 0, 5, 0))
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

// chunkReader 每次只返回 size 字节，模拟 TCP 分片。
type chunkReader struct {
	data []byte
	size int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.size
	if n > len(p) {
		n = len(p)
	}
	if n > len(c.data) {
		n = len(c.data)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func TestReaderReassemblesFragmentedStream(t *testing.T) {
	big := bytes.Repeat([]byte("x"), 20000)
	var stream []byte
	stream = Append(stream, model.Heartbeat(2))
	stream = Append(stream, model.Verification(3, big))
	stream = Append(stream, model.Heartbeat(4))

	r := NewReader(&chunkReader{data: stream, size: 7})

	m1, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), m1.Header.Sequence)

	m2, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, big, m2.Payload)

	m3, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, model.OpHeartbeat, m3.Header.Opcode)

	_, err = r.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderUnexpectedEOFMidFrame(t *testing.T) {
	frame := Encode(model.Verification(1, []byte("truncated")))
	r := NewReader(bytes.NewReader(frame[:20]))

	_, err := r.ReadMessage()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReaderOversizedFrame(t *testing.T) {
	r := NewReader(bytes.NewReader(rawHeader(model.MaxFrameSize+1, 16, 0, 5, 0)))

	_, err := r.ReadMessage()
	assert.ErrorIs(t, err, ErrOversizedFrame)
}
