package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	header := Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeRequest,
		Seq:       12345,
		BodyLen:   11,
	}
	body := []byte("hello world")

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &header, body))

	decodedHeader, decodedBody, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, header, *decodedHeader)
	assert.Equal(t, body, decodedBody)
}

func TestEncodeComputesBodyLen(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Header{MsgType: MsgTypeNotification, BodyLen: 999}, []byte("abc")))

	h, body, err := Decode(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, 3, h.BodyLen)
	assert.Equal(t, MsgTypeNotification, h.MsgType)
	assert.Equal(t, []byte("abc"), body)
}

func TestDecodeInvalidMagic(t *testing.T) {
	invalidHeader := []byte{0x00, 0x00, 0x00, Version, CodecTypeJSON, byte(MsgTypeRequest), 0x00, 0x00, 0x30, 0x39, 0x00, 0x00, 0x00, 0x0B}
	var buf bytes.Buffer
	buf.Write(invalidHeader)
	buf.Write([]byte("hello world"))

	_, _, err := Decode(&buf)
	require.Error(t, err)
	assert.Equal(t, ErrInvalidMagic, errors.Cause(err))
}

func TestDecodeEmptyBody(t *testing.T) {
	header := Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeHeartbeat,
		Seq:       12345,
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &header, nil))

	decodedHeader, decodedBody, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgTypeHeartbeat, decodedHeader.MsgType)
	assert.Zero(t, decodedHeader.BodyLen)
	assert.Empty(t, decodedBody)
}

func TestDecodeRejectsBadHeaderFields(t *testing.T) {
	cases := []struct {
		name  string
		patch func([]byte)
		want  error
	}{
		{"version", func(b []byte) { b[3] = 0xFF }, ErrUnsupportedVersion},
		{"codec", func(b []byte) { b[4] = 9 }, ErrUnsupportedCodec},
		{"msg type", func(b []byte) { b[5] = 42 }, ErrUnsupportedMsgType},
		{"body len", func(b []byte) { binary.BigEndian.PutUint32(b[10:14], MaxBodyLen+1) }, ErrBodyTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame := []byte{
				MagicNumber, MagicByte2, MagicByte3,
				Version,
				CodecTypeJSON,
				byte(MsgTypeRequest),
				0, 0, 0, 1,
				0, 0, 0, 0,
			}
			tc.patch(frame)

			_, _, err := Decode(bytes.NewReader(frame))
			require.Error(t, err)
			assert.Equal(t, tc.want, errors.Cause(err))
		})
	}
}

func TestDecodeLargeBody(t *testing.T) {
	var buf bytes.Buffer

	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}

	header := &Header{
		CodecType: CodecTypeCBOR,
		MsgType:   MsgTypeRequest,
		Seq:       999,
	}
	require.NoError(t, Encode(&buf, header, largeBody))

	_, decodedBody, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(decodedBody, largeBody))
}

func TestDecodeTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Header{MsgType: MsgTypeRequest}, []byte("full body")))
	truncated := buf.Bytes()[:buf.Len()-3]

	_, _, err := Decode(bytes.NewReader(truncated))
	require.Error(t, err)
}
