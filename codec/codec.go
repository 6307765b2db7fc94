// Package codec serializes RPC envelopes for the frame body.
package codec

import (
	"strings"

	"github.com/pkg/errors"
)

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
	CodecTypeCBOR CodecType = 1
)

var ErrUnknownCodec = errors.New("codec: unknown codec")

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeCBOR:
		return "cbor"
	}
	return "unknown"
}

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=CBOR
}

var (
	jsonCodec Codec = &JSONCodec{}
	cborCodec Codec = newCBORCodec()
)

// GetCodec returns the codec for codecType, falling back to JSON.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeCBOR {
		return cborCodec
	}
	return jsonCodec
}

// ParseCodecType maps a configuration name to a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return CodecTypeJSON, nil
	case "cbor":
		return CodecTypeCBOR, nil
	}
	return 0, errors.Wrapf(ErrUnknownCodec, "%q", name)
}
