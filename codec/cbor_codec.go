package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBORCodec is the compact binary encoding. Params and results stay raw JSON
// inside the envelope and travel as CBOR byte strings.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() *CBORCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return &CBORCodec{enc: enc, dec: dec}
}

func (c *CBORCodec) Encode(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c *CBORCodec) Decode(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}

func (c *CBORCodec) Type() CodecType {
	return CodecTypeCBOR
}
