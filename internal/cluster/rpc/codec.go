package rpc

import (
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// CodecName is the connect codec name of Codec.
const CodecName = "msgpack"

var msgpackHandle = &codec.MsgpackHandle{}

// Codec is a connect.Codec encoding messages with msgpack.
type Codec struct{}

// Name implements connect.Codec.
func (Codec) Name() string {
	return CodecName
}

// Marshal implements connect.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, msgpackHandle).Encode(v); err != nil {
		return nil, fmt.Errorf("msgpack marshal: %w", err)
	}
	return b, nil
}

// Unmarshal implements connect.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	if err := codec.NewDecoderBytes(data, msgpackHandle).Decode(v); err != nil {
		return fmt.Errorf("msgpack unmarshal: %w", err)
	}
	return nil
}
