package transport

import (
	"bytes"
	"fmt"

	"google.golang.org/grpc/encoding"

	"github.com/RenatoCabral2022/facestream/internal/wire"
)

// CodecName is the gRPC content-subtype of the animation stream.
const CodecName = "facestream-wire"

func init() {
	encoding.RegisterCodec(codec{})
}

// codec marshals wire messages and hands received payloads over undecoded,
// so malformed input reaches the download reader instead of failing the RPC.
type codec struct{}

func (codec) Name() string { return CodecName }

func (codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case wire.Message:
		return wire.Encode(m)
	case wire.Raw:
		return m, nil
	case *wire.Raw:
		return *m, nil
	default:
		return nil, fmt.Errorf("transport: cannot marshal %T", v)
	}
}

func (codec) Unmarshal(data []byte, v any) error {
	raw, ok := v.(*wire.Raw)
	if !ok {
		return fmt.Errorf("transport: cannot unmarshal into %T", v)
	}
	*raw = bytes.Clone(data)
	return nil
}
