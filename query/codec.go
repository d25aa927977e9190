package query

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
)

// Codec turns fetched values into persisted payloads and back.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec stores entries as JSON text, readable by any client sharing
// the store.
type JSONCodec struct{}

func (JSONCodec) Name() string                       { return "json" }
func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// CBORCodec stores entries as CBOR, which is smaller for large lists.
type CBORCodec struct{}

func (CBORCodec) Name() string                       { return "cbor" }
func (CBORCodec) Marshal(v any) ([]byte, error)      { return cbor.Marshal(v) }
func (CBORCodec) Unmarshal(data []byte, v any) error { return cbor.Unmarshal(data, v) }

// CodecByName returns the codec registered under name, defaulting to JSON.
func CodecByName(name string) Codec {
	switch name {
	case "cbor":
		return CBORCodec{}
	default:
		return JSONCodec{}
	}
}
