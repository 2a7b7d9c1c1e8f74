package command

import (
	"encoding/json"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

const (
	MediaTypeJSON = "application/json"
	MediaTypeCBOR = "application/cbor"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("command: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("command: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode renders payload for the given Accept header and returns the body
// with its content type.
func Encode(accept string, payload any) ([]byte, string, error) {
	if IsCBOR(accept) {
		data, err := cborEnc.Marshal(payload)
		return data, MediaTypeCBOR, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, MediaTypeJSON, err
	}
	return append(data, '\n'), MediaTypeJSON, nil
}

// MarshalCBOR encodes v with the bridge's deterministic CBOR options.
func MarshalCBOR(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

// UnmarshalCBOR decodes CBOR produced by a bridge or a client.
func UnmarshalCBOR(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}
