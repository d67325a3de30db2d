// Package codec holds the CBOR encoding shared by dependency keys, query
// descriptors and hydration handoffs.
package codec

import (
	"encoding/base64"
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	mapStringAny = reflect.TypeOf(map[string]any(nil))
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: canonical cbor options: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: mapStringAny,
		IntDec:         cbor.IntDecConvertNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor decode options: %v", err))
	}
}

// CBOR is the canonical CBOR codec. Equal values always encode to equal bytes,
// which is what makes encodings usable as identity keys. Untyped values decode
// into map[string]any, []any and, after Normalize, int.
type CBOR struct{}

func (CBOR) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func (CBOR) Unmarshal(data []byte, dst any) error {
	return decMode.Unmarshal(data, dst)
}

// Clone copies src into dst through its encoded form, so dst holds exactly
// what a peer decoding the same bytes would hold.
func (c CBOR) Clone(src, dst any) error {
	b, err := c.Marshal(src)
	if err != nil {
		return err
	}
	return c.Unmarshal(b, dst)
}

// Key returns a string identity for vals: two value lists produce the same key
// exactly when they encode to the same canonical CBOR.
//
// Values that cannot be encoded (functions, channels) fall back to their
// fmt representation so that a key is always produced.
func Key(vals ...any) string {
	b, err := CBOR{}.Marshal(vals)
	if err != nil {
		return "!" + fmt.Sprintf("%#v", vals)
	}
	return string(b)
}

// EncodeString encodes v as URL-safe base64 of its canonical CBOR form.
func EncodeString(v any) (string, error) {
	b, err := CBOR{}.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeString reverses EncodeString.
func DecodeString(s string, dst any) error {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	return CBOR{}.Unmarshal(b, dst)
}

// Normalize rewrites, in place, the integers of a decoded value as int where
// they fit. CBOR keeps no Go integer type, so without it 1 comes back as
// uint64 and -1 as int64.
func Normalize(v any) any {
	switch x := v.(type) {
	case uint64:
		if x <= math.MaxInt {
			return int(x)
		}
	case int64:
		if x >= math.MinInt && x <= math.MaxInt {
			return int(x)
		}
	case map[string]any:
		for k, e := range x {
			x[k] = Normalize(e)
		}
	case []any:
		for i, e := range x {
			x[i] = Normalize(e)
		}
	}
	return v
}
