package mdwire

import (
	"bytes"
	"fmt"

	"github.com/polydawn/refmt/cbor"
	"github.com/polydawn/refmt/obj/atlas"
)

// codecAtlas binds every payload type this package marshals. Struct map
// key order is sorted deterministically so two encodes of an equal value
// always produce the same bytes, which the SyncTree xor/chxor hashing
// depends on nowhere directly but which still keeps logs and test
// fixtures stable.
var codecAtlas = atlas.MustBuild(
	atlas.BuildEntry(Hello{}).StructMap().AutogenerateWithSortingScheme(atlas.KeySortMode_String).Complete(),
	atlas.BuildEntry(SerialMap{}).StructMap().AutogenerateWithSortingScheme(atlas.KeySortMode_String).Complete(),
	atlas.BuildEntry(Syncable{}).StructMap().AutogenerateWithSortingScheme(atlas.KeySortMode_String).Complete(),
)

// Marshal CBOR-encodes v, which must be one of this package's payload
// types (or a pointer to one).
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := atlas.MarshalAtlased(cbor.NewMarshaller(&buf), v, codecAtlas); err != nil {
		return nil, fmt.Errorf("mdwire: marshal %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data into v, which must be a pointer to one of this
// package's payload types.
func Unmarshal(data []byte, v any) error {
	if err := atlas.UnmarshalAtlased(cbor.NewUnmarshaller(bytes.NewReader(data)), v, codecAtlas); err != nil {
		return fmt.Errorf("mdwire: unmarshal %T: %w", v, err)
	}
	return nil
}
