package persistence

import "encoding/json"

// Codec serializes entries for the durable persisters. Serialization stays an
// external collaborator of the engine: persisters call Encode/Decode and
// never inspect entry bytes.
type Codec[E any] interface {
	Encode(entry E) ([]byte, error)
	Decode(data []byte) (E, error)
}

// JSONCodec is the default Codec, backed by encoding/json.
type JSONCodec[E any] struct{}

// Encode implements Codec.
func (JSONCodec[E]) Encode(entry E) ([]byte, error) { return json.Marshal(entry) }

// Decode implements Codec.
func (JSONCodec[E]) Decode(data []byte) (E, error) {
	var e E
	err := json.Unmarshal(data, &e)
	return e, err
}
