package store

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Aman-CERP/fusionidx/internal/value"
)

// EncodeTupleKey returns a canonical binary key for a value tuple. Logically
// equal tuples, such as (1, "a") and (1.0, "a"), produce the same key.
func EncodeTupleKey(values []value.Value) ([]byte, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("empty tuple has no key")
	}
	norm := make([]any, len(values))
	for i, v := range values {
		n, err := value.Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("tuple element %d: %w", i, err)
		}
		norm[i] = n
	}
	key, err := msgpack.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("encode tuple key: %w", err)
	}
	return key, nil
}
