package store

import "encoding/json"

// marshalValue serializes a BatchItem's Value the same way regardless of
// backend, so Postgres and SQLite agree on wire format for the same record.
func marshalValue(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
