// Package schema serializes Arrow schemas for catalog storage and implements
// the schema evolution rules for merging a dataset's schema with incoming
// data.
package schema

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Serialize encodes a schema as an Arrow IPC stream with no record batches.
// The byte form is stable for identical schemas, which the catalog relies on
// to deduplicate schema versions.
func Serialize(s *arrow.Schema) ([]byte, error) {
	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(s), ipc.WithAllocator(memory.DefaultAllocator))
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to serialize schema: %w", err)
	}
	return buf.Bytes(), nil
}

// Deserialize decodes a schema previously produced by Serialize.
func Deserialize(data []byte) (*arrow.Schema, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize schema: %w", err)
	}
	defer reader.Release()
	return reader.Schema(), nil
}
