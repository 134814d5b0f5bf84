package dataset

import (
	"fmt"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

// Converter adapts a foreign columnar value to an Arrow table. It reports
// false when it does not recognize the value, letting the next converter try.
type Converter func(data any) (arrow.Table, bool)

var (
	convertersMu sync.RWMutex
	converters   []Converter
)

// RegisterInput registers a converter for a foreign columnar type so that
// values of that type can be passed to Write directly.
func RegisterInput(converter Converter) {
	convertersMu.Lock()
	defer convertersMu.Unlock()
	converters = append(converters, converter)
}

// columnarInput is write input normalized to a schema plus record batches.
// Batch boundaries are preserved so each batch becomes its own Parquet row
// group (split further when it exceeds the writer's row-group cap).
type columnarInput struct {
	schema  *arrow.Schema
	records []arrow.Record
}

func (input *columnarInput) release() {
	for _, record := range input.records {
		record.Release()
	}
	input.records = nil
}

// normalizeInput dispatches on the input's type: Arrow tables, record
// batches, and record streams are handled natively; anything else goes
// through the registered converters.
func normalizeInput(data any) (*columnarInput, error) {
	switch value := data.(type) {
	case arrow.Table:
		return tableInput(value)
	case arrow.Record:
		value.Retain()
		return &columnarInput{schema: value.Schema(), records: []arrow.Record{value}}, nil
	case array.RecordReader:
		var records []arrow.Record
		for value.Next() {
			record := value.Record()
			record.Retain()
			records = append(records, record)
		}
		return &columnarInput{schema: value.Schema(), records: records}, nil
	}

	convertersMu.RLock()
	registered := make([]Converter, len(converters))
	copy(registered, converters)
	convertersMu.RUnlock()

	for _, converter := range registered {
		if table, ok := converter(data); ok {
			input, err := tableInput(table)
			table.Release()
			return input, err
		}
	}
	return nil, fmt.Errorf("unsupported data type %T for dataset write: %w", data, ErrDataset)
}

// tableInput splits a table into records along its chunk boundaries.
func tableInput(table arrow.Table) (*columnarInput, error) {
	reader := array.NewTableReader(table, -1)
	defer reader.Release()

	var records []arrow.Record
	for reader.Next() {
		record := reader.Record()
		record.Retain()
		records = append(records, record)
	}
	return &columnarInput{schema: table.Schema(), records: records}, nil
}
