package store

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// cellRecord is one non-empty cell of a table.
type cellRecord struct {
	Row   int32  `parquet:"name=row, type=INT32"`
	Col   int32  `parquet:"name=col, type=INT32"`
	Value string `parquet:"name=value, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type tableMemFile struct {
	buffer *bytes.Buffer
}

func newTableMemFile() *tableMemFile {
	return &tableMemFile{buffer: &bytes.Buffer{}}
}

func (m *tableMemFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *tableMemFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *tableMemFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *tableMemFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *tableMemFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *tableMemFile) Close() error                              { return nil }
func (m *tableMemFile) Bytes() []byte                             { return m.buffer.Bytes() }

// tableReadFile serves a downloaded object. Open hands out independent
// cursors since the parquet reader opens one per column.
type tableReadFile struct {
	data []byte
	*bytes.Reader
}

func newTableReadFile(data []byte) *tableReadFile {
	return &tableReadFile{data: data, Reader: bytes.NewReader(data)}
}

func (f *tableReadFile) Create(string) (source.ParquetFile, error) {
	return nil, fmt.Errorf("create not supported")
}
func (f *tableReadFile) Open(string) (source.ParquetFile, error) { return newTableReadFile(f.data), nil }
func (f *tableReadFile) Write([]byte) (int, error)               { return 0, fmt.Errorf("write not supported") }
func (f *tableReadFile) Close() error                            { return nil }

var _ source.ParquetFile = (*tableReadFile)(nil)

func encodeGrid(grid [][]string, compression string) ([]byte, error) {
	mem := newTableMemFile()
	pw, err := writer.NewParquetWriter(mem, new(cellRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("new parquet writer: %w", err)
	}

	switch strings.ToLower(compression) {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for r, row := range grid {
		for c, v := range row {
			if v == "" {
				continue
			}
			if err := pw.Write(cellRecord{Row: int32(r), Col: int32(c), Value: v}); err != nil {
				pw.WriteStop()
				return nil, fmt.Errorf("write parquet record: %w", err)
			}
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet: %w", err)
	}
	return mem.Bytes(), nil
}

func decodeGrid(data []byte) ([][]string, error) {
	pr, err := reader.NewParquetReader(newTableReadFile(data), new(cellRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	cells := make([]cellRecord, n)
	if n > 0 {
		if err := pr.Read(&cells); err != nil {
			return nil, fmt.Errorf("read parquet: %w", err)
		}
	}

	var grid [][]string
	for _, c := range cells {
		grid = applyRange(grid, int(c.Row), int(c.Col), [][]string{{c.Value}})
	}
	if grid == nil {
		grid = [][]string{}
	}
	return grid, nil
}
