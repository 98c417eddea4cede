package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "chainflow/config"
)

func TestParseA1(t *testing.T) {
	cases := []struct {
		ref      string
		row, col int
	}{
		{"A1", 0, 0},
		{"a1", 0, 0},
		{"L2", 1, 11},
		{"Z10", 9, 25},
		{"AA1", 0, 26},
		{"AB12", 11, 27},
	}
	for _, tc := range cases {
		row, col, err := ParseA1(tc.ref)
		require.NoError(t, err, tc.ref)
		assert.Equal(t, tc.row, row, tc.ref)
		assert.Equal(t, tc.col, col, tc.ref)
		assert.Equal(t, strings.ToUpper(tc.ref), A1(row, col))
	}
}

func TestParseA1Invalid(t *testing.T) {
	for _, ref := range []string{"", "A", "1", "A0", "1A", "A1B"} {
		_, _, err := ParseA1(ref)
		assert.Error(t, err, ref)
	}
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "A", ColumnName(0))
	assert.Equal(t, "T", ColumnName(19))
	assert.Equal(t, "Z", ColumnName(25))
	assert.Equal(t, "AA", ColumnName(26))
	assert.Equal(t, "AZ", ColumnName(51))
	assert.Equal(t, "BA", ColumnName(52))
}

func TestLockerSerializesTable(t *testing.T) {
	l := NewLocker()
	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("Option_NIFTY")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			if n > atomic.LoadInt32(&peak) {
				atomic.StoreInt32(&peak, n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, peak)
	assert.Empty(t, l.locks)
}

func TestLockerIndependentTables(t *testing.T) {
	l := NewLocker()
	unlockA := l.Lock("A")
	done := make(chan struct{})
	go func() {
		unlock := l.Lock("B")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on B blocked by A")
	}
	unlockA()
}

// exerciseStore runs the contract every backend must satisfy.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.ReadAll(ctx, "Option_TEST")
	require.True(t, errors.Is(err, ErrTableNotFound), "got %v", err)
	_, err = s.ReadCell(ctx, "Option_TEST", "A1")
	require.True(t, errors.Is(err, ErrTableNotFound), "got %v", err)

	require.NoError(t, s.Clear(ctx, "Option_TEST"))
	rows, err := s.ReadAll(ctx, "Option_TEST")
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, s.WriteRange(ctx, "Option_TEST", 0, 0, [][]string{{"Strike", "Call OI"}}))
	require.NoError(t, s.WriteRange(ctx, "Option_TEST", 1, 0, [][]string{{"100", "50"}, {"200", "75"}}))
	require.NoError(t, s.WriteRange(ctx, "Option_TEST", 1, 3, [][]string{{"x"}}))

	rows, err = s.ReadAll(ctx, "Option_TEST")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Strike", "Call OI"}, rows[0])
	assert.Equal(t, []string{"100", "50", "", "x"}, rows[1])
	assert.Equal(t, []string{"200", "75"}, rows[2])

	v, err := s.ReadCell(ctx, "Option_TEST", "D2")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
	v, err = s.ReadCell(ctx, "Option_TEST", "Z99")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.Clear(ctx, "Option_TEST"))
	rows, err = s.ReadAll(ctx, "Option_TEST")
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.Error(t, s.WriteRange(ctx, "Option_TEST", -1, 0, [][]string{{"a"}}))
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	exerciseStore(t, m)
	assert.Greater(t, m.Writes(), 0)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	m.Put("T", [][]string{{"a"}})
	rows, err := m.ReadAll(context.Background(), "T")
	require.NoError(t, err)
	rows[0][0] = "mutated"
	again, _ := m.ReadAll(context.Background(), "T")
	assert.Equal(t, "a", again[0][0])
}

func TestCSVStore(t *testing.T) {
	s, err := NewCSVStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestCSVStoreKeepsBlankRows(t *testing.T) {
	ctx := context.Background()
	s, err := NewCSVStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.WriteRange(ctx, "T", 0, 0, [][]string{{"Strike", "Call OI", "Put OI"}, {"100", "5", "6"}}))
	require.NoError(t, s.WriteRange(ctx, "T", 3, 0, [][]string{{"Call Diff Sum", "1"}}))

	rows, err := s.ReadAll(ctx, "T")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"", "", ""}, rows[2])
	assert.Equal(t, "Call Diff Sum", rows[3][0])
}

func TestCSVStoreSanitizesNames(t *testing.T) {
	dir := t.TempDir()
	s, err := NewCSVStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.WriteRange(context.Background(), "a/b", 0, 0, [][]string{{"1"}}))
	_, err = os.Stat(s.path("a/b"))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(s.path("a/b")))
}

func TestGridParquetEncoding(t *testing.T) {
	grid := [][]string{
		{"Strike", "Call OI", "", "Put OI"},
		{},
		{"", "", "7"},
	}
	for _, codec := range []string{"snappy", "gzip", ""} {
		data, err := encodeGrid(grid, codec)
		require.NoError(t, err, codec)
		got, err := decodeGrid(data)
		require.NoError(t, err, codec)
		require.Len(t, got, 3, codec)
		assert.Equal(t, grid[0], got[0])
		assert.Empty(t, got[1])
		assert.Equal(t, []string{"", "", "7"}, got[2])
	}

	data, err := encodeGrid(nil, "snappy")
	require.NoError(t, err)
	got, err := decodeGrid(data)
	require.NoError(t, err)
	assert.Empty(t, got)
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{}}
	s := newS3Store(objects, appconfig.S3Config{Bucket: "bucket", Prefix: "tables", Compression: "snappy"})
	exerciseStore(t, s)
	_, ok := objects.objects["bucket/tables/Option_TEST.parquet"]
	assert.True(t, ok)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("CHAINFLOW_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHAINFLOW_TEST_REDIS_ADDR not set")
	}
	s := NewRedisStore(appconfig.RedisConfig{Addr: addr, KeyPrefix: "chainflow:test:" + time.Now().Format("150405.000") + ":"})
	defer s.Close()
	exerciseStore(t, s)
}
