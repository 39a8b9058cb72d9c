package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode[T any](t *testing.T, line []byte, wantType string) T {
	t.Helper()
	var record Record
	require.NoError(t, json.Unmarshal(line, &record))
	assert.Equal(t, wantType, record.Type)

	var data T
	require.NoError(t, json.Unmarshal(record.Data, &data))
	return data
}

func TestNewJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "s3")

	assert.NotNil(t, w)
	assert.Equal(t, "job-123", w.jobID)
	assert.Equal(t, "s3", w.provider)
}

func TestJSONLWriter_WriteEntry(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "gs")
	w.now = func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.Local) }

	size := int64(1048576)
	updated := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	err := w.WriteEntry(context.Background(), &EntryRecord{
		URI:     "gs://b/data/file.parquet",
		Name:    "file.parquet",
		Kind:    KindBlob,
		Size:    &size,
		Updated: &updated,
	})
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "job-123", record.JobID)
	assert.Equal(t, "gs", record.Provider)
	assert.Equal(t, time.UTC, record.TS.Location())

	entry := decode[EntryRecord](t, buf.Bytes(), TypeEntry)
	assert.Equal(t, "gs://b/data/file.parquet", entry.URI)
	assert.Equal(t, KindBlob, entry.Kind)
	require.NotNil(t, entry.Size)
	assert.Equal(t, size, *entry.Size)
	require.NotNil(t, entry.Updated)
	assert.True(t, updated.Equal(*entry.Updated))
}

func TestEntryRecord_ContainersOmitBlobFields(t *testing.T) {
	data, err := json.Marshal(EntryRecord{URI: "s3://b/dir/", Name: "dir/", Kind: KindPrefix})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "size")
	assert.NotContains(t, string(data), "updated")
}

func TestJSONLWriter_WriteError(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "s3")

	err := w.WriteError(context.Background(), &ErrorRecord{
		Code:    ErrCodeAccessDenied,
		Message: "access denied to bucket",
		URI:     "s3://secret/",
	})
	require.NoError(t, err)

	got := decode[ErrorRecord](t, buf.Bytes(), TypeError)
	assert.Equal(t, ErrCodeAccessDenied, got.Code)
	assert.Equal(t, "access denied to bucket", got.Message)
	assert.Equal(t, "s3://secret/", got.URI)
}

func TestJSONLWriter_WriteProgressAndTransfer(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "s3")
	ctx := context.Background()

	require.NoError(t, w.WriteProgress(ctx, &ProgressRecord{Phase: PhaseRunning, Op: "download", Done: 2, Total: 5}))
	require.NoError(t, w.WriteTransfer(ctx, &TransferRecord{Op: "download", URI: "s3://b/f", Dest: "/tmp/f", Bytes: 7}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	prog := decode[ProgressRecord](t, []byte(lines[0]), TypeProgress)
	assert.Equal(t, 2, prog.Done)
	assert.Equal(t, 5, prog.Total)

	tr := decode[TransferRecord](t, []byte(lines[1]), TypeTransfer)
	assert.Equal(t, "/tmp/f", tr.Dest)
	assert.Equal(t, int64(7), tr.Bytes)
}

func TestJSONLWriter_WriteSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "s3")

	err := w.WriteSummary(context.Background(), &SummaryRecord{
		Op:            "delete",
		Total:         5,
		Done:          2,
		Stopped:       true,
		Duration:      1500 * time.Millisecond,
		DurationHuman: "1.5s",
	})
	require.NoError(t, err)

	sum := decode[SummaryRecord](t, buf.Bytes(), TypeSummary)
	assert.Equal(t, "delete", sum.Op)
	assert.Equal(t, int64(2), sum.Done)
	assert.True(t, sum.Stopped)
	assert.Equal(t, 1500*time.Millisecond, sum.Duration)
}

func TestJSONLWriter_Close(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "s3")

	require.NoError(t, w.Close())

	err := w.WriteEntry(context.Background(), &EntryRecord{URI: "s3://b/"})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "s3")

	const numWriters = 10
	const writesPerWriter = 100

	var wg sync.WaitGroup
	wg.Add(numWriters)
	for i := 0; i < numWriters; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < writesPerWriter; j++ {
				_ = w.WriteTransfer(context.Background(), &TransferRecord{Op: "delete", URI: "s3://b/file.txt"})
			}
		}()
	}
	wg.Wait()

	// No interleaved lines.
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, numWriters*writesPerWriter)
	for i, line := range lines {
		var record Record
		assert.NoError(t, json.Unmarshal([]byte(line), &record), "line %d: %s", i, line)
	}
}

func TestJSONLWriter_ContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "s3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteEntry(ctx, &EntryRecord{URI: "s3://b/"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
}

func TestJSONLWriter_WriteFailure(t *testing.T) {
	w := NewJSONLWriter(&failingWriter{err: errors.New("disk full")}, "job-123", "s3")

	err := w.WriteEntry(context.Background(), &EntryRecord{URI: "s3://b/"})
	require.Error(t, err)

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "write", writeErr.Op)
}

func TestJSONLWriter_ShortWrite(t *testing.T) {
	sw := &shortWriteWriter{bytesPerWrite: 10}
	w := NewJSONLWriter(sw, "job-123", "s3")

	err := w.WriteEntry(context.Background(), &EntryRecord{URI: "s3://b/data/2024/file.parquet", Kind: KindBlob})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(sw.buf.String()), "\n")
	require.Len(t, lines, 1)
	decode[EntryRecord](t, []byte(lines[0]), TypeEntry)
}

func TestJSONLWriter_ZeroWrite(t *testing.T) {
	w := NewJSONLWriter(&zeroWriteWriter{}, "job-123", "s3")

	err := w.WriteEntry(context.Background(), &EntryRecord{URI: "s3://b/"})
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestWriteError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &WriteError{Op: "marshal", Err: underlying}

	assert.Equal(t, "output: marshal: underlying error", err.Error())
	assert.ErrorIs(t, err, underlying)
}

type failingWriter struct {
	err error
}

func (f *failingWriter) Write(p []byte) (int, error) {
	return 0, f.err
}

// shortWriteWriter writes at most bytesPerWrite bytes per call.
type shortWriteWriter struct {
	buf           bytes.Buffer
	bytesPerWrite int
}

func (sw *shortWriteWriter) Write(p []byte) (int, error) {
	return sw.buf.Write(p[:min(len(p), sw.bytesPerWrite)])
}

type zeroWriteWriter struct{}

func (zw *zeroWriteWriter) Write(p []byte) (int, error) {
	return 0, nil
}

func TestNewEntryRecord(t *testing.T) {
	bucket := NewEntryRecord(cloudpath.Bucket(cloudpath.SchemeS3, "b"))
	assert.Equal(t, KindBucket, bucket.Kind)
	assert.Equal(t, "b", bucket.Name)
	assert.Nil(t, bucket.Size)

	prefix, err := cloudpath.PrefixFromKey(cloudpath.SchemeS3, "b", "dir/")
	require.NoError(t, err)
	assert.Equal(t, KindPrefix, NewEntryRecord(prefix).Kind)

	blob, err := cloudpath.BlobFromKey(cloudpath.SchemeGCS, "b", "dir/f.txt", 3, time.Time{})
	require.NoError(t, err)
	rec := NewEntryRecord(blob)
	assert.Equal(t, KindBlob, rec.Kind)
	assert.Equal(t, "gs://b/dir/f.txt", rec.URI)
	require.NotNil(t, rec.Size)
	assert.Equal(t, int64(3), *rec.Size)
	assert.Nil(t, rec.Updated)
}
