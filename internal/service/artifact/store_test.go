package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/pathology-report-api/internal/config"
	"github.com/jwalitptl/pathology-report-api/pkg/circuitbreaker"
)

var testReports = config.ReportsConfig{Dir: "/data/reports", Extension: ".pdf"}

func TestFileStore_Save(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, testReports)

	path, err := store.Save(context.Background(), "A-100", []byte("%PDF-1"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/reports", "A-100.pdf"), path)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1", string(data))

	// No temp files left behind.
	entries, err := afero.ReadDir(fs, "/data/reports")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_Overwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, testReports)

	first, err := store.Save(context.Background(), "A-100", []byte("first"))
	require.NoError(t, err)
	before, err := store.Stat("A-100")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	second, err := store.Save(context.Background(), "A-100", []byte("second"))
	require.NoError(t, err)
	after, err := store.Stat("A-100")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, after.GeneratedAt.After(before.GeneratedAt))
	assert.Equal(t, int64(len("second")), after.Size)
}

func TestFileStore_InvalidCode(t *testing.T) {
	store := NewFileStore(afero.NewMemMapFs(), testReports)

	for _, code := range []string{"", "..", "../etc/passwd", `a\b`} {
		_, err := store.Save(context.Background(), code, []byte("x"))
		assert.ErrorIs(t, err, ErrWrite, code)
	}
}

func TestFileStore_ReadOnlyFs(t *testing.T) {
	store := NewFileStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), testReports)

	_, err := store.Save(context.Background(), "A-100", []byte("x"))
	assert.ErrorIs(t, err, ErrWrite)
}

func TestFileStore_StatMissing(t *testing.T) {
	store := NewFileStore(afero.NewMemMapFs(), testReports)

	_, err := store.Stat("NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_FileSystem(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, testReports)
	_, err := store.Save(context.Background(), "A-100", []byte("%PDF"))
	require.NoError(t, err)

	f, err := store.FileSystem().Open("/A-100.pdf")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
}

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	err    error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Mirror_Upload(t *testing.T) {
	client := &fakeS3{}
	m := newS3Mirror(client, config.S3Config{Bucket: "lab", Prefix: "reports/"})

	require.NoError(t, m.Upload(context.Background(), "/data/reports/A-100.pdf", []byte("%PDF")))
	require.Len(t, client.inputs, 1)
	assert.Equal(t, "lab", *client.inputs[0].Bucket)
	assert.Equal(t, "reports/A-100.pdf", *client.inputs[0].Key)
	assert.Equal(t, "application/pdf", *client.inputs[0].ContentType)
}

func TestS3Mirror_OpensBreaker(t *testing.T) {
	client := &fakeS3{err: errors.New("unavailable")}
	m := newS3Mirror(client, config.S3Config{Bucket: "lab"})

	for i := 0; i < 3; i++ {
		assert.Error(t, m.Upload(context.Background(), "A-1.pdf", nil))
	}
	err := m.Upload(context.Background(), "A-1.pdf", nil)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Len(t, client.inputs, 3)
}

// noChtimesFs is a filesystem that refuses to change file times.
type noChtimesFs struct {
	afero.Fs
}

func (noChtimesFs) Chtimes(string, time.Time, time.Time) error {
	return errors.New("operation not permitted")
}

func TestFileStore_SaveLogsChtimesFailure(t *testing.T) {
	fs := noChtimesFs{afero.NewMemMapFs()}
	var buf bytes.Buffer
	store := NewFileStore(fs, testReports, WithLogger(zerolog.New(&buf)))

	path, err := store.Save(context.Background(), "A-100", []byte("%PDF-1"))
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1", string(data))
	assert.Contains(t, buf.String(), "failed to update report mtime")
	assert.Contains(t, buf.String(), "operation not permitted")
}
