package filestorage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cozy-creator/audio-adapters/internal/config"
	"github.com/cozy-creator/audio-adapters/internal/utils/hashutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Minimal RIFF/WAVE header, enough for content sniffing.
var wavHeader = []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x80\x3e\x00\x00\x00\x7d\x00\x00\x02\x00\x10\x00data\x00\x00\x00\x00")

func writeTestFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestNewFileStorage(t *testing.T) {
	ctx := context.Background()

	storage, err := NewFileStorage(ctx, &config.Config{Filesystem: config.FilesystemLocal})
	require.NoError(t, err)
	assert.IsType(t, &LocalFileStorage{}, storage)
	assert.False(t, storage.Remote())

	_, err = NewFileStorage(ctx, &config.Config{Filesystem: config.FilesystemS3})
	assert.ErrorIs(t, err, ErrS3NotConfigured)

	_, err = NewFileStorage(ctx, &config.Config{Filesystem: "ftp"})
	assert.ErrorIs(t, err, config.ErrInvalidFilesystem)
}

func TestLocalUpload(t *testing.T) {
	storage, err := NewLocalFileStorage(&config.Config{Filesystem: config.FilesystemLocal})
	require.NoError(t, err)

	path := writeTestFile(t, "audio.wav", wavHeader)
	got, err := storage.UploadMultiple(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, []string{path}, got)

	_, err = storage.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	assert.ErrorIs(t, err, ErrFileNotFound)
}

type putRecord struct {
	method      string
	path        string
	contentType string
	acl         string
	body        []byte
}

func newS3Server(t *testing.T) (*httptest.Server, func() []putRecord) {
	t.Helper()

	var (
		mu   sync.Mutex
		puts []putRecord
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, putRecord{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			acl:         r.Header.Get("X-Amz-Acl"),
			body:        body,
		})
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []putRecord {
		mu.Lock()
		defer mu.Unlock()
		return append([]putRecord(nil), puts...)
	}
}

func TestS3Upload(t *testing.T) {
	srv, records := newS3Server(t)

	cfg := &config.Config{
		Filesystem: config.FilesystemS3,
		S3: &config.S3Config{
			Folder:      "/generated/",
			Region:      "us-east-1",
			Bucket:      "sounds",
			AccessKey:   "key",
			SecretKey:   "secret",
			EndpointUrl: srv.URL,
			VanityUrl:   "https://cdn.example.com/",
		},
	}
	storage, err := NewS3FileStorage(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, storage.Remote())

	path := writeTestFile(t, "audio.WAV", wavHeader)
	url, err := storage.Upload(context.Background(), path)
	require.NoError(t, err)

	key := "generated/" + hashutil.Blake3Hash(wavHeader) + ".wav"
	assert.Equal(t, "https://cdn.example.com/"+key, url)

	puts := records()
	require.Len(t, puts, 1)
	assert.Equal(t, http.MethodPut, puts[0].method)
	assert.Equal(t, "/sounds/"+key, puts[0].path)
	assert.True(t, strings.HasPrefix(puts[0].contentType, "audio/"))
	assert.Equal(t, "public-read", puts[0].acl)
	assert.Equal(t, wavHeader, puts[0].body)
}

func TestS3PublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.S3Config
		want string
	}{
		{"vanity", config.S3Config{VanityUrl: "https://cdn.example.com"}, "https://cdn.example.com/a/k.wav"},
		{"spaces", config.S3Config{Bucket: "b", Region: "nyc3", EndpointUrl: "https://nyc3.digitaloceanspaces.com"}, "https://b.nyc3.cdn.digitaloceanspaces.com/a/k.wav"},
		{"aws", config.S3Config{Bucket: "b", EndpointUrl: "https://s3.us-east-1.amazonaws.com/"}, "https://b.s3.us-east-1.amazonaws.com/a/k.wav"},
		{"unknown", config.S3Config{Bucket: "b", EndpointUrl: "https://r2.example.com"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &S3FileStorage{cfg: &tt.cfg}
			assert.Equal(t, tt.want, u.publicURL("a/k.wav"))
		})
	}
}

func TestS3UploadMissingFile(t *testing.T) {
	srv, records := newS3Server(t)
	storage, err := NewS3FileStorage(context.Background(), &config.Config{
		S3: &config.S3Config{Bucket: "sounds", EndpointUrl: srv.URL, AccessKey: "k", SecretKey: "s"},
	})
	require.NoError(t, err)

	_, err = storage.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.Empty(t, records())
}
