package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"products/p1/passport.json", "products/p1/passport.json", false},
		{"a//b/./c", "a/b/c", false},
		{"", "", true},
		{"   ", "", true},
		{"/etc/passwd", "", true},
		{"../up", "", true},
		{"a/../../b", "", true},
	}
	for _, tt := range tests {
		got, err := sanitizeKey(tt.key)
		if tt.wantErr {
			assert.Error(t, err, tt.key)
			continue
		}
		require.NoError(t, err, tt.key)
		assert.Equal(t, tt.want, got)
	}
}

func TestFilesystemPutOverwrites(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFilesystem(root)
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, fs.Driver())

	ctx := context.Background()
	loc, err := fs.Put(ctx, "products/p1/passport.json", strings.NewReader(`{"v":1}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "products", "p1", "passport.json"), loc)

	_, err = fs.Put(ctx, "products/p1/passport.json", strings.NewReader(`{"v":2}`), "application/json")
	require.NoError(t, err)
	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(loc))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	_, err = fs.Put(ctx, "../escape", strings.NewReader("x"), "")
	assert.Error(t, err)
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Put(t *testing.T) {
	api := &fakePutter{}
	store := newS3(api, S3Config{Bucket: "dpp", Prefix: "public"})
	assert.Equal(t, DriverS3, store.Driver())

	loc, err := store.Put(context.Background(), "products/p1/passport.png", strings.NewReader("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "s3://dpp/public/products/p1/passport.png", loc)
	assert.Equal(t, "dpp", aws.ToString(api.input.Bucket))
	assert.Equal(t, "public/products/p1/passport.png", aws.ToString(api.input.Key))
	assert.Equal(t, "image/png", aws.ToString(api.input.ContentType))
	assert.Equal(t, "png", api.body)

	api.err = errors.New("access denied")
	_, err = store.Put(context.Background(), "k", strings.NewReader(""), "")
	assert.ErrorContains(t, err, "access denied")
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), Config{Root: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())

	_, err = Open(context.Background(), Config{Driver: "s3"})
	assert.ErrorContains(t, err, "bucket required")

	_, err = Open(context.Background(), Config{Driver: "gcs"})
	assert.ErrorContains(t, err, "unknown blob driver")
}
