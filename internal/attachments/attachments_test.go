package attachments

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

func TestObjectName(t *testing.T) {
	cases := map[string]string{
		"map.png":              "Threads/t1/id-map.png",
		"../../etc/passwd":     "Threads/t1/id-passwd",
		`C:\Users\me\kuva.jpg`: "Threads/t1/id-kuva.jpg",
		"hyvä kartta (1).png":  "Threads/t1/id-hyv_kartta_1_.png",
		"...":                  "Threads/t1/id-file",
	}
	for in, want := range cases {
		assert.Equal(t, want, ObjectName("Threads/t1", in, "id"), in)
	}
}

func TestNewMinioPublicURL(t *testing.T) {
	u, err := NewMinio(MinioConfig{Endpoint: "localhost:9000", Bucket: "uploads", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/uploads", u.publicURL)

	u, err = NewMinio(MinioConfig{Endpoint: "s3.example.com", Bucket: "uploads", UseSSL: true, PublicURL: "https://cdn.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com", u.publicURL)
}

type fakeUploader struct {
	failOn string
	seen   []string
}

func (f *fakeUploader) Upload(_ context.Context, prefix string, file File) (model.Image, error) {
	if file.Name == f.failOn {
		return model.Image{}, errors.New("disk full")
	}
	f.seen = append(f.seen, file.Name)
	return model.Image{URL: "https://cdn/" + prefix + "/" + file.Name}, nil
}

func TestUploadAllStopsAtFirstFailure(t *testing.T) {
	u := &fakeUploader{failOn: "b.png"}
	files := []File{
		{Name: "a.png", Body: strings.NewReader("a")},
		{Name: "b.png", Body: strings.NewReader("b")},
		{Name: "c.png", Body: strings.NewReader("c")},
	}
	images, err := UploadAll(context.Background(), u, "Threads/t1", files)
	require.Error(t, err)
	assert.Len(t, images, 1)
	assert.Equal(t, []string{"a.png"}, u.seen)
}
