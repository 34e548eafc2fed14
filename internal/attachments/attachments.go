// Package attachments uploads multipart file parts to S3-compatible storage.
package attachments

import (
	"context"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

// File is one uploaded part.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader stores files under a prefix and returns their public references.
type Uploader interface {
	Upload(ctx context.Context, prefix string, f File) (model.Image, error)
}

// UploadAll uploads files in order, stopping at the first failure.
func UploadAll(ctx context.Context, u Uploader, prefix string, files []File) ([]model.Image, error) {
	images := make([]model.Image, 0, len(files))
	for _, f := range files {
		img, err := u.Upload(ctx, prefix, f)
		if err != nil {
			return images, errors.Wrapf(err, "upload %s", f.Name)
		}
		images = append(images, img)
	}
	return images, nil
}

// MinioConfig locates the bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL prefixes object names in returned image URLs. Defaults to
	// the endpoint URL plus bucket.
	PublicURL string
}

// MinioUploader writes objects with minio-go.
type MinioUploader struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinio(cfg MinioConfig) (*MinioUploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create blob client")
	}
	public := strings.TrimRight(cfg.PublicURL, "/")
	if public == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		public = scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
	}
	return &MinioUploader{client: client, bucket: cfg.Bucket, publicURL: public}, nil
}

// EnsureBucket creates the bucket when missing.
func (u *MinioUploader) EnsureBucket(ctx context.Context) error {
	ok, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return errors.Wrap(err, "check bucket")
	}
	if ok {
		return nil
	}
	return errors.Wrap(u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}), "create bucket")
}

// HealthPing checks the bucket is reachable.
func (u *MinioUploader) HealthPing(ctx context.Context) error {
	_, err := u.client.BucketExists(ctx, u.bucket)
	return err
}

func (u *MinioUploader) Upload(ctx context.Context, prefix string, f File) (model.Image, error) {
	name := ObjectName(prefix, f.Name, uuid.NewString())
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := u.client.PutObject(ctx, u.bucket, name, f.Body, f.Size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return model.Image{}, errors.Wrapf(err, "put object %s", name)
	}
	return model.Image{URL: u.publicURL + "/" + name, Alt: f.Name}, nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ObjectName builds "<prefix>/<id>-<sanitized file name>".
func ObjectName(prefix, fileName, id string) string {
	base := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "._")
	if base == "" {
		base = "file"
	}
	return path.Join(prefix, id+"-"+base)
}
