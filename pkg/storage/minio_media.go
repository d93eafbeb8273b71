package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig configures the MinIO/S3 backed media host.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the externally reachable base for secure URLs. Defaults to
	// the endpoint.
	PublicURL string
}

// MinioMediaStore implements MediaStore on MinIO/S3 compatible storage.
//
// Objects are keyed as <resourceType>/<folder>/<publicId>.<format>, so the
// last two segments of every secure URL are <folder>/<publicId>.<format>.
type MinioMediaStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioMediaStore connects to MinIO and ensures the bucket exists and is
// publicly readable.
func NewMinioMediaStore(cfg MinioConfig) (*MinioMediaStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		if err := client.SetBucketPolicy(ctx, cfg.Bucket, publicReadPolicy(cfg.Bucket)); err != nil {
			return nil, fmt.Errorf("set bucket policy: %w", err)
		}
	}
	publicURL := strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if publicURL == "" {
		publicURL = strings.TrimRight(client.EndpointURL().String(), "/")
	}
	return &MinioMediaStore{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

// Upload copies the local file into the bucket and returns its public URL.
func (m *MinioMediaStore) Upload(ctx context.Context, localPath string, opts UploadOptions) (UploadResult, error) {
	key, publicID, err := objectKey(opts)
	if err != nil {
		return UploadResult{}, err
	}
	info, err := m.client.FPutObject(ctx, m.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentTypeFor(opts),
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("put object: %w", err)
	}
	return UploadResult{
		PublicID:  publicID,
		SecureURL: m.publicURL + "/" + m.bucket + "/" + key,
		Bytes:     info.Size,
	}, nil
}

// Destroy removes an asset. Image public IDs carry no extension, so the image
// stored under the ID is removed whatever its format, including none.
func (m *MinioMediaStore) Destroy(ctx context.Context, publicID string, resourceType ResourceType) error {
	publicID = strings.Trim(strings.TrimSpace(publicID), "/")
	if publicID == "" {
		return errors.New("public id required")
	}
	switch resourceType {
	case ResourceRaw:
		if err := m.client.RemoveObject(ctx, m.bucket, path.Join(string(ResourceRaw), publicID), minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("delete object: %w", err)
		}
		return nil
	case ResourceImage, "":
		base := path.Join(string(ResourceImage), publicID)
		for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: base, Recursive: true}) {
			if obj.Err != nil {
				return fmt.Errorf("list objects: %w", obj.Err)
			}
			if !imageKeyMatches(obj.Key, base) {
				continue
			}
			if err := m.client.RemoveObject(ctx, m.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
				return fmt.Errorf("delete object: %w", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported resource type %q", resourceType)
	}
}

// imageKeyMatches reports whether key is base itself or base plus a single
// ".<format>" suffix. Covers uploaded without a format have no extension.
func imageKeyMatches(key, base string) bool {
	if key == base {
		return true
	}
	ext, ok := strings.CutPrefix(key, base+".")
	return ok && ext != "" && !strings.ContainsAny(ext, "./")
}

// objectKey returns the bucket key and the public ID Destroy expects for it.
func objectKey(opts UploadOptions) (string, string, error) {
	id := strings.TrimSpace(opts.PublicID)
	folder := strings.Trim(strings.TrimSpace(opts.Folder), "/")
	format := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(opts.Format)), ".")
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", "", fmt.Errorf("invalid public id %q", opts.PublicID)
	}
	if strings.Contains(folder, "..") {
		return "", "", fmt.Errorf("invalid folder %q", opts.Folder)
	}
	resource := opts.ResourceType
	if resource == "" {
		resource = ResourceImage
	}
	name := id
	if format != "" {
		name = id + "." + format
	}
	switch resource {
	case ResourceImage:
		return path.Join(string(resource), folder, name), path.Join(folder, id), nil
	case ResourceRaw:
		return path.Join(string(resource), folder, name), path.Join(folder, name), nil
	default:
		return "", "", fmt.Errorf("unsupported resource type %q", opts.ResourceType)
	}
}

func contentTypeFor(opts UploadOptions) string {
	format := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(opts.Format)), ".")
	if format != "" {
		if ct := mime.TypeByExtension("." + format); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}
