package storage

import "context"

// ResourceType selects how the media host treats an asset.
type ResourceType string

const (
	// ResourceImage assets are addressed without their extension.
	ResourceImage ResourceType = "image"
	// ResourceRaw assets are stored untouched and addressed by their full name.
	ResourceRaw ResourceType = "raw"
)

// UploadOptions describes where and how a local file is published.
type UploadOptions struct {
	PublicID     string
	Folder       string
	Format       string
	ResourceType ResourceType
}

// UploadResult is returned by a successful upload.
type UploadResult struct {
	PublicID  string
	SecureURL string
	Bytes     int64
}

// MediaStore publishes local files to a media host and removes them again.
type MediaStore interface {
	Upload(ctx context.Context, localPath string, opts UploadOptions) (UploadResult, error)
	Destroy(ctx context.Context, publicID string, resourceType ResourceType) error
}
