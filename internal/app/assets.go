package app

import (
	"context"
	"net/url"
	"path"
	"strings"

	"elib/internal/util"
	"elib/pkg/storage"
)

const (
	coverFolder = "book-covers"
	fileFolder  = "book-pdfs"
	fileFormat  = "pdf"
)

// asset identifies an uploaded media object for later removal.
type asset struct {
	publicID string
	resource storage.ResourceType
}

func (a *App) uploadCover(ctx context.Context, f storage.StagedFile) (storage.UploadResult, error) {
	return a.media.Upload(ctx, f.Path, storage.UploadOptions{
		PublicID:     f.Filename,
		Folder:       coverFolder,
		Format:       coverFormatFor(f),
		ResourceType: storage.ResourceImage,
	})
}

func (a *App) uploadFile(ctx context.Context, f storage.StagedFile) (storage.UploadResult, error) {
	return a.media.Upload(ctx, f.Path, storage.UploadOptions{
		PublicID:     f.Filename,
		Folder:       fileFolder,
		Format:       fileFormat,
		ResourceType: storage.ResourceRaw,
	})
}

// destroyAll removes assets best-effort, ignoring cancellation of ctx.
func (a *App) destroyAll(ctx context.Context, assets ...asset) {
	ctx = context.WithoutCancel(ctx)
	for _, as := range assets {
		if as.publicID == "" {
			continue
		}
		if err := a.media.Destroy(ctx, as.publicID, as.resource); err != nil {
			util.LoggerFromContext(ctx).Warn("destroy media asset failed",
				"public_id", as.publicID,
				"resource_type", string(as.resource),
				"err", err,
			)
		}
	}
}

// coverFormat is the subtype of a MIME type, e.g. "png" for image/png.
func coverFormat(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	if i := strings.LastIndexByte(mimeType, '/'); i >= 0 {
		return strings.TrimSpace(mimeType[i+1:])
	}
	return ""
}

// coverFormatFor falls back to the original file extension when the part
// carried no usable Content-Type.
func coverFormatFor(f storage.StagedFile) string {
	if format := coverFormat(f.MimeType); format != "" {
		return format
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(f.OriginalName), "."))
}

// coverPublicID derives "<folder>/<name>" from a cover URL, without extension.
func coverPublicID(rawURL string) string {
	folder, name := lastTwoSegments(rawURL)
	name = strings.TrimSuffix(name, path.Ext(name))
	return joinSegments(folder, name)
}

// filePublicID derives "<folder>/<name.ext>" from a raw asset URL.
func filePublicID(rawURL string) string {
	return joinSegments(lastTwoSegments(rawURL))
}

func lastTwoSegments(rawURL string) (string, string) {
	p := strings.TrimSpace(rawURL)
	if u, err := url.Parse(p); err == nil && u.Path != "" {
		p = u.Path
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	default:
		return parts[len(parts)-2], parts[len(parts)-1]
	}
}

func joinSegments(folder, name string) string {
	if folder == "" {
		return name
	}
	if name == "" {
		return folder
	}
	return folder + "/" + name
}
