package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"unisaved/internal/domain"
	"unisaved/internal/logger"
)

// MediaPathSetter records where an item's archived media lives. Implemented
// by repository.ItemRepository.
type MediaPathSetter interface {
	SetMediaPath(ctx context.Context, itemID, mediaPath string) error
}

// ThumbnailArchiver copies item thumbnails into object storage so they
// survive upstream link rot. It plugs into the ingest pipeline as a
// post-create hook; every failure is logged and swallowed, an item without an
// archived thumbnail is still a good item.
type ThumbnailArchiver struct {
	store  ObjectStorage
	items  MediaPathSetter
	client *resty.Client
}

// NewThumbnailArchiver creates an archiver writing into the given storage.
func NewThumbnailArchiver(store ObjectStorage, items MediaPathSetter) *ThumbnailArchiver {
	return &ThumbnailArchiver{
		store:  store,
		items:  items,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// AfterCreate downloads the item's thumbnail and uploads it keyed by item id.
func (a *ThumbnailArchiver) AfterCreate(ctx context.Context, item *domain.Item) error {
	if item.ThumbnailURL == "" {
		return nil
	}

	resp, err := a.client.R().SetContext(ctx).Get(item.ThumbnailURL)
	if err != nil {
		return fmt.Errorf("failed to download thumbnail: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("thumbnail download returned %d", resp.StatusCode())
	}

	body := resp.Body()
	if len(body) == 0 {
		return fmt.Errorf("empty thumbnail body")
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Keyed by (source, source_id) rather than item id: re-importing after a
	// database wipe finds the object already archived.
	key := fmt.Sprintf("thumbnails/%s/%s%s", item.Source, item.SourceID, extensionFor(contentType, item.ThumbnailURL))

	archived, err := a.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !archived {
		if err := a.store.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
			return err
		}
	}

	mediaPath := a.store.URL(key)
	if mediaPath == "" {
		mediaPath = key
	}
	if err := a.items.SetMediaPath(ctx, item.ID, mediaPath); err != nil {
		return err
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"item_id":     item.ID,
		"storage_key": key,
		"reused":      archived,
	}).Debug("Archived thumbnail")
	return nil
}

// extensionFor picks a file extension from the content type, falling back to
// whatever the URL path carries.
func extensionFor(contentType, rawURL string) string {
	switch strings.Split(contentType, ";")[0] {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	return ""
}
