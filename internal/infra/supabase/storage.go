package supabase

import (
	"context"
	"io"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	storage_go "github.com/supabase-community/storage-go"
	supa "github.com/supabase-community/supabase-go"
)

// 一覧の上限（APIの上限に合わせる）
const listLimit = 1000

const placeholderName = ".emptyFolderPlaceholder"

type StorageBlobStore struct {
	storage *storage_go.Client
	url     string
	key     string
	bucket  string
	prefix  string
}

// DI
func NewStorageBlobStore(client *supa.Client, cfg Config) *StorageBlobStore {
	return &StorageBlobStore{
		storage: client.Storage,
		url:     strings.TrimRight(cfg.URL, "/") + supa.STORGAGE_URL,
		key:     cfg.Key,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
	}
}

func (s *StorageBlobStore) path(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// prefix配下の画像を新しい順で返す
func (s *StorageBlobStore) List(ctx context.Context) ([]model.ImageObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := s.storage.ListFiles(s.bucket, s.prefix, storage_go.FileSearchOptions{
		Limit:         listLimit,
		SortByOptions: storage_go.SortBy{Column: "created_at", Order: "desc"},
	})
	if err != nil {
		return nil, repo.NewTransportError("storage list", err)
	}

	out := make([]model.ImageObject, 0, len(files))
	for _, f := range files {
		if f.Name == "" || f.Name == placeholderName {
			continue
		}
		out = append(out, model.ImageObject{
			Name:      f.Name,
			URL:       s.PublicURL(f.Name),
			SizeBytes: sizeOf(f.Metadata),
			CreatedAt: parseTime(f.CreatedAt),
		})
	}
	return out, nil
}

func (s *StorageBlobStore) PublicURL(name string) string {
	return s.storage.GetPublicUrl(s.bucket, s.path(name)).SignedURL
}

// アップロードして公開URLを返す
func (s *StorageBlobStore) Upload(ctx context.Context, name string, body io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	//UploadFileはcontent-typeをクライアントに残すので、毎回別クライアントを使う
	uploader := storage_go.NewClient(s.url, s.key, map[string]string{"apikey": s.key})
	upsert := false
	if _, err := uploader.UploadFile(s.bucket, s.path(name), body, storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}); err != nil {
		return "", repo.NewTransportError("storage upload", err)
	}
	return s.PublicURL(name), nil
}

func sizeOf(meta interface{}) int64 {
	m, ok := meta.(map[string]interface{})
	if !ok {
		return 0
	}
	switch v := m["size"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
