// Package supabase はSupabase（PostgREST + Storage）を使ったカタログ/画像ストアの実装。
package supabase

import (
	"fmt"
	"strings"

	supa "github.com/supabase-community/supabase-go"
)

type Config struct {
	URL    string
	Key    string
	Bucket string
	Prefix string
}

// NewClient はSupabaseクライアントを作る
func NewClient(cfg Config) (*supa.Client, error) {
	url := strings.TrimRight(cfg.URL, "/")
	c, err := supa.NewClient(url, cfg.Key, &supa.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return c, nil
}
