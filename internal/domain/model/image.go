package model

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ブロブストア上の画像1件
type ImageObject struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	SizeBytes int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// 画像として扱う拡張子
func IsImageFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// 割り当て済み画像（参照している商品付き）
type AssignedImage struct {
	Image    ImageObject `json:"image"`
	Products []Product   `json:"products"`
}

// 分類結果。AssignedとUnassignedは入力画像を過不足なく分割する。
type Classification struct {
	Assigned   []AssignedImage `json:"assigned"`
	Unassigned []ImageObject   `json:"unassigned"`
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// 未割り当て画像に対する候補
type Suggestion struct {
	Image      ImageObject `json:"image"`
	Candidates []Product   `json:"candidates"`
	Confidence Confidence  `json:"confidence"`
	Note       string      `json:"note,omitempty"`
}

// 1組の割り当て
type Assignment struct {
	ProductID int64  `json:"productId"`
	ImageURL  string `json:"imageUrl"`
}

type AssignmentStatus string

const (
	AssignmentUpdated AssignmentStatus = "updated"
	AssignmentError   AssignmentStatus = "error"
)

type AssignmentOutcome struct {
	ProductID   int64            `json:"productId"`
	ProductName string           `json:"productName,omitempty"`
	OldImage    string           `json:"oldImage,omitempty"`
	NewImage    string           `json:"newImage"`
	Status      AssignmentStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
}

type ApplyMode string

const (
	ApplyLive     ApplyMode = "live"
	ApplyArtifact ApplyMode = "artifact"
)

func (m ApplyMode) Valid() bool {
	return m == ApplyLive || m == ApplyArtifact
}

type ApplySummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// 適用結果。Catalogは新しいスナップショット。
type ApplyResult struct {
	Mode     ApplyMode           `json:"mode"`
	Catalog  []Product           `json:"-"`
	Outcomes []AssignmentOutcome `json:"outcomes"`
	Summary  ApplySummary        `json:"summary"`
	Artifact string              `json:"artifact,omitempty"`
}

// ObjectNameはアップロード用のオブジェクト名 <slug>-<unixミリ秒>-<6文字>.<拡張子> を作る
func ObjectName(productName, originalFile string, now time.Time) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(originalFile)), ".")
	if ext == "" {
		ext = "jpg"
	}
	slug := Slugify(productName)
	if slug == "" {
		slug = "product"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s-%d-%s.%s", slug, now.UnixMilli(), suffix, ext)
}

// 英数字以外を"-"にまとめる
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
