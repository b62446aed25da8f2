package matching

import (
	"bytes"
	"encoding/json"
	"math"

	"storefront/internal/domain/model"
)

// URLOfは画像名から公開URLを作る
type URLOf func(name string) string

// Classifyは画像を割り当て済み/未割り当てに分ける。
// 割り当て済み = 公開URLがどれかの商品のimageと一致する。
func Classify(images []model.ImageObject, products []model.Product, urlOf URLOf) model.Classification {
	out := model.Classification{
		Assigned:   []model.AssignedImage{},
		Unassigned: []model.ImageObject{},
	}
	for _, img := range images {
		url := img.URL
		if url == "" && urlOf != nil {
			url = urlOf(img.Name)
		}

		var owners []model.Product
		for _, p := range products {
			if p.Image == url {
				owners = append(owners, p)
			}
		}
		if len(owners) > 0 {
			out.Assigned = append(out.Assigned, model.AssignedImage{Image: img, Products: owners})
			continue
		}
		out.Unassigned = append(out.Unassigned, img)
	}
	return out
}

// 割り当て率（%、四捨五入）。画像0件なら0
func AssignmentPercentage(c model.Classification) int {
	total := len(c.Assigned) + len(c.Unassigned)
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(len(c.Assigned)) / float64(total) * 100))
}

// ApplyAssignmentsはスナップショットをコピーしてimageを書き換える。
// 入力のスライスは変更しない。存在しないIDはerrorとして記録する。
func ApplyAssignments(catalog []model.Product, pairs []model.Assignment) ([]model.Product, []model.AssignmentOutcome, model.ApplySummary) {
	next := make([]model.Product, len(catalog))
	copy(next, catalog)

	index := make(map[int64]int, len(next))
	for i, p := range next {
		if _, dup := index[p.ID]; !dup {
			index[p.ID] = i
		}
	}

	outcomes := make([]model.AssignmentOutcome, 0, len(pairs))
	sum := model.ApplySummary{Total: len(pairs)}

	for _, a := range pairs {
		i, ok := index[a.ProductID]
		if !ok {
			outcomes = append(outcomes, model.AssignmentOutcome{
				ProductID: a.ProductID,
				NewImage:  a.ImageURL,
				Status:    model.AssignmentError,
				Error:     "product not found",
			})
			sum.Failed++
			continue
		}
		old := next[i].Image
		next[i].Image = a.ImageURL
		outcomes = append(outcomes, model.AssignmentOutcome{
			ProductID:   a.ProductID,
			ProductName: next[i].Name,
			OldImage:    old,
			NewImage:    a.ImageURL,
			Status:      model.AssignmentUpdated,
		})
		sum.Success++
	}
	return next, outcomes, sum
}

// 置き換え用カタログの1件（ストアフロントの静的データと同じ形）
type catalogEntry struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Category    string `json:"category"`
	Image       string `json:"image"`
	Description string `json:"description"`
	InStock     bool   `json:"inStock"`
	Badge       string `json:"badge,omitempty"`
	Featured    bool   `json:"featured"`
}

// RenderCatalogModuleは `export const products = [...];` 形式の置き換えファイルを作る
func RenderCatalogModule(catalog []model.Product) (string, error) {
	entries := make([]catalogEntry, 0, len(catalog))
	for _, p := range catalog {
		entries = append(entries, catalogEntry{
			ID:          p.ID,
			Name:        p.Name,
			Price:       p.Price,
			Category:    p.Category,
			Image:       p.Image,
			Description: p.Description,
			InStock:     p.InStock,
			Badge:       p.Badge,
			Featured:    p.Featured,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return "", err
	}
	body := bytes.TrimRight(buf.Bytes(), "\n")
	return "export const products = " + string(body) + ";", nil
}
