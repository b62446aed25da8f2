package matching

import (
	"strings"

	"storefront/internal/domain/model"
)

const noMatchNote = "No automatic match found - manual assignment needed"

// 一括提案用のキーワード。sensorだけはカテゴリを見る
var bulkKeywords = []struct {
	word       string
	byCategory bool
}{
	{"arduino", false},
	{"esp32", false},
	{"esp8266", false},
	{"sensor", true},
	{"lcd", false},
	{"motor", false},
	{"relay", false},
	{"breadboard", false},
	{"led", false},
}

// BulkCandidatesはファイル名と商品名（またはカテゴリ）の両方に同じキーワードがある商品を返す
func BulkCandidates(imageName string, products []model.Product) []model.Product {
	file := strings.ToLower(imageName)

	var out []model.Product
	for _, p := range products {
		name := strings.ToLower(p.Name)
		category := strings.ToLower(p.Category)
		for _, k := range bulkKeywords {
			if !strings.Contains(file, k.word) {
				continue
			}
			target := name
			if k.byCategory {
				target = category
			}
			if strings.Contains(target, k.word) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// 候補数から確度を決める
func ConfidenceFor(n int) model.Confidence {
	switch {
	case n == 1:
		return model.ConfidenceHigh
	case n > 1:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

type SuggestionSummary struct {
	TotalNewImages int `json:"totalNewImages"`
	High           int `json:"highConfidenceMatches"`
	Medium         int `json:"mediumConfidenceMatches"`
	Low            int `json:"lowConfidenceMatches"`
}

// SuggestUpdatesは未割り当て画像ごとに候補と確度ラベルを付ける
func SuggestUpdates(unassigned []model.ImageObject, products []model.Product) ([]model.Suggestion, SuggestionSummary) {
	out := make([]model.Suggestion, 0, len(unassigned))
	var sum SuggestionSummary

	for _, img := range unassigned {
		if !model.IsImageFile(img.Name) {
			continue
		}
		sum.TotalNewImages++

		cands := BulkCandidates(img.Name, products)
		s := model.Suggestion{
			Image:      img,
			Candidates: cands,
			Confidence: ConfidenceFor(len(cands)),
		}
		switch s.Confidence {
		case model.ConfidenceHigh:
			sum.High++
		case model.ConfidenceMedium:
			sum.Medium++
		default:
			sum.Low++
			s.Note = noMatchNote
		}
		out = append(out, s)
	}
	return out, sum
}
