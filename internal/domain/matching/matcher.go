// Package matching はファイル名から商品候補を推定する。
//
// 候補はファイル名への商品名の直接包含か、キーワード表で選ぶ。
// 並び順は (1) 英数字だけにした商品名がファイル名に含まれるもの
// (2) トークン一致数の多いもの (3) 商品IDの小さいもの。
package matching

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"storefront/internal/domain/model"
)

type keywordRule struct {
	pattern *regexp.Regexp
	match   func(name string) bool
}

func has(words ...string) func(string) bool {
	return func(name string) bool {
		for _, w := range words {
			if !strings.Contains(name, w) {
				return false
			}
		}
		return true
	}
}

func hasAny(words ...string) func(string) bool {
	return func(name string) bool {
		for _, w := range words {
			if strings.Contains(name, w) {
				return true
			}
		}
		return false
	}
}

// ファイル名パターン → 商品名の条件
var keywordRules = []keywordRule{
	{regexp.MustCompile(`arduino.*uno`), has("arduino", "uno")},
	{regexp.MustCompile(`arduino.*nano`), has("arduino", "nano")},
	{regexp.MustCompile(`arduino.*mega`), has("arduino", "mega")},
	{regexp.MustCompile(`esp32`), has("esp32")},
	{regexp.MustCompile(`esp8266`), has("esp8266")},
	{regexp.MustCompile(`nodemcu`), has("nodemcu")},
	{regexp.MustCompile(`wemos`), has("wemos")},
	{regexp.MustCompile(`raspberry.*pi`), has("raspberry")},
	{regexp.MustCompile(`sensor.*ultrasonic`), has("ultrasonic")},
	{regexp.MustCompile(`sensor.*temperature`), hasAny("temperature", "dht")},
	{regexp.MustCompile(`sensor.*humidity`), hasAny("humidity", "dht")},
	{regexp.MustCompile(`lcd.*display`), hasAny("lcd", "display")},
	{regexp.MustCompile(`led.*strip`), has("led", "strip")},
	{regexp.MustCompile(`motor.*servo`), has("servo")},
	{regexp.MustCompile(`motor.*stepper`), has("stepper")},
	{regexp.MustCompile(`relay`), has("relay")},
	{regexp.MustCompile(`breadboard`), has("breadboard")},
	{regexp.MustCompile(`jumper.*wire`), hasAny("jumper", "wire")},
	{regexp.MustCompile(`resistor`), has("resistor")},
	{regexp.MustCompile(`capacitor`), has("capacitor")},
	{regexp.MustCompile(`transistor`), has("transistor")},
}

var (
	whitespace = regexp.MustCompile(`\s+`)
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
)

// 小文字化して拡張子を外す
func Normalize(fileName string) string {
	lower := strings.ToLower(path.Base(fileName))
	return strings.TrimSuffix(lower, path.Ext(lower))
}

func clean(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

func tokens(s string) []string {
	var out []string
	for _, t := range nonAlnum.Split(strings.ToLower(s), -1) {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func directMatch(base, name string) bool {
	for _, sep := range []string{"-", "_", ""} {
		needle := whitespace.ReplaceAllString(name, sep)
		if needle != "" && strings.Contains(base, needle) {
			return true
		}
	}
	return false
}

func keywordMatch(base, name string) bool {
	for _, r := range keywordRules {
		if r.pattern.MatchString(base) && r.match(name) {
			return true
		}
	}
	return false
}

// 候補とその並び替えキー
type scored struct {
	product model.Product
	exact   bool
	overlap int
}

// ファイル名のトークンと一致した商品名トークンの数
func overlapScore(fileTokens map[string]struct{}, name string) int {
	seen := map[string]struct{}{}
	n := 0
	for _, t := range tokens(name) {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := fileTokens[t]; ok {
			n++
		}
	}
	return n
}

// SuggestMatchesは画像ファイル名に対する商品候補を確度の高い順に返す。
// 候補が無ければ空（手動割り当てが必要）。
func SuggestMatches(imageName string, products []model.Product) []model.Product {
	base := Normalize(imageName)
	cleanBase := clean(base)

	fileTokens := map[string]struct{}{}
	for _, t := range tokens(base) {
		fileTokens[t] = struct{}{}
	}

	var cands []scored
	for _, p := range products {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			continue
		}
		if !directMatch(base, name) && !keywordMatch(base, name) {
			continue
		}
		cn := clean(name)
		cands = append(cands, scored{
			product: p,
			exact:   cn != "" && strings.Contains(cleanBase, cn),
			overlap: overlapScore(fileTokens, name),
		})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.exact != b.exact {
			return a.exact
		}
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		return a.product.ID < b.product.ID
	})

	out := make([]model.Product, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.product)
	}
	return out
}
