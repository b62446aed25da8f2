package supabase

import (
	"context"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	postgrest "github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const productsTable = "products"

// productsテーブルの行
type productRow struct {
	ID          int64      `json:"id,omitempty"`
	Name        string     `json:"name"`
	Price       string     `json:"price"`
	Category    string     `json:"category"`
	Image       string     `json:"image"`
	Description string     `json:"description"`
	InStock     bool       `json:"in_stock"`
	Featured    bool       `json:"featured"`
	Badge       string     `json:"badge,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func (r productRow) toModel() model.Product {
	p := model.Product{
		ID:          r.ID,
		Name:        r.Name,
		Price:       r.Price,
		Category:    r.Category,
		Image:       r.Image,
		Description: r.Description,
		InStock:     r.InStock,
		Featured:    r.Featured,
		Badge:       r.Badge,
	}
	if r.CreatedAt != nil {
		p.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		p.UpdatedAt = *r.UpdatedAt
	}
	return p
}

// PostgREST経由のカタログ
type CatalogRepository struct {
	client *supa.Client
}

// DI
func NewCatalogRepository(client *supa.Client) *CatalogRepository {
	return &CatalogRepository{client: client}
}

func (r *CatalogRepository) List(ctx context.Context, f repo.ProductFilter) ([]model.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := r.client.From(productsTable).Select("*", "", false)
	if s := strings.TrimSpace(f.Q); s != "" {
		q = q.Ilike("name", "*"+s+"*")
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		q = q.Ilike("category", c)
	}
	if f.InStock != nil {
		q = q.Eq("in_stock", strconv.FormatBool(*f.InStock))
	}
	if f.Featured != nil {
		q = q.Eq("featured", strconv.FormatBool(*f.Featured))
	}
	q = q.Order("id", &postgrest.OrderOpts{Ascending: true})
	if f.Limit > 0 {
		q = q.Range(f.Offset, f.Offset+f.Limit-1, "")
	}

	var rows []productRow
	if _, err := q.ExecuteTo(&rows); err != nil {
		return nil, repo.NewTransportError("catalog list", err)
	}
	return toModels(rows), nil
}

func (r *CatalogRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	if err := ctx.Err(); err != nil {
		return model.Product{}, err
	}

	var rows []productRow
	_, err := r.client.From(productsTable).
		Select("*", "", false).
		Eq("id", strconv.FormatInt(id, 10)).
		ExecuteTo(&rows)
	if err != nil {
		return model.Product{}, repo.NewTransportError("catalog get", err)
	}
	if len(rows) == 0 {
		return model.Product{}, repo.ErrNotFound
	}
	return rows[0].toModel(), nil
}

// id/時刻はサーバー側で振る
func (r *CatalogRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := ctx.Err(); err != nil {
		return model.Product{}, err
	}

	in := productRow{
		Name:        p.Name,
		Price:       p.Price,
		Category:    p.Category,
		Image:       p.Image,
		Description: p.Description,
		InStock:     p.InStock,
		Featured:    p.Featured,
		Badge:       p.Badge,
	}
	var rows []productRow
	if _, err := r.client.From(productsTable).Insert(in, false, "", "representation", "").ExecuteTo(&rows); err != nil {
		return model.Product{}, repo.NewTransportError("catalog insert", err)
	}
	if len(rows) == 0 {
		return model.Product{}, repo.NewTransportError("catalog insert", errEmptyResponse)
	}
	return rows[0].toModel(), nil
}

func (r *CatalogRepository) Update(ctx context.Context, id int64, patch model.ProductPatch) (model.Product, error) {
	if err := ctx.Err(); err != nil {
		return model.Product{}, err
	}

	body := patchBody(patch)
	if len(body) == 0 {
		return r.FindByID(ctx, id)
	}
	body["updated_at"] = time.Now().UTC()

	var rows []productRow
	_, err := r.client.From(productsTable).
		Update(body, "representation", "").
		Eq("id", strconv.FormatInt(id, 10)).
		ExecuteTo(&rows)
	if err != nil {
		return model.Product{}, repo.NewTransportError("catalog update", err)
	}
	if len(rows) == 0 {
		return model.Product{}, repo.ErrNotFound
	}
	return rows[0].toModel(), nil
}

func (r *CatalogRepository) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var rows []productRow
	_, err := r.client.From(productsTable).
		Delete("representation", "").
		Eq("id", strconv.FormatInt(id, 10)).
		ExecuteTo(&rows)
	if err != nil {
		return repo.NewTransportError("catalog delete", err)
	}
	if len(rows) == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func toModels(rows []productRow) []model.Product {
	out := make([]model.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}

func patchBody(p model.ProductPatch) map[string]interface{} {
	m := map[string]interface{}{}
	if p.Name != nil {
		m["name"] = *p.Name
	}
	if p.Price != nil {
		m["price"] = *p.Price
	}
	if p.Category != nil {
		m["category"] = *p.Category
	}
	if p.Image != nil {
		m["image"] = *p.Image
	}
	if p.Description != nil {
		m["description"] = *p.Description
	}
	if p.InStock != nil {
		m["in_stock"] = *p.InStock
	}
	if p.Featured != nil {
		m["featured"] = *p.Featured
	}
	if p.Badge != nil {
		m["badge"] = *p.Badge
	}
	return m
}
