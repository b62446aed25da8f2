package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain/matching"
	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 画像の到達確認のタイムアウト
const imageCheckTimeout = 5 * time.Second

// カタログ全件の読み出し
type CatalogSource interface {
	Snapshot(ctx context.Context) ([]model.Product, error)
}

// 商品画像の書き込み
type ImageAssigner interface {
	AssignImage(ctx context.Context, adminUserID int64, productID int64, imageURL string) (model.Product, error)
}

type ReconcileUsecase struct {
	blobs    repo.BlobStore
	catalog  CatalogSource
	assigner ImageAssigner
	delay    time.Duration
	client   *http.Client
	log      *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*ReconcileSession
}

// DI
func NewReconcileUsecase(
	blobs repo.BlobStore,
	catalog CatalogSource,
	assigner ImageAssigner,
	stepDelay time.Duration,
	log *zap.Logger,
) *ReconcileUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReconcileUsecase{
		blobs:    blobs,
		catalog:  catalog,
		assigner: assigner,
		delay:    stepDelay,
		client:   &http.Client{Timeout: imageCheckTimeout},
		log:      log,
		now:      time.Now,
		sessions: map[string]*ReconcileSession{},
	}
}

func (u *ReconcileUsecase) ListImages(ctx context.Context) ([]model.ImageObject, error) {
	imgs, err := u.blobs.List(ctx)
	if err != nil {
		return nil, repoError(err, "not found")
	}
	return imgs, nil
}

// 画像一覧とカタログを同時点で読む
func (u *ReconcileUsecase) load(ctx context.Context) ([]model.ImageObject, []model.Product, error) {
	imgs, err := u.blobs.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	products, err := u.catalog.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	return imgs, products, nil
}

func (u *ReconcileUsecase) ClassifyImages(ctx context.Context) (model.Classification, error) {
	imgs, products, err := u.load(ctx)
	if err != nil {
		return model.Classification{}, repoError(err, "not found")
	}
	return matching.Classify(imgs, products, u.blobs.PublicURL), nil
}

// SuggestMatches は画像名に合う商品を順位順に返す（空なら手動割り当て）
func (u *ReconcileUsecase) SuggestMatches(ctx context.Context, imageName string) ([]model.Product, error) {
	if strings.TrimSpace(imageName) == "" {
		return nil, NewHTTPError(http.StatusBadRequest, "name required")
	}
	products, err := u.catalog.Snapshot(ctx)
	if err != nil {
		return nil, repoError(err, "not found")
	}
	return matching.SuggestMatches(imageName, products), nil
}

type SuggestionsOutput struct {
	Suggestions []model.Suggestion         `json:"suggestions"`
	Summary     matching.SuggestionSummary `json:"summary"`
}

func (u *ReconcileUsecase) SuggestProductUpdates(ctx context.Context) (SuggestionsOutput, error) {
	imgs, products, err := u.load(ctx)
	if err != nil {
		return SuggestionsOutput{}, repoError(err, "not found")
	}
	c := matching.Classify(imgs, products, u.blobs.PublicURL)
	s, sum := matching.SuggestUpdates(c.Unassigned, products)
	return SuggestionsOutput{Suggestions: s, Summary: sum}, nil
}

type ImageSuggestion struct {
	Image      model.ImageObject `json:"image"`
	Candidates []model.Product   `json:"candidates"`
}

type AssignmentStats struct {
	TotalImages     int               `json:"totalImages"`
	AssignedCount   int               `json:"assignedCount"`
	UnassignedCount int               `json:"unassignedCount"`
	Percentage      int               `json:"assignmentPercentage"`
	Suggestions     []ImageSuggestion `json:"suggestions"`
}

func (u *ReconcileUsecase) AssignmentStats(ctx context.Context) (AssignmentStats, error) {
	imgs, products, err := u.load(ctx)
	if err != nil {
		return AssignmentStats{}, repoError(err, "not found")
	}
	c := matching.Classify(imgs, products, u.blobs.PublicURL)

	out := AssignmentStats{
		TotalImages:     len(imgs),
		AssignedCount:   len(c.Assigned),
		UnassignedCount: len(c.Unassigned),
		Percentage:      matching.AssignmentPercentage(c),
		Suggestions:     make([]ImageSuggestion, 0, len(c.Unassigned)),
	}
	for _, img := range c.Unassigned {
		out.Suggestions = append(out.Suggestions, ImageSuggestion{
			Image:      img,
			Candidates: matching.SuggestMatches(img.Name, products),
		})
	}
	return out, nil
}

type UploadResult struct {
	Success   bool   `json:"success"`
	PublicURL string `json:"publicUrl,omitempty"`
	Error     string `json:"error,omitempty"`
}

// UploadImage はオブジェクト名を決めてアップロードする。
// 入力不正はHTTPError、アップロード失敗はSuccess=falseで返す。
func (u *ReconcileUsecase) UploadImage(ctx context.Context, productName, fileName, contentType string, body io.Reader) (UploadResult, error) {
	if strings.TrimSpace(productName) == "" {
		return UploadResult{}, NewHTTPError(http.StatusBadRequest, "productName required")
	}
	if !model.IsImageFile(fileName) {
		return UploadResult{}, NewHTTPError(http.StatusBadRequest, "only .jpg, .jpeg, .png are allowed")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	name := model.ObjectName(productName, fileName, u.now())
	publicURL, err := u.blobs.Upload(ctx, name, body, contentType)
	if err != nil {
		u.log.Error("image upload failed", zap.String("object", name), zap.Error(err))
		return UploadResult{Success: false, Error: err.Error()}, nil
	}
	return UploadResult{Success: true, PublicURL: publicURL}, nil
}

// ApplyAssignments は割り当てを適用する。
// live は1件ずつ商品を更新（間隔あり、ctxで中断）、artifact は書き込まずに差し替え用モジュールを返す。
func (u *ReconcileUsecase) ApplyAssignments(ctx context.Context, adminUserID int64, pairs []model.Assignment, mode model.ApplyMode) (model.ApplyResult, error) {
	if err := validateAssignments(pairs, mode); err != nil {
		return model.ApplyResult{}, err
	}

	catalog, err := u.catalog.Snapshot(ctx)
	if err != nil {
		return model.ApplyResult{}, repoError(err, "not found")
	}
	next, outcomes, summary := matching.ApplyAssignments(catalog, pairs)
	res := model.ApplyResult{Mode: mode, Catalog: next, Outcomes: outcomes, Summary: summary}

	if mode == model.ApplyArtifact {
		text, err := matching.RenderCatalogModule(next)
		if err != nil {
			return model.ApplyResult{}, NewHTTPError(http.StatusInternalServerError, "render failed")
		}
		res.Artifact = text
		return res, nil
	}

	u.writeLive(ctx, adminUserID, &res)
	return res, nil
}

// 入力チェック（400）
func validateAssignments(pairs []model.Assignment, mode model.ApplyMode) error {
	if !mode.Valid() {
		return NewHTTPError(http.StatusBadRequest, "mode must be live or artifact")
	}
	if len(pairs) == 0 {
		return NewHTTPError(http.StatusBadRequest, "no assignments")
	}
	for _, p := range pairs {
		if strings.TrimSpace(p.ImageURL) == "" {
			return NewHTTPError(http.StatusBadRequest, "imageUrl required")
		}
	}
	return nil
}

func (u *ReconcileUsecase) writeLive(ctx context.Context, adminUserID int64, res *model.ApplyResult) {
	first := true
	for i := range res.Outcomes {
		o := &res.Outcomes[i]
		if o.Status != model.AssignmentUpdated {
			continue
		}

		if !first {
			if err := sleepCtx(ctx, u.delay); err != nil {
				u.failOutcome(res, o, "cancelled")
				continue
			}
		}
		first = false

		if ctx.Err() != nil {
			u.failOutcome(res, o, "cancelled")
			continue
		}
		if _, err := u.assigner.AssignImage(ctx, adminUserID, o.ProductID, o.NewImage); err != nil {
			msg := err.Error()
			if he, ok := AsHTTPError(err); ok {
				msg = he.Message
			}
			u.log.Warn("image assignment failed", zap.Int64("product_id", o.ProductID), zap.Error(err))
			u.failOutcome(res, o, msg)
		}
	}
}

// 書き込めなかった組をerrorにしてスナップショットも戻す
func (u *ReconcileUsecase) failOutcome(res *model.ApplyResult, o *model.AssignmentOutcome, msg string) {
	o.Status = model.AssignmentError
	o.Error = msg
	res.Summary.Success--
	res.Summary.Failed++
	for i := range res.Catalog {
		if res.Catalog[i].ID == o.ProductID {
			res.Catalog[i].Image = o.OldImage
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CheckImageAccessible はHEADで画像URLに届くか確かめる
func (u *ReconcileUsecase) CheckImageAccessible(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, imageCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := u.client.Do(req)
	if err != nil {
		u.log.Debug("image not accessible", zap.String("url", url), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ---- 照合セッション ----

type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionLoading  SessionState = "loading"
	SessionReady    SessionState = "ready"
	SessionApplying SessionState = "applying"
	SessionApplied  SessionState = "applied"
	SessionFailed   SessionState = "failed"
)

// 許可された遷移
var sessionTransitions = map[SessionState][]SessionState{
	SessionIdle:     {SessionLoading},
	SessionLoading:  {SessionReady, SessionFailed},
	SessionReady:    {SessionApplying},
	SessionApplying: {SessionApplied, SessionFailed},
	SessionApplied:  {SessionIdle},
	SessionFailed:   {SessionIdle},
}

func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, n := range sessionTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

var errBadTransition = errors.New("invalid session transition")

type ReconcileSession struct {
	ID             string                     `json:"id"`
	State          SessionState               `json:"state"`
	Error          string                     `json:"error,omitempty"`
	Classification *model.Classification      `json:"classification,omitempty"`
	Suggestions    []model.Suggestion         `json:"suggestions,omitempty"`
	Summary        matching.SuggestionSummary `json:"summary"`
	Result         *model.ApplyResult         `json:"result,omitempty"`
	UpdatedAt      time.Time                  `json:"updatedAt"`
}

// u.muを持った状態で呼ぶ
func (u *ReconcileUsecase) transition(s *ReconcileSession, next SessionState) error {
	if !s.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", errBadTransition, s.State, next)
	}
	s.State = next
	s.UpdatedAt = u.now()
	return nil
}

func (u *ReconcileUsecase) StartSession(ctx context.Context) (ReconcileSession, error) {
	s := &ReconcileSession{ID: uuid.NewString(), State: SessionIdle, UpdatedAt: u.now()}
	u.mu.Lock()
	u.sessions[s.ID] = s
	u.mu.Unlock()

	return u.loadSession(ctx, s)
}

// idle → loading → ready|failed
func (u *ReconcileUsecase) loadSession(ctx context.Context, s *ReconcileSession) (ReconcileSession, error) {
	u.mu.Lock()
	if err := u.transition(s, SessionLoading); err != nil {
		u.mu.Unlock()
		return ReconcileSession{}, NewHTTPError(http.StatusConflict, err.Error())
	}
	u.mu.Unlock()

	imgs, products, err := u.load(ctx)

	u.mu.Lock()
	defer u.mu.Unlock()
	if err != nil {
		u.log.Warn("reconcile load failed", zap.String("session", s.ID), zap.Error(err))
		_ = u.transition(s, SessionFailed)
		s.Error = err.Error()
		return *s, nil
	}

	c := matching.Classify(imgs, products, u.blobs.PublicURL)
	sugg, sum := matching.SuggestUpdates(c.Unassigned, products)
	s.Classification = &c
	s.Suggestions = sugg
	s.Summary = sum
	s.Error = ""
	_ = u.transition(s, SessionReady)
	return *s, nil
}

func (u *ReconcileUsecase) GetSession(id string) (ReconcileSession, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	s, ok := u.sessions[id]
	if !ok {
		return ReconcileSession{}, NewHTTPError(http.StatusNotFound, "session not found")
	}
	return *s, nil
}

// ApplySession は ready のセッションに割り当てを適用する。
// 入力エラーは状態を変えずに400を返す。
func (u *ReconcileUsecase) ApplySession(ctx context.Context, adminUserID int64, id string, pairs []model.Assignment, mode model.ApplyMode) (ReconcileSession, error) {
	u.mu.Lock()
	s, ok := u.sessions[id]
	if !ok {
		u.mu.Unlock()
		return ReconcileSession{}, NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err := validateAssignments(pairs, mode); err != nil {
		u.mu.Unlock()
		return ReconcileSession{}, err
	}
	if err := u.transition(s, SessionApplying); err != nil {
		u.mu.Unlock()
		return ReconcileSession{}, NewHTTPError(http.StatusConflict, err.Error())
	}
	u.mu.Unlock()

	res, err := u.ApplyAssignments(ctx, adminUserID, pairs, mode)

	u.mu.Lock()
	defer u.mu.Unlock()
	if err != nil {
		msg := err.Error()
		if he, ok := AsHTTPError(err); ok {
			msg = he.Message
		}
		_ = u.transition(s, SessionFailed)
		s.Error = msg
		return *s, nil
	}
	s.Result = &res
	_ = u.transition(s, SessionApplied)
	return *s, nil
}

// RestartSession は failed/applied から idle に戻して読み直す
func (u *ReconcileUsecase) RestartSession(ctx context.Context, id string) (ReconcileSession, error) {
	u.mu.Lock()
	s, ok := u.sessions[id]
	if !ok {
		u.mu.Unlock()
		return ReconcileSession{}, NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err := u.transition(s, SessionIdle); err != nil {
		u.mu.Unlock()
		return ReconcileSession{}, NewHTTPError(http.StatusConflict, err.Error())
	}
	s.Error = ""
	s.Classification = nil
	s.Suggestions = nil
	s.Summary = matching.SuggestionSummary{}
	s.Result = nil
	u.mu.Unlock()

	return u.loadSession(ctx, s)
}
