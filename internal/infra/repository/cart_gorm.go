package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartStateGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartStateGormRepository(db *gorm.DB) *CartStateGormRepository {
	return &CartStateGormRepository{db: db}
}

// セッションのカート状態を取得
func (r *CartStateGormRepository) Load(ctx context.Context, sessionKey string) (model.CartState, error) {
	var rec model.CartStateRecord
	err := r.db.WithContext(ctx).Where("session_key = ?", sessionKey).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CartState{}, repo.ErrNotFound
	}
	if err != nil {
		return model.CartState{}, err
	}

	var st model.CartState
	if err := json.Unmarshal([]byte(rec.Payload), &st); err != nil {
		return model.CartState{}, err
	}
	//payloadより行のバージョンを優先
	st.SchemaVersion = rec.SchemaVersion
	return st, nil
}

// 丸ごと上書き保存（無ければ作成）
func (r *CartStateGormRepository) Save(ctx context.Context, sessionKey string, st model.CartState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}

	rec := model.CartStateRecord{
		SessionKey:    sessionKey,
		SchemaVersion: st.SchemaVersion,
		Payload:       string(payload),
		UpdatedAt:     time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"schema_version", "payload", "updated_at"}),
		}).
		Create(&rec).Error
}

func (r *CartStateGormRepository) Delete(ctx context.Context, sessionKey string) error {
	res := r.db.WithContext(ctx).Where("session_key = ?", sessionKey).Delete(&model.CartStateRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
