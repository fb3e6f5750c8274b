package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"go-danmaku/internal/model"
)

var (
	// ErrDuplicateProfile 同名配置已存在。
	ErrDuplicateProfile = errors.New("duplicate profile name")
	// ErrProfileNotFound 配置不存在。
	ErrProfileNotFound = errors.New("profile not found")
)

// ProfileRepository 负责连接配置的持久化。
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Save 新增一条配置；重名返回 ErrDuplicateProfile。
func (r *ProfileRepository) Save(ctx context.Context, p *model.Profile) error {
	if p.Name == "" {
		return errors.New("profile name required")
	}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateProfile
		}
		return err
	}
	return nil
}

// Update 按名称覆盖连接参数。
func (r *ProfileRepository) Update(ctx context.Context, p *model.Profile) error {
	res := r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("name = ?", p.Name).
		Updates(map[string]interface{}{
			"host":    p.Host,
			"port":    p.Port,
			"uid":     p.UID,
			"room_id": p.RoomID,
			"token":   p.Token,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// FindByName 根据名称查询单条配置。
func (r *ProfileRepository) FindByName(ctx context.Context, name string) (*model.Profile, error) {
	var p model.Profile
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List 按名称升序返回所有配置。
func (r *ProfileRepository) List(ctx context.Context) ([]model.Profile, error) {
	var profiles []model.Profile
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *ProfileRepository) Delete(ctx context.Context, name string) error {
	res := r.db.WithContext(ctx).Where("name = ?", name).Delete(&model.Profile{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// isDuplicateKey 兼容 MySQL(1062) 与 SQLite 的唯一键冲突。
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
