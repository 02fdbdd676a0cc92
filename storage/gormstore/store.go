package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mengeric/reportfetch-go/reportjob"
)

// cacheModel 映射 cache 表：一键一行，payload 对存储完全不透明。
type cacheModel struct {
	CacheKey     string `gorm:"column:cache_key;primaryKey"`
	PayloadJSON  string `gorm:"column:payload_json;type:text;not null"`
	UpdatedAtUTC string `gorm:"column:updated_at_utc;not null"` // RFC3339，UTC，秒精度
	MetaJSON     string `gorm:"column:meta_json;type:text"`
}

func (cacheModel) TableName() string { return "cache" }

// jobModel 映射 jobs 表。
type jobModel struct {
	ID        string  `gorm:"primaryKey"`
	Status    string  `gorm:"not null;index"`
	Pct       int     `gorm:"default:0"`
	Log       string  `gorm:"type:text;not null"` // JSON 字符串数组
	Error     *string `gorm:"type:text"`
	Result    *string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (jobModel) TableName() string { return "jobs" }

// statusMappingModel 映射 status_mapping 表：上游生产状态到内部展示状态的重命名。
type statusMappingModel struct {
	ID           uint   `gorm:"primaryKey"`
	OdataStatus  string `gorm:"column:odata_status;uniqueIndex"`
	CustomStatus string `gorm:"column:custom_status"`
	Active       bool   `gorm:"default:true"`
}

func (statusMappingModel) TableName() string { return "status_mapping" }

// Store 基于 GORM + sqlite 的持久化实现。
// 说明：CacheStore 与 JobStore 的 Get 签名不同，无法挂在同一类型上，
// 故通过 Cache()/Jobs() 两个视图分别暴露；迁移、探活与状态重映射留在 Store 上。
type Store struct {
	db   *gorm.DB
	once sync.Once
	merr error
}

// New 基于既有 *gorm.DB 创建 Store。
func New(db *gorm.DB) *Store { return &Store{db: db} }

// Open 打开（必要时创建）本地 sqlite 数据库并创建 Store。
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// Cache 返回缓存视图。
func (s *Store) Cache() *CacheStore { return &CacheStore{s: s} }

// Jobs 返回任务视图。
func (s *Store) Jobs() *JobStore { return &JobStore{s: s} }

// EnsureReady 幂等建表。并发安全：迁移在 Store 粒度只执行一次，"表已存在"
// 不视为错误。
func (s *Store) EnsureReady(ctx context.Context) error {
	s.once.Do(func() {
		s.merr = s.db.WithContext(ctx).AutoMigrate(&cacheModel{}, &jobModel{}, &statusMappingModel{})
	})
	return s.merr
}

// Ping 数据库探活，供健康面使用。
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.db.WithContext(ctx).DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// ActiveStatusMappings 读取启用中的生产状态重映射（odata_status -> custom_status）。
func (s *Store) ActiveStatusMappings(ctx context.Context) (map[string]string, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}
	var rows []statusMappingModel
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.OdataStatus] = r.CustomStatus
	}
	return out, nil
}

// SetStatusMapping 新增或更新一条重映射。
func (s *Store) SetStatusMapping(ctx context.Context, odataStatus, customStatus string, active bool) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	m := statusMappingModel{OdataStatus: odataStatus, CustomStatus: customStatus, Active: active}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "odata_status"}},
		DoUpdates: clause.AssignmentColumns([]string{"custom_status", "active"}),
	}).Create(&m).Error
}

// ---- CacheStore ----

// CacheStore Store 的缓存视图。
type CacheStore struct{ s *Store }

var _ reportjob.CacheStore = (*CacheStore)(nil)

// EnsureReady 实现 CacheStore.EnsureReady。
func (c *CacheStore) EnsureReady(ctx context.Context) error { return c.s.EnsureReady(ctx) }

// Get 实现 CacheStore.Get。
func (c *CacheStore) Get(ctx context.Context, key string) (*reportjob.CacheEntry, error) {
	var m cacheModel
	if err := c.s.db.WithContext(ctx).Where("cache_key = ?", key).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reportjob.ErrCacheMiss
		}
		return nil, err
	}
	return fromCacheModel(m)
}

// Set 实现 CacheStore.Set：整体覆盖 payload 与 meta，刷新 updated_at_utc。
// sqlite 单语句即事务，Create 返回时数据已提交。
func (c *CacheStore) Set(ctx context.Context, key string, payload any, meta map[string]string) error {
	pb, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if meta == nil {
		meta = map[string]string{}
	}
	mb, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	m := cacheModel{
		CacheKey:     key,
		PayloadJSON:  string(pb),
		UpdatedAtUTC: time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		MetaJSON:     string(mb),
	}
	return c.s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload_json", "updated_at_utc", "meta_json"}),
	}).Create(&m).Error
}

func fromCacheModel(m cacheModel) (*reportjob.CacheEntry, error) {
	var payload any
	if err := json.Unmarshal([]byte(m.PayloadJSON), &payload); err != nil {
		return nil, err
	}
	meta := map[string]string{}
	if m.MetaJSON != "" {
		if err := json.Unmarshal([]byte(m.MetaJSON), &meta); err != nil {
			return nil, err
		}
	}
	at, err := time.Parse(time.RFC3339, m.UpdatedAtUTC)
	if err != nil {
		return nil, err
	}
	return &reportjob.CacheEntry{Key: m.CacheKey, Payload: payload, UpdatedAtUTC: at.UTC(), Meta: meta}, nil
}

// ---- JobStore ----

// JobStore Store 的任务视图。
type JobStore struct{ s *Store }

var _ reportjob.JobStore = (*JobStore)(nil)

// EnsureReady 实现 JobStore.EnsureReady。
func (j *JobStore) EnsureReady(ctx context.Context) error { return j.s.EnsureReady(ctx) }

// Create 实现 JobStore.Create。ID 冲突转译为 ErrJobExists。
func (j *JobStore) Create(ctx context.Context, jobID string) error {
	now := time.Now()
	m := jobModel{ID: jobID, Status: reportjob.StatusRunning, Pct: 0, Log: "[]", CreatedAt: now, UpdatedAt: now}
	if err := j.s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return reportjob.ErrJobExists
		}
		return err
	}
	return nil
}

// Update 实现 JobStore.Update。
// 实现：事务内读改写——日志只追加；Pct 为 nil 保留旧值；Result 为 nil 保留旧值；
// 状态按 StatusFor 推导（error 优先于 done）；updated_at 总是刷新。
func (j *JobStore) Update(ctx context.Context, jobID string, upd reportjob.JobUpdate) error {
	return j.s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m jobModel
		if err := tx.Where("id = ?", jobID).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return reportjob.ErrJobNotFound
			}
			return err
		}

		logs := []string{}
		if m.Log != "" {
			if err := json.Unmarshal([]byte(m.Log), &logs); err != nil {
				logs = []string{}
			}
		}
		if upd.Message != "" {
			logs = append(logs, upd.Message)
		}
		lb, err := json.Marshal(logs)
		if err != nil {
			return err
		}

		cols := map[string]any{
			"log":        string(lb),
			"status":     reportjob.StatusFor(upd.Error, upd.Done),
			"updated_at": time.Now(),
		}
		if upd.Pct != nil {
			cols["pct"] = *upd.Pct
		}
		if upd.Error != "" {
			cols["error"] = upd.Error
		} else {
			cols["error"] = nil
		}
		if upd.Result != nil {
			rb, err := json.Marshal(upd.Result)
			if err != nil {
				return err
			}
			cols["result"] = string(rb)
		}
		return tx.Model(&jobModel{}).Where("id = ?", jobID).Updates(cols).Error
	})
}

// Get 实现 JobStore.Get。
func (j *JobStore) Get(ctx context.Context, jobID string) (*reportjob.JobRecord, error) {
	var m jobModel
	if err := j.s.db.WithContext(ctx).Where("id = ?", jobID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reportjob.ErrJobNotFound
		}
		return nil, err
	}
	return fromJobModel(m)
}

func fromJobModel(m jobModel) (*reportjob.JobRecord, error) {
	logs := []string{}
	if m.Log != "" {
		if err := json.Unmarshal([]byte(m.Log), &logs); err != nil {
			logs = []string{}
		}
	}
	rec := &reportjob.JobRecord{
		ID:        m.ID,
		Status:    m.Status,
		Pct:       m.Pct,
		Log:       logs,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.Error != nil {
		rec.Error = *m.Error
	}
	if m.Result != nil && *m.Result != "" {
		var res any
		if err := json.Unmarshal([]byte(*m.Result), &res); err != nil {
			res = *m.Result
		}
		rec.Result = res
	}
	return rec, nil
}
