package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hoangvu/atelierdesk/internal/domain"
)

// orderDoc is the persisted form of an order: one jsonb document per code.
// Row-level locking gives Patch its single-document atomicity.
type orderDoc struct {
	Code      string       `gorm:"primaryKey;size:40"`
	Doc       domain.Order `gorm:"type:jsonb;serializer:json"`
	UpdatedAt time.Time
}

func (orderDoc) TableName() string { return "order_docs" }

type OrderStore struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewOrderStore(db *gorm.DB, rdb *redis.Client) *OrderStore {
	return &OrderStore{db: db, rdb: rdb}
}

func channel(code string) string { return "orders:" + code }

func (s *OrderStore) Read(ctx context.Context, code string) (*domain.Order, error) {
	var doc orderDoc
	if err := s.db.WithContext(ctx).First(&doc, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	o := doc.Doc
	return &o, nil
}

func (s *OrderStore) Write(ctx context.Context, o *domain.Order) error {
	doc := orderDoc{Code: o.Code, Doc: *o}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&doc).Error; err != nil {
		return err
	}
	s.publish(ctx, o.Code)
	return nil
}

func (s *OrderStore) Patch(ctx context.Context, code string, p domain.Patch) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc orderDoc
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&doc, "code = ?", code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		merged, err := doc.Doc.ApplyPatch(p)
		if err != nil {
			return err
		}
		doc.Doc = *merged
		return tx.Save(&doc).Error
	})
	if err != nil {
		return err
	}
	s.publish(ctx, code)
	return nil
}

func (s *OrderStore) List(ctx context.Context) ([]*domain.Order, error) {
	var docs []orderDoc
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&docs).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Order, 0, len(docs))
	for i := range docs {
		o := docs[i].Doc
		out = append(out, &o)
	}
	return out, nil
}

// Subscribe re-reads the document after every published change, so callers
// always observe snapshots in write order.
func (s *OrderStore) Subscribe(ctx context.Context, code string, fn func(*domain.Order)) (func(), error) {
	if s.rdb == nil {
		return nil, errors.New("change notifications disabled: no redis client")
	}
	sub := s.rdb.Subscribe(ctx, channel(code))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	go func() {
		for range sub.Channel() {
			o, err := s.Read(ctx, code)
			if err != nil {
				log.Warn().Err(err).Str("order", code).Msg("re-read after change")
				continue
			}
			fn(o)
		}
	}()
	return func() { _ = sub.Close() }, nil
}

func (s *OrderStore) publish(ctx context.Context, code string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Publish(ctx, channel(code), code).Err(); err != nil {
		log.Warn().Err(err).Str("order", code).Msg("publish change")
	}
}

func (s *OrderStore) Migrate() error {
	return s.db.AutoMigrate(&orderDoc{})
}
