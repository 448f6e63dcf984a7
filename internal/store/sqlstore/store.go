// Package sqlstore persists disagreements in a SQL database through gorm. Each
// disagreement is one row holding the JSON document plus the columns needed for listing
// and optimistic concurrency.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/disagreement-ai/mediation/backend/internal/logging"
	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
)

type disagreementRow struct {
	ID           string `gorm:"primaryKey;size:64"`
	Title        string `gorm:"size:256"`
	Status       string `gorm:"size:32;index"`
	CreatedBy    string `gorm:"size:128;index"`
	Document     string `gorm:"type:text"`
	Version      int64  `gorm:"not null"`
	Participants int
	Messages     int
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index"`
}

func (disagreementRow) TableName() string {
	return "disagreements"
}

// Store implements dispute.Store on top of gorm.
type Store struct {
	db *gorm.DB
}

// Open connects to the database and migrates the schema.
func Open(driver, dsn string, log *logging.Logger) (*Store, error) {
	gormDB, err := OpenGorm(driver, dsn, log)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}

	store := New(gormDB)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

// New wraps an existing connection without migrating.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&disagreementRow{}); err != nil {
		return fmt.Errorf("migrate disagreements: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, session *dispute.Session) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&disagreementRow{}).Where("id = ?", session.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("check disagreement: %w", err)
		}
		if count > 0 {
			return dispute.ErrAlreadyExists
		}

		stored := session.Clone()
		stored.Version = 1
		row, err := rowFromSession(stored)
		if err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create disagreement: %w", err)
		}
		session.Version = 1
		return nil
	})
}

func (s *Store) Load(ctx context.Context, id string) (*dispute.Session, error) {
	var row disagreementRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, dispute.ErrNotFound
		}
		return nil, fmt.Errorf("get disagreement: %w", err)
	}
	return row.toSession()
}

// Save writes the session only if the stored version still matches.
func (s *Store) Save(ctx context.Context, session *dispute.Session) error {
	next := session.Clone()
	next.Version = session.Version + 1
	row, err := rowFromSession(next)
	if err != nil {
		return err
	}

	res := s.db.WithContext(ctx).
		Model(&disagreementRow{}).
		Where("id = ? AND version = ?", session.ID, session.Version).
		Updates(map[string]any{
			"title":        row.Title,
			"status":       row.Status,
			"document":     row.Document,
			"version":      row.Version,
			"participants": row.Participants,
			"messages":     row.Messages,
			"updated_at":   row.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update disagreement: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&disagreementRow{}).Where("id = ?", session.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("check disagreement: %w", err)
		}
		if count == 0 {
			return dispute.ErrNotFound
		}
		return dispute.ErrConflict
	}

	session.Version = next.Version
	return nil
}

func (s *Store) List(ctx context.Context, limit int) ([]*dispute.Session, error) {
	query := s.db.WithContext(ctx).Model(&disagreementRow{}).Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []disagreementRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list disagreements: %w", err)
	}

	out := make([]*dispute.Session, 0, len(rows))
	for _, row := range rows {
		session, err := row.toSession()
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

func rowFromSession(session *dispute.Session) (disagreementRow, error) {
	doc, err := json.Marshal(session)
	if err != nil {
		return disagreementRow{}, fmt.Errorf("marshal disagreement: %w", err)
	}
	return disagreementRow{
		ID:           session.ID,
		Title:        session.Title,
		Status:       string(session.Status),
		CreatedBy:    session.CreatedBy,
		Document:     string(doc),
		Version:      session.Version,
		Participants: len(session.Participants),
		Messages:     len(session.Messages),
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
	}, nil
}

func (r disagreementRow) toSession() (*dispute.Session, error) {
	var session dispute.Session
	if err := json.Unmarshal([]byte(r.Document), &session); err != nil {
		return nil, fmt.Errorf("decode disagreement %s: %w", r.ID, err)
	}
	session.Version = r.Version
	if session.Participants == nil {
		session.Participants = []dispute.Participant{}
	}
	if session.Messages == nil {
		session.Messages = []dispute.Message{}
	}
	return &session, nil
}
