package contacts

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no contact matches the lookup
	ErrNotFound = errors.New("contact not found")

	// ErrStoreUnavailable marks infrastructure-level store failures. The
	// runner treats these as batch-fatal, unlike per-row write failures.
	ErrStoreUnavailable = errors.New("contact store unavailable")
)

// Store is the contact-store collaborator consumed by reconciliation.
// Every call is atomic; field maps are keyed by canonical field key.
type Store interface {
	FindByEmail(email string) (string, error)
	Create(fields map[string]string) (string, error)
	Update(id string, fields map[string]string) error
}

// GormStore is the database-backed Store implementation
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store over the given database handle
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// FindByEmail returns the id of the oldest contact with the given email, so
// repeated updates converge on the first-created record even when the
// create_duplicate policy has produced several rows for one identity.
func (s *GormStore) FindByEmail(email string) (string, error) {
	var contact ContactModel
	err := s.db.Select("id").
		Where("email = ?", email).
		Order("created_at ASC").
		First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", s.wrap("find contact", err)
	}
	return contact.ID, nil
}

// Create inserts a new contact built from the mapped fields
func (s *GormStore) Create(fields map[string]string) (string, error) {
	now := time.Now()
	contact := ContactModel{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	contact.applyFields(fields)

	if err := s.db.Create(&contact).Error; err != nil {
		return "", s.wrap("create contact", err)
	}
	return contact.ID, nil
}

// Update merges the mapped fields into an existing contact. Fields absent
// from the map are left untouched.
func (s *GormStore) Update(id string, fields map[string]string) error {
	updates := make(map[string]interface{}, len(fields)+1)
	for key, value := range fields {
		if column, ok := columnFor(key); ok {
			updates[column] = value
		}
	}
	updates["updated_at"] = time.Now()

	result := s.db.Model(&ContactModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return s.wrap("update contact", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// wrap classifies database errors: constraint violations stay row-scoped,
// anything else means the store itself is unhealthy
func (s *GormStore) wrap(op string, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "constraint") {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}
