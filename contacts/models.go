package contacts

import (
	"time"

	"gorm.io/gorm"
)

// ContactModel represents a stored contact.
//
// Email is indexed but deliberately not unique: the create_duplicate policy
// is documented user-facing behavior and intentionally produces multiple
// rows sharing an identity value.
type ContactModel struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Email     string    `gorm:"index;not null" json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Company   string    `json:"company"`
	Phones    string    `json:"phones"` // semicolon-joined normalized numbers
	City      string    `json:"city"`
	Country   string    `json:"country"`
	Zip       string    `json:"zip"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ContactModel) TableName() string { return "contacts" }

// AutoMigrate creates the contacts table
func AutoMigrate(db *gorm.DB) {
	db.AutoMigrate(&ContactModel{})
}

// columnFor translates a canonical field key to its database column
func columnFor(key string) (string, bool) {
	switch key {
	case "email":
		return "email", true
	case "firstname":
		return "first_name", true
	case "lastname":
		return "last_name", true
	case "company":
		return "company", true
	case "phone":
		return "phones", true
	case "city":
		return "city", true
	case "country":
		return "country", true
	case "zip":
		return "zip", true
	}
	return "", false
}

func (c *ContactModel) applyFields(fields map[string]string) {
	for key, value := range fields {
		switch key {
		case "email":
			c.Email = value
		case "firstname":
			c.FirstName = value
		case "lastname":
			c.LastName = value
		case "company":
			c.Company = value
		case "phone":
			c.Phones = value
		case "city":
			c.City = value
		case "country":
			c.Country = value
		case "zip":
			c.Zip = value
		}
	}
}
