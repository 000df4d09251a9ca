package repository

import (
	"strings"

	"github.com/eduka-ec/certflow/app/models"
	"gorm.io/gorm"
)

// personRepository implements the PersonRepository interface
type personRepository struct {
	db *gorm.DB
}

// NewPersonRepository creates a new person repository instance
func NewPersonRepository(db *gorm.DB) PersonRepository {
	return &personRepository{db: db}
}

func (r *personRepository) Create(person *models.Person) error {
	return r.db.Create(person).Error
}

func (r *personRepository) GetByID(id uint) (*models.Person, error) {
	var person models.Person
	if err := r.db.First(&person, id).Error; err != nil {
		return nil, err
	}
	return &person, nil
}

func (r *personRepository) GetByNationalID(nationalID string) (*models.Person, error) {
	trimmed := strings.TrimSpace(nationalID)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var person models.Person
	if err := r.db.Where("national_id = ?", trimmed).First(&person).Error; err != nil {
		return nil, err
	}
	return &person, nil
}

func (r *personRepository) Update(person *models.Person) error {
	return r.db.Save(person).Error
}

func (r *personRepository) SetExternalCustomerID(id uint, customerID string) error {
	return r.db.Model(&models.Person{}).Where("id = ?", id).
		Update("external_customer_id", customerID).Error
}
