package user

import "gorm.io/gorm"

type Repository interface {
	FindByGoogleID(googleID string) (*User, error)
	FindByPhone(phone string) (*User, error)
	FindByID(id string) (*User, error)
	CreateUser(user *User) error
	SetPinHash(id string, pinHash string) error
	SetPhone(id string, phone string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByGoogleID(googleID string) (*User, error) {
	var user User
	err := r.db.Where("google_id = ?", googleID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindByPhone(phone string) (*User, error) {
	var user User
	err := r.db.Where("phone = ?", phone).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindByID(id string) (*User, error) {
	var user User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) CreateUser(user *User) error {
	return r.db.Create(user).Error
}

func (r *repository) SetPinHash(id string, pinHash string) error {
	return r.db.Model(&User{}).Where("id = ?", id).Update("pin_hash", pinHash).Error
}

func (r *repository) SetPhone(id string, phone string) error {
	return r.db.Model(&User{}).Where("id = ?", id).Update("phone", phone).Error
}
