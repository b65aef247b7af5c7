package user

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePassenger  Role = "passenger"
	RoleDriver     Role = "driver"
	RoleSaccoAdmin Role = "sacco_admin"
	RoleAdmin      Role = "admin"
)

// User carries the wallet balance directly; every balance mutation goes
// through the wallet repository together with a ledger row. Phone stays
// NULL until the user binds an M-Pesa number; a nullable column keeps the
// unique index from colliding on accounts that have not bound one.
type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	Name      string     `json:"name"`
	Email     string     `gorm:"uniqueIndex" json:"email"`
	Phone     *string    `gorm:"uniqueIndex" json:"phone,omitempty"`
	GoogleID  string     `gorm:"uniqueIndex" json:"google_id"`
	Role      Role       `gorm:"not null;default:passenger" json:"role"`
	SaccoID   *uuid.UUID `gorm:"type:uuid" json:"sacco_id,omitempty"`
	Balance   int64      `gorm:"not null;default:0" json:"balance"`
	PinHash   string     `gorm:"column:pin_hash" json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
