package model

import (
	"time"

	"github.com/google/uuid"
)

// UserRole: "admin" manages the shared catalogue (supply chains, claims,
// themes); "member" acts on behalf of its node.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)

// User is a person acting for one node. Every token carries (user, node).
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	NodeID       uuid.UUID `gorm:"type:uuid;not null;index"`
	Email        string    `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	Role         UserRole  `gorm:"type:varchar(20);not null;default:'member'"`
	Active       bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Node *Node `gorm:"foreignKey:NodeID"`
}
