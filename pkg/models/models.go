package models

import (
	"time"
)

const (
	RoleSuperUser  = "SUPER_USER"
	RoleNormalUser = "NORMAL_USER"
)

type User struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserName     string    `gorm:"size:80;not null" json:"userName"`
	Email        string    `gorm:"size:120;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         string    `gorm:"size:20;not null;default:'NORMAL_USER'" json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:80;not null;uniqueIndex" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Book.Available is only written by the inventory ledger.
type Book struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	Title         string    `gorm:"not null;uniqueIndex" json:"title"`
	Author        string    `json:"author"`
	Description   string    `json:"description"`
	Quantity      int       `gorm:"not null;check:quantity >= 0" json:"quantity"`
	Available     int       `gorm:"not null;check:available >= 0 AND available <= quantity" json:"available"`
	PublishedDate time.Time `json:"publishedDate"`
	CategoryID    uint      `json:"categoryId"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	Category Category `gorm:"foreignKey:CategoryID" json:"category"`
}

type BorrowingRequest struct {
	ID          uint      `gorm:"primaryKey"`
	RequestorID string    `gorm:"type:uuid;not null;index"`
	ApproverID  *string   `gorm:"type:uuid"`
	DateRequest time.Time `gorm:"not null;index"`
	DateExpired time.Time `gorm:"not null"`
	Status      Status    `gorm:"not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Requestor User                     `gorm:"foreignKey:RequestorID"`
	Approver  *User                    `gorm:"foreignKey:ApproverID"`
	Details   []BorrowingRequestDetail `gorm:"foreignKey:BorrowingRequestID;constraint:OnDelete:CASCADE"`
}

type BorrowingRequestDetail struct {
	ID                 uint   `gorm:"primaryKey"`
	BorrowingRequestID uint   `gorm:"not null;index"`
	BookID             string `gorm:"type:uuid;not null;index"`
	CreatedAt          time.Time

	Book Book `gorm:"foreignKey:BookID"`
}

// All lists every table in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Category{},
		&Book{},
		&BorrowingRequest{},
		&BorrowingRequestDetail{},
	}
}
