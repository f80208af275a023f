package models

import "time"

type User struct {
	ID          int    `json:"id" example:"1"`                     // User ID
	Email       string `json:"email" example:"user@example.com"`   // User email
	FirstName   string `json:"FirstName" example:"John"`           // User first name
	LastName    string `json:"LastName" example:"Doe"`             // User last name
	AccountId   string `json:"AccountId" example:"1234567890"`     // Linked point account ID
	PhoneNumber string `json:"PhoneNumber" example:"+15550100123"` // User phone number
	Role        string `json:"role" example:"user"`                // user or consultant
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const (
	RoleUser       = "user"
	RoleConsultant = "consultant"
)
