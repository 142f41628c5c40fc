package domain

import "time"

// User representa una cuenta registrada.
type User struct {
	ID                  string     `json:"_id"`
	Name                string     `json:"name"`
	FirstName           string     `json:"firstName"`
	LastName            string     `json:"lastName"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	ResetPasswordToken  string     `json:"-"`
	ResetPasswordExpire *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"createdAt"`
}
