package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID          string    `bson:"_id" json:"_id"`
	FullName    string    `bson:"full_name" json:"fullName"`
	UserName    string    `bson:"user_name" json:"userName"`
	Email       string    `bson:"email" json:"email"`
	PhoneNumber string    `bson:"phone_number" json:"phoneNumber"`
	Password    string    `bson:"password" json:"-"`
	Role        Role      `bson:"role" json:"role"`
	IsActive    bool      `bson:"is_active" json:"isActive"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DisplayName renvoie le nom complet, à défaut le pseudo.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.UserName
}

type UserFilter struct {
	Search string
	Page   int
	Limit  int
}

func (f UserFilter) Skip() int {
	return (f.Page - 1) * f.Limit
}
