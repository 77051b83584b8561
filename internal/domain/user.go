package domain

import (
	"net/mail"
	"strings"
	"time"
)

// User roles.
const (
	RoleUser      = "user"
	RoleGuide     = "guide"
	RoleLeadGuide = "lead-guide"
	RoleAdmin     = "admin"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// User is an account. Inactive users are soft-deleted and never returned by
// reads.
type User struct {
	ID                string     `json:"id" bson:"_id"`
	Name              string     `json:"name" bson:"name"`
	Email             string     `json:"email" bson:"email"`
	Photo             string     `json:"photo,omitempty" bson:"photo,omitempty"`
	Role              string     `json:"role" bson:"role"`
	Password          string     `json:"-" bson:"password"`
	PasswordChangedAt *time.Time `json:"-" bson:"passwordChangedAt,omitempty"`
	Active            bool       `json:"-" bson:"active"`
	CreatedAt         time.Time  `json:"createdAt" bson:"createdAt"`
}

// UserSummary is the public projection of a user embedded in tours and
// reviews.
type UserSummary struct {
	ID    string `json:"id" bson:"_id"`
	Name  string `json:"name" bson:"name"`
	Email string `json:"email,omitempty" bson:"email,omitempty"`
	Photo string `json:"photo,omitempty" bson:"photo,omitempty"`
	Role  string `json:"role,omitempty" bson:"role,omitempty"`
}

// Summary returns the full public projection of u.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Photo: u.Photo, Role: u.Role}
}

// ChangedPasswordAfter reports whether the password changed after a token
// issued at iat. Comparison is at whole-second precision like JWT iat.
func (u User) ChangedPasswordAfter(iat time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return iat.Unix() < u.PasswordChangedAt.Unix()
}

// ValidRoles returns the accepted user roles.
func ValidRoles() []string {
	return []string{RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin}
}

// IsValidRole reports whether role is an accepted role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// ValidateUser normalizes and checks a user before it is written. The
// password must already be hashed.
func ValidateUser(u *User) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = RoleUser
	}

	v := newViolations()
	if u.Name == "" {
		v.add("name", "Please tell us your name!")
	}
	if u.Email == "" {
		v.add("email", "Please provide your email!")
	} else if addr, err := mail.ParseAddress(u.Email); err != nil || addr.Address != u.Email {
		v.add("email", "Please provide a valid email!")
	}
	if !IsValidRole(u.Role) {
		v.add("role", "Role is either: user, guide, lead-guide, admin.")
	}
	if u.Password == "" {
		v.add("password", "Please provide a password!")
	}
	return v.err()
}
