package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)

// MinPasswordLength is the minimum accepted password length at sign-up.
const MinPasswordLength = 8

// FieldError describes a single invalid form field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

// SignUpRequest carries the sign-up form.
type SignUpRequest struct {
	Name        string
	Email       string
	Password    string
	IsVendor    bool
	CompanyName string
	Location    string
	SocialLinks map[string]string
}

// Role returns the profile role implied by the vendor flag.
func (r SignUpRequest) Role() Role {
	if r.IsVendor {
		return RoleVendor
	}
	return RoleCustomer
}

// Normalize trims whitespace and lowercases the email.
func (r *SignUpRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.CompanyName = strings.TrimSpace(r.CompanyName)
	r.Location = strings.TrimSpace(r.Location)
}

// Validate applies the sign-up form rules. It returns the first failing field.
func (r SignUpRequest) Validate() *FieldError {
	if strings.TrimSpace(r.Name) == "" {
		return &FieldError{Field: "name", Message: "Name is required"}
	}
	if fe := validateEmail(r.Email); fe != nil {
		return fe
	}
	if r.Password == "" {
		return &FieldError{Field: "password", Message: "Password is required"}
	}
	if utf8.RuneCountInString(r.Password) < MinPasswordLength {
		return &FieldError{Field: "password", Message: "Password must be at least 8 characters"}
	}
	if r.IsVendor {
		if strings.TrimSpace(r.CompanyName) == "" {
			return &FieldError{Field: "company_name", Message: "Company name is required"}
		}
		if strings.TrimSpace(r.Location) == "" {
			return &FieldError{Field: "location", Message: "Location is required"}
		}
	}
	return nil
}

// LoginRequest carries the login form.
type LoginRequest struct {
	Email    string
	Password string
}

// Normalize trims whitespace and lowercases the email.
func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// Validate applies the login form rules.
func (r LoginRequest) Validate() *FieldError {
	if fe := validateEmail(r.Email); fe != nil {
		return fe
	}
	if r.Password == "" {
		return &FieldError{Field: "password", Message: "Password is required"}
	}
	return nil
}

func validateEmail(email string) *FieldError {
	email = strings.TrimSpace(email)
	if email == "" {
		return &FieldError{Field: "email", Message: "Email is required"}
	}
	if !emailPattern.MatchString(email) {
		return &FieldError{Field: "email", Message: "Invalid email address"}
	}
	return nil
}
