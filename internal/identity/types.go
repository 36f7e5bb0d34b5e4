package identity

import "time"

// Identity is the verified caller derived from a bearer credential. It lives for one request.
type Identity struct {
	UID           string    `json:"uid"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	DisplayName   string    `json:"displayName,omitempty"`
	IssuedAt      time.Time `json:"-"`
}

// User is the identity provider's account record, as returned to profile and admin callers.
type User struct {
	UID              string     `json:"uid"`
	Email            string     `json:"email"`
	EmailVerified    bool       `json:"emailVerified"`
	DisplayName      string     `json:"displayName,omitempty"`
	PhotoURL         string     `json:"photoURL,omitempty"`
	Disabled         bool       `json:"disabled"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
	LastSignInAt     *time.Time `json:"lastSignInAt,omitempty"`
	TokensValidAfter *time.Time `json:"tokensValidAfter,omitempty"`
}

// ProfileUpdate carries the self-service profile fields. Nil means "leave unchanged".
type ProfileUpdate struct {
	DisplayName *string `json:"displayName,omitempty" validate:"omitempty,max=100"`
	PhotoURL    *string `json:"photoURL,omitempty" validate:"omitempty,url"`
}

// Empty reports whether no field is set.
func (u ProfileUpdate) Empty() bool {
	return u.DisplayName == nil && u.PhotoURL == nil
}

// Apply copies the set fields onto user.
func (u ProfileUpdate) Apply(user *User) {
	if u.DisplayName != nil {
		user.DisplayName = *u.DisplayName
	}
	if u.PhotoURL != nil {
		user.PhotoURL = *u.PhotoURL
	}
}

// UserPage is one slice of a directory listing.
type UserPage struct {
	Users      []User
	NextOffset int
	HasMore    bool
}
