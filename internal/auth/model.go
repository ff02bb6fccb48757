package auth

import "time"

type Operation string

const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
)

// Resource model names as stored in access_right.model.
const (
	ModelUser          = "user"
	ModelRole          = "role"
	ModelRight         = "right"
	ModelAdvertisement = "advertisement"
)

const AdminRoleName = "admin"

// Right is one permission tuple. The (Model, Write, Read, OnlyOwn) tuple is unique.
type Right struct {
	ID      int64  `json:"id"`
	Model   string `json:"model"`
	Write   bool   `json:"write"`
	Read    bool   `json:"read"`
	OnlyOwn bool   `json:"only_own"`
}

func (r Right) sameTuple(o Right) bool {
	return r.Model == o.Model && r.Write == o.Write && r.Read == o.Read && r.OnlyOwn == o.OnlyOwn
}

type Role struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Rights []Right `json:"rights"`
}

type User struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	PasswordDigest   string    `json:"-"`
	RegistrationTime time.Time `json:"registration_time"`
	Roles            []Role    `json:"roles"`
}

type Token struct {
	ID           int64
	Value        string
	UserID       int64
	CreationTime time.Time
}

// Valid reports whether the token may be used at now. Expiry is measured
// from creation only; the boundary itself is still valid.
func (t Token) Valid(now time.Time, ttl time.Duration) bool {
	return now.Sub(t.CreationTime) <= ttl
}

// Owner returns a pointer suitable for the owner argument of access checks.
func Owner(id int64) *int64 {
	return &id
}
