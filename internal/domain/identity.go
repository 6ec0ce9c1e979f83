package domain

// Identity is the authenticated caller as resolved from a bearer token.
type Identity struct {
	UserID  int64
	IsAdmin bool
}
