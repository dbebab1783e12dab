package core

import "github.com/gin-gonic/gin"

// Identity is the authenticated principal installed for the duration of one
// request. It is created at token-validation time, read by downstream role
// checks, and discarded when the request ends; never cached or shared.
type Identity struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Enabled  bool     `json:"enabled"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the identity carries the named role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

const identityContextKey = "core.identity"

func installIdentity(c *gin.Context, id Identity) {
	c.Set(identityContextKey, id)
}

// IdentityFrom returns the identity installed by the token gate, if any.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
