package core

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Request metadata headers carrying the challenge binding. The frontend's
// route interceptor sets both before hitting a sensitive endpoint.
const (
	headerTransactionID = "X-UUID"
	headerBusinessType  = "X-Business-Type"
)

const bearerPrefix = "Bearer "

// CaptchaGate intercepts POSTs on the configured sensitive path prefixes and
// validates the challenge bound to the request's transaction id before the
// rest of the chain runs. Any failure short-circuits with a 400-class
// envelope; the downstream handler never executes.
func CaptchaGate(captcha *CaptchaService, pathPrefixes []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost || !hasPrefixIn(c.Request.URL.Path, pathPrefixes) {
			c.Next()
			return
		}

		transactionID := c.GetHeader(headerTransactionID)
		typeName := c.GetHeader(headerBusinessType)
		if transactionID == "" || typeName == "" {
			respondError(c, http.StatusBadRequest, "captcha metadata missing")
			c.Abort()
			return
		}

		submitted := c.Query("captcha")
		if submitted == "" {
			submitted = c.PostForm("captcha")
		}
		if submitted == "" {
			respondError(c, http.StatusBadRequest, "captcha code required")
			c.Abort()
			return
		}

		if err := captcha.Validate(c.Request.Context(), transactionID, typeName, submitted); err != nil {
			respondFailure(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func hasPrefixIn(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// TokenGate parses the Authorization header on every request. A missing
// bearer token passes through unauthenticated; downstream RequireAuth or
// RequireRole rejects where authentication is mandatory. A present token is
// verified and resolved to a full identity, installed for this request only.
func TokenGate(codec *TokenCodec, users UserDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			c.Next()
			return
		}
		token := strings.TrimSpace(header[len(bearerPrefix):])

		subject, err := codec.Verify(token)
		if err != nil {
			respondFailure(c, err)
			c.Abort()
			return
		}

		record, err := users.FindByUsername(c.Request.Context(), subject)
		if err != nil {
			respondFailure(c, err)
			c.Abort()
			return
		}
		if !record.Enabled {
			respondFailure(c, ErrAccountDisabled)
			c.Abort()
			return
		}

		installIdentity(c, record.Identity())
		c.Next()
	}
}

// RequireAuth rejects requests that did not authenticate.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := IdentityFrom(c); !ok {
			respondError(c, http.StatusUnauthorized, "authentication required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole rejects requests whose identity lacks the named role.
// Unauthenticated requests get 401; authenticated ones without the role 403.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "authentication required")
			c.Abort()
			return
		}
		if !identity.HasRole(role) {
			respondFailure(c, ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
