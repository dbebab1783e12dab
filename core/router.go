package core

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// NewRouter constructs the Gin engine with the middleware chain and the
// auth-relevant routes wired. Order matters: the captcha gate must run
// before the token gate so sensitive POSTs are challenged even when they
// carry no token.
func NewRouter(cfg Config, codec *TokenCodec, users UserDirectory, encoder PasswordEncoder, captcha *CaptchaService, mail *MailService) *gin.Engine {
	r := gin.Default()

	r.Use(CaptchaGate(captcha, cfg.CaptchaGatedPaths))
	r.Use(TokenGate(codec, users))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.GET("/captcha", func(c *gin.Context) {
			transactionID := c.Query("uuid")
			typeName := c.Query("business")
			if strings.TrimSpace(transactionID) == "" || strings.TrimSpace(typeName) == "" {
				respondError(c, http.StatusBadRequest, "uuid and business are required")
				return
			}
			payload, err := captcha.Issue(c.Request.Context(), transactionID, typeName)
			if err != nil {
				respondFailure(c, err)
				return
			}
			respondOK(c, gin.H{"captcha": payload})
		})

		api.POST("/auth/login", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "invalid json")
				return
			}
			if strings.TrimSpace(req.Username) == "" || req.Password == "" {
				respondError(c, http.StatusBadRequest, "username and password are required")
				return
			}

			record, err := users.FindByUsername(c.Request.Context(), req.Username)
			if err != nil || !encoder.Matches(record.PasswordHash, req.Password) {
				// Same message for unknown user and wrong password.
				respondError(c, http.StatusUnauthorized, "invalid username or password")
				return
			}
			if !record.Enabled {
				respondFailure(c, ErrAccountDisabled)
				return
			}

			token, err := codec.Issue(record.Username)
			if err != nil {
				respondFailure(c, err)
				return
			}
			respondOK(c, gin.H{"token": token, "username": record.Username, "roles": record.Roles})
		})

		api.POST("/auth/refresh", func(c *gin.Context) {
			header := c.GetHeader("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				respondError(c, http.StatusBadRequest, "invalid token format")
				return
			}
			newToken, err := codec.Refresh(strings.TrimSpace(header[len(bearerPrefix):]))
			if err != nil {
				respondFailure(c, err)
				return
			}
			respondOK(c, gin.H{"token": newToken})
		})

		api.POST("/mail/send", func(c *gin.Context) {
			var req struct {
				Email string `json:"email" form:"email"`
			}
			if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
				respondError(c, http.StatusBadRequest, "email is required")
				return
			}
			typeName := c.GetHeader(headerBusinessType)
			if typeName == "" {
				respondError(c, http.StatusBadRequest, "business type header required")
				return
			}
			if err := mail.Send(c.Request.Context(), req.Email, typeName); err != nil {
				respondFailure(c, err)
				return
			}
			respondOK(c, "verification code sent")
		})

		api.GET("/users/me", RequireAuth(), func(c *gin.Context) {
			identity, _ := IdentityFrom(c)
			respondOK(c, identity)
		})

		admin := api.Group("/admin", RequireRole("ROLE_admin"))
		{
			admin.GET("/ping", func(c *gin.Context) {
				respondOK(c, "pong")
			})
		}
	}

	return r
}
