package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sbk2k1/sbk-assistant/internal/pkg/errcode"
	"github.com/sbk2k1/sbk-assistant/internal/pkg/jwt"
	"github.com/sbk2k1/sbk-assistant/internal/pkg/response"
)

const ContextSubjectKey = "subject"

// JWTAuth requires a bearer token signed with secret and carrying scope.
func JWTAuth(secret []byte, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Abort(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "missing authorization")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Abort(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "invalid authorization")
			return
		}
		claims, err := jwt.ParseToken(parts[1], secret)
		if err != nil {
			logutil.GetLogger(c.Request.Context()).Warn("reject token", zap.String("path", c.Request.URL.Path), zap.Error(err))
			response.Abort(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "invalid token")
			return
		}
		if scope != "" && claims.Scope != scope {
			response.Abort(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "token scope mismatch")
			return
		}
		c.Set(ContextSubjectKey, claims.Subject)
		c.Next()
	}
}
