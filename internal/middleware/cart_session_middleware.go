package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CartSessionHeader = "X-Cart-Session"
	CartSessionKey    = "cart_session"
)

// CartSession resolves the guest cart session from the X-Cart-Session header
// or the session cookie, issuing a new one when neither carries a valid id.
// The id is echoed back in both places.
func CartSession(cookieName string, maxAge time.Duration, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader(CartSessionHeader)
		if !validSessionID(sessionID) {
			sessionID, _ = c.Cookie(cookieName)
		}
		if !validSessionID(sessionID) {
			sessionID = uuid.NewString()
			GetLoggerFromContext(c).Debug("Issued cart session", map[string]interface{}{
				"session": sessionID,
			})
		}

		c.Set(CartSessionKey, sessionID)
		c.Header(CartSessionHeader, sessionID)
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookieName, sessionID, int(maxAge.Seconds()), "/", "", secure, true)

		c.Next()
	}
}

func validSessionID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func GetCartSession(c *gin.Context) string {
	return c.GetString(CartSessionKey)
}
