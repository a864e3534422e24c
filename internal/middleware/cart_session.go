// internal/middleware/cart_session.go
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const CartSessionHeader = "X-Cart-Session"

// CartSession makes sure every storefront request carries a guest cart id.
// A missing or malformed header gets a fresh id, echoed in the response.
func CartSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := c.GetHeader(CartSessionHeader)
		if _, err := uuid.Parse(sid); err != nil {
			sid = uuid.NewString()
		}
		c.Set("cart_session", sid)
		c.Header(CartSessionHeader, sid)
		c.Next()
	}
}
