package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS returns a CORS middleware for the complaint UI
// AllowAllOrigins and AllowCredentials cannot both be true
func CORS() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PATCH", "HEAD", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-User-ID", "X-User-Role", "X-User-Name"}
	config.ExposeHeaders = []string{"Content-Disposition"}
	config.AllowCredentials = false

	return cors.New(config)
}
