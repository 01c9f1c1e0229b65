package middleware

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORSConfig lists what cross-origin callers may do. An empty origin list or
// one containing "*" allows every origin without credentials.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         int
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposedHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:         3600,
	}
}

// CORS builds fiber's cors handler. Credentials are allowed only for an
// explicit origin list since browsers reject them alongside "*".
func CORS(config ...CORSConfig) fiber.Handler {
	cfg := DefaultCORSConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	c := cors.Config{
		AllowMethods:  strings.Join(cfg.AllowedMethods, ","),
		AllowHeaders:  strings.Join(cfg.AllowedHeaders, ","),
		ExposeHeaders: strings.Join(cfg.ExposedHeaders, ","),
		MaxAge:        cfg.MaxAge,
	}
	if len(cfg.AllowedOrigins) == 0 || slices.Contains(cfg.AllowedOrigins, "*") {
		c.AllowOrigins = "*"
	} else {
		c.AllowOrigins = strings.Join(cfg.AllowedOrigins, ",")
		c.AllowCredentials = true
	}
	return cors.New(c)
}
