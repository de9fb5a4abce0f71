package middleware

import (
	"net"
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	// AllowOrigins lists extra origins allowed besides loopback ones
	AllowOrigins []string
	// AllowLoopback admits any origin whose host is a loopback address or
	// localhost, whatever the scheme (the embedding shell uses custom ones).
	AllowLoopback bool
	AllowMethods  []string
	AllowHeaders  []string
	MaxAge        time.Duration
}

// DefaultCORSConfig returns the bridge CORS configuration: loopback origins
// only.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowLoopback: true,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept",
			"Origin",
			"Cache-Control",
		},
		MaxAge: 12 * time.Hour,
	}
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.AllowOrigins))
	for _, origin := range cfg.AllowOrigins {
		allowed[origin] = true
	}

	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowed[origin] || (cfg.AllowLoopback && isLoopbackOrigin(origin))
		},
		AllowMethods: cfg.AllowMethods,
		AllowHeaders: cfg.AllowHeaders,
		MaxAge:       cfg.MaxAge,
	})
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
