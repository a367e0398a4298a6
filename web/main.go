package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"log"
	"net/http"

	"axiapac.com/devicesync/bootstrap"
	"axiapac.com/devicesync/config"
	"axiapac.com/devicesync/employees"
	"axiapac.com/devicesync/web/handlers"
	"axiapac.com/devicesync/web/middlewares"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("c", "", "config file path or ssm://parameter")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		log.Fatal(err)
	}
	rt, err := bootstrap.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	jwtSecret, err := signingKey(cfg)
	if err != nil {
		log.Fatal("Failed to decode JWT secret: ", err)
	}

	src, err := employees.Open(cfg.Employees, cfg.Debug)
	if err != nil {
		rt.Logger.Warn().Err(err).Msg("no employee source, push requests must carry employees")
		src = nil
	}

	r := newRouter(handlers.New(rt, src), jwtSecret)
	rt.Logger.Info().Str("addr", cfg.Web.Addr).Msg("listening")
	if err := r.Run(cfg.Web.Addr); err != nil {
		log.Fatal(err)
	}
}

// signingKey is the secret identity tokens are verified with: web.jwt_secret,
// else the agent's own signing_secret. Both are base64.
func signingKey(cfg *config.Config) ([]byte, error) {
	secret := cfg.Web.JWTSecret
	if secret == "" {
		secret = cfg.SigningSecret
	}
	if secret == "" {
		return nil, errors.New("web.jwt_secret is not set")
	}
	return base64.StdEncoding.DecodeString(secret)
}

func newRouter(h *handlers.Handler, jwtSecret []byte) *gin.Engine {
	r := gin.Default()
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	protected := r.Group("/api")
	protected.Use(middlewares.Authentication(jwtSecret))
	h.Register(protected)

	return r
}
