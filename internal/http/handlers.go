package http

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// baseURL devuelve la URL publica configurada o, si no hay, la derivada de la request.
// Se usa para armar enlaces de verificacion, reset y votacion.
func baseURL(c *gin.Context, configured string) string {
	if configured != "" {
		return configured
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme, _, _ = strings.Cut(proto, ",")
		scheme = strings.TrimSpace(scheme)
	}
	return scheme + "://" + c.Request.Host
}

// tokenParam toma el token del path, del body o de ?token=, en ese orden.
func tokenParam(c *gin.Context, fromBody string) string {
	if t := c.Param("token"); t != "" {
		return t
	}
	if fromBody != "" {
		return fromBody
	}
	return c.Query("token")
}
