package http

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const credentialName = "token"

// ResolveCredential devuelve el primer candidato no vacio.
func ResolveCredential(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c, true
		}
	}
	return "", false
}

// requestCredential busca el token en el header Authorization, la cookie y el
// query param, en ese orden. EventSource no puede mandar headers, por eso el
// query param. Un "Bearer" sin valor cuenta como ausente y se sigue con la
// cookie.
func requestCredential(c *gin.Context) (string, bool) {
	cookie, _ := c.Cookie(credentialName)
	return ResolveCredential(bearerToken(c.GetHeader("Authorization")), cookie, c.Query(credentialName))
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}
