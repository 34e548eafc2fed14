package authz

import (
	"net/http"
	"strings"

	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

// ExtractBearer extracts the credential from an "Authorization: Bearer <token>" header.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", model.Errorf(model.ErrUnauthorized, "missing Authorization header")
	}

	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", model.Errorf(model.ErrUnauthorized, "invalid Authorization header format, expected 'Bearer <token>'")
	}
	return parts[1], nil
}
