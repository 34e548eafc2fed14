package api

import (
	"net/http"

	"github.com/villetakanen/pelilauta-17-sub000/internal/authz"
)

// principal resolves the caller from the bearer credential.
func (h *ThreadHandler) principal(r *http.Request) (authz.Principal, error) {
	token, err := authz.ExtractBearer(r)
	if err != nil {
		return authz.Principal{}, err
	}
	return h.gate.Authenticate(r.Context(), token)
}
