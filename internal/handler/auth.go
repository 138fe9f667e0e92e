package handler

import (
	"net/http"

	"github.com/pavelanni/learnpath/internal/auth"
	"github.com/pavelanni/learnpath/internal/model"
)

// requireAuth is middleware that resolves the bearer token to a user.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			h.writeError(w, r, model.ErrUnauthenticated)
			return
		}
		user, err := h.verifier.Verify(token)
		if err != nil || user == nil {
			h.writeError(w, r, model.ErrUnauthenticated)
			return
		}
		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
