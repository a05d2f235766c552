package middleware

import (
	"context"
	"encoding/json"
	"net/http"
)

// Admin roles gate the privileged API surface. A super admin passes every
// gate; a scoped admin needs the named role.
const (
	RoleManageMarkets  = "CanManageMarkets"
	RoleSettle         = "CanSettle"
	RoleAdjustWallets  = "CanAdjustWallets"
	RoleReviewCashouts = "CanReviewCashouts"
	RoleViewLedger     = "CanViewLedger"
)

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

func RequireAdmin(adminStore AdminStore, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			isAdmin, isSuper, err := adminStore.IsAdmin(r.Context(), userID)
			if err != nil {
				deny(w, http.StatusInternalServerError, "unable to verify admin")
				return
			}
			if !isAdmin {
				deny(w, http.StatusForbidden, "admin privileges required")
				return
			}
			if isSuper || role == "" {
				next.ServeHTTP(w, r)
				return
			}
			hasRole, err := adminStore.HasRole(r.Context(), userID, role)
			if err != nil {
				deny(w, http.StatusInternalServerError, "unable to verify role")
				return
			}
			if !hasRole {
				deny(w, http.StatusForbidden, "missing required role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// deny writes the same error envelope the handlers use, so gate rejections
// look no different to API clients.
func deny(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
