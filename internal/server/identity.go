package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/p-n-ai/pai-academy/internal/progress"
)

// Headers set by the upstream auth proxy.
const (
	HeaderUserID        = "X-User-ID"
	HeaderEmailVerified = "X-User-Email-Verified"
	HeaderUserRole      = "X-User-Role"
)

const roleAdmin = "admin"

type learnerKey struct{}

// withLearner resolves the caller from proxy headers. Missing headers yield
// an anonymous learner; the engine decides what that may see.
func withLearner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := progress.Learner{
			ID:            strings.TrimSpace(r.Header.Get(HeaderUserID)),
			EmailVerified: headerBool(r.Header.Get(HeaderEmailVerified)),
			Admin:         strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderUserRole)), roleAdmin),
		}
		ctx := context.WithValue(r.Context(), learnerKey{}, l)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func learnerFrom(ctx context.Context) progress.Learner {
	l, _ := ctx.Value(learnerKey{}).(progress.Learner)
	return l
}

func headerBool(v string) bool {
	v = strings.TrimSpace(v)
	return strings.EqualFold(v, "true") || v == "1"
}
