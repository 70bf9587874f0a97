package testutil

import (
	"net/http"
	"time"

	"haven/pkg/requestcontext"
)

// WithActor places an authenticated actor on the request context, as the
// identity middleware would.
func WithActor(req *http.Request, userID, role string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), requestcontext.Actor{
		UserID: userID,
		Email:  userID + "@clinic.example",
		Role:   role,
	})
	return req.WithContext(ctx)
}

// WithRequestTime pins the request clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
