// Package request assigns every request an id and exposes it to handlers.
package request

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"clubgate/pkg/requestcontext"
)

// HeaderRequestID is read from the caller when present and always echoed back.
const HeaderRequestID = "X-Request-ID"

// incoming ids are accepted only when short and printable.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

// RequestID reuses a well-formed X-Request-ID from the caller or generates a
// UUID, stores it on the context and sets the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if !validRequestID.MatchString(requestID) {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the id assigned by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
