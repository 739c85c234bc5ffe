package testutil

import (
	"net/http"

	"clubgate/pkg/requestcontext"
)

// WithRequestID sets the request id that middleware would assign.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
