package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/synopmap/synopmap/internal/api/models"
)

// Request body media types.
const (
	MediaTypeJSON      = "application/json"
	MediaTypeForm      = "application/x-www-form-urlencoded"
	MediaTypeMultipart = "multipart/form-data"
)

// ContentTypeJSON defaults the response Content-Type to application/json.
// Handlers that write other types set the header themselves.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", MediaTypeJSON)
		}
		next.ServeHTTP(w, r)
	})
}

// AllowContentTypes rejects POST, PUT and PATCH bodies whose media type is
// not one of types with a 415 problem. A missing Content-Type is accepted.
func AllowContentTypes(types ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[strings.ToLower(t)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
			default:
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType == "" {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, err := mime.ParseMediaType(contentType)
			if _, ok := allowed[mediaType]; err != nil || !ok {
				problem := models.NewUnsupportedMediaType(GetRequestID(r.Context()),
					"Content-Type must be one of: "+strings.Join(types, ", "))
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
