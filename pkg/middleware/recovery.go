package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recoverer turns a panic into a JSON 500. Development mode includes the
// panic value and stack in the body.
func Recoverer(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				stack := string(debug.Stack())
				slog.Error("panic recovered",
					"error", rvr,
					"path", r.URL.Path,
					"method", r.Method,
				)

				body := errorBody{Error: "INTERNAL", Message: "Internal Server Error"}
				if env == "development" {
					body.Detail = fmt.Sprintf("%v\n%s", rvr, stack)
				}
				writeErrorBody(w, http.StatusInternalServerError, body)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
