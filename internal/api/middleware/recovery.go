// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package middleware

import (
	"net/http"
	"runtime/debug"

	apierrors "github.com/lrbcloud/taskloop/internal/api/errors"
)

// RecoveryConfig configures the panic recovery middleware.
type RecoveryConfig struct {
	// Logger receives the panic report. Optional.
	Logger RequestLogger

	// PrintStack includes the stack trace in the log entry.
	PrintStack bool
}

// Recovery converts handler panics into 500 responses. http.ErrAbortHandler
// is re-raised so aborted streams keep their semantics.
func Recovery(config RecoveryConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				if config.Logger != nil {
					fields := []interface{}{
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", GetRequestID(r.Context()),
					}
					if config.PrintStack {
						fields = append(fields, "stack", string(debug.Stack()))
					}
					config.Logger.Error("handler panic", fields...)
				}

				apierrors.WriteErrorWithRequestID(w, apierrors.Internal(""), GetRequestID(r.Context()))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
