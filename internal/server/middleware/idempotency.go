package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// IdempotencyHeader names the client-chosen request key.
const IdempotencyHeader = "Idempotency-Key"

// Idempotency rejects a repeated Idempotency-Key within ttl with 409. The
// key is claimed through locks so replicas sharing Redis agree. A request
// that fails with a 4xx or 5xx releases its key so the client may retry.
// Requests without the header pass through.
func Idempotency(locks domain.LockManager, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > 128 {
				writeError(w, http.StatusBadRequest, "idempotency key too long")
				return
			}

			release, err := locks.Acquire(r.Context(), "idem:"+r.URL.Path+":"+key, ttl)
			switch {
			case errors.Is(err, domain.ErrLockHeld):
				writeError(w, http.StatusConflict, "duplicate request")
				return
			case err != nil:
				logger.WarnContext(r.Context(), "middleware: idempotency store failed, allowing",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			if rw.status >= http.StatusBadRequest {
				release()
			}
		})
	}
}
