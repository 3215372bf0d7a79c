package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/marketplace-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

// idempotentRoutes lists the mutating endpoints that require a key. Patterns
// use path.Match syntax, so "*" spans exactly one path segment.
var idempotentRoutes = []struct {
	method  string
	pattern string
	ttl     time.Duration
}{
	{http.MethodPost, "/api/v1/coupons", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/wallet/bonus", defaultIdempotencyTTL},
	{http.MethodPatch, "/api/v1/wallet/withdrawals/*/process", defaultIdempotencyTTL},
	{http.MethodPatch, "/api/v1/wallet/withdrawals/*/decline", defaultIdempotencyTTL},
	{http.MethodPatch, "/api/v1/settlements/*/processed", defaultIdempotencyTTL},

	{http.MethodPost, "/api/v1/orders", criticalIdempotencyTTL},
	{http.MethodPatch, "/api/v1/orders/payment", criticalIdempotencyTTL},
	{http.MethodPatch, "/api/v1/orders/payment/admin", criticalIdempotencyTTL},
	{http.MethodPatch, "/api/v1/orders/refund/*", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/orders/settlestore", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/wallet/withdrawals", criticalIdempotencyTTL},
}

func routeTTL(method, urlPath string) (time.Duration, bool) {
	for _, route := range idempotentRoutes {
		if route.method != method {
			continue
		}
		if ok, _ := path.Match(route.pattern, urlPath); ok {
			return route.ttl, true
		}
	}
	return 0, false
}

// Idempotency makes the listed money routes safe to retry. The first request
// claims the key with a pending marker, so a concurrent duplicate gets 409.
// Completed responses below 500 are stored and replayed verbatim to later
// requests with the same key and body. A 5xx or 429 releases the key so the
// client can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeBadRequest, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintBody(body)
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)

			existing, err := lookupRecord(ctx, store, key)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency key"))
				return
			}
			if existing != nil {
				if err := existing.check(fingerprint); err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				existing.replay(w)
				return
			}

			claimed, err := store.SetNX(ctx, key, pendingRecord(fingerprint).encode(), ttl)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				responses.WriteError(ctx, logg, w, errInFlight)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// The client may be gone; the marker must still be resolved.
			settle(context.WithoutCancel(ctx), store, logg, key, ttl, completedRecord(fingerprint, capture))
		})
	}
}

// settle swaps the pending marker for the final record, or drops it when
// the outcome must not be replayed.
func settle(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, key string, ttl time.Duration, record idempotencyRecord) {
	if err := store.Del(ctx, key); err != nil {
		logIdempotencyFailure(ctx, logg, "release idempotency key", err)
		return
	}
	if !record.replayable() {
		return
	}
	if _, err := store.SetNX(ctx, key, record.encode(), ttl); err != nil {
		logIdempotencyFailure(ctx, logg, "persist idempotency record", err)
	}
}

func lookupRecord(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*idempotencyRecord, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(raw)
}

// idempotencyScope keeps keys from colliding across callers and endpoints.
func idempotencyScope(r *http.Request) string {
	return strings.Join([]string{
		UserIDFromContext(r.Context()),
		StoreIDFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}, "|")
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func logIdempotencyFailure(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg != nil {
		logg.Error(ctx, msg, err)
	}
}
