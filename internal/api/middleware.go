/**
 * @description
 * This file contains custom middleware for the HTTP router. Middlewares are used
 * to process requests before they reach the final handler, covering bearer-token
 * authentication for internal and cron endpoints, JWT authentication for the
 * dashboard, and webhook signature verification.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256: Standard Go libraries for signature verification.
 * - github.com/golang-jwt/jwt/v5: HS256 JWT validation for dashboard access.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	webhookSignatureHeader = "X-Webhook-Signature"
	webhookTimestampHeader = "X-Webhook-Timestamp"

	// Webhooks older than this are rejected to limit replay.
	webhookTimestampTolerance = 5 * time.Minute
)

// BearerTokenMiddleware creates a middleware that requires a static bearer token.
// It is used for the internal admin endpoints and the cron trigger endpoints,
// which are called machine-to-machine with a shared secret.
func BearerTokenMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			if secret == "" || !hmac.Equal([]byte(token), []byte(secret)) {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DashboardAuthMiddleware creates a middleware that accepts either the internal
// API secret or a valid HS256 JWT issued for the dashboard. The dashboard signs
// short-lived tokens with the shared secret; service-to-service callers keep
// using the internal secret directly.
func DashboardAuthMiddleware(internalSecret, jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			if internalSecret != "" && hmac.Equal([]byte(token), []byte(internalSecret)) {
				next.ServeHTTP(w, r)
				return
			}

			if jwtSecret == "" {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(jwtSecret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !parsed.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader || token == "" {
		return "", false
	}
	return token, true
}

// verifyWebhookSignature checks the HMAC-SHA256 signature of an incoming
// webhook and, when a timestamp header is present, rejects deliveries outside
// the replay window. Both a bad signature and a stale timestamp fail the same
// way so a caller cannot distinguish which check rejected the request.
func verifyWebhookSignature(r *http.Request, body []byte, secret string) bool {
	if secret == "" {
		return false
	}

	signature := r.Header.Get(webhookSignatureHeader)
	if signature == "" {
		return false
	}

	timestampOK := true
	if timestamp := r.Header.Get(webhookTimestampHeader); timestamp != "" {
		ts, err := parseWebhookTimestamp(timestamp)
		if err != nil {
			timestampOK = false
		} else {
			drift := time.Since(ts)
			if drift < 0 {
				drift = -drift
			}
			timestampOK = drift <= webhookTimestampTolerance
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Evaluate both checks before returning so the timing profile is uniform.
	signatureOK := hmac.Equal([]byte(signature), []byte(expected))

	return signatureOK && timestampOK
}

// parseWebhookTimestamp accepts either an RFC3339 timestamp or a millisecond
// Unix epoch, which is what the provider sends depending on the event source.
func parseWebhookTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
