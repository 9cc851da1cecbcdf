// Package middleware содержит HTTP middleware кассового сервиса.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const sessionIDKey contextKey = "sessionID"

const (
	sessionCookieName = "pos_session"
	sessionCookieTTL  = 24 * time.Hour
)

// SessionMiddleware связывает запрос с кассовой сессией по подписанному cookie.
type SessionMiddleware struct {
	secretKey []byte
}

// NewSessionMiddleware создаёт middleware с ключом подписи. Пустой secret заменяется случайным ключом,
// и cookie перестают действовать после перезапуска.
func NewSessionMiddleware(secret string) *SessionMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("pos-session-fallback-key")
		}
	}

	return &SessionMiddleware{secretKey: key}
}

// Middleware проверяет cookie сессии и кладёт идентификатор сессии в контекст запроса.
func (m *SessionMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		sessionID, ok := m.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookie выдаёт подписанный cookie для сессии.
func (m *SessionMiddleware) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID + "." + m.sign(sessionID),
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie удаляет cookie закрытой сессии.
func (m *SessionMiddleware) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *SessionMiddleware) sign(sessionID string) string {
	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *SessionMiddleware) parseCookie(value string) (string, bool) {
	sessionID, signature, found := strings.Cut(value, ".")
	if !found || sessionID == "" {
		return "", false
	}

	if !hmac.Equal([]byte(signature), []byte(m.sign(sessionID))) {
		return "", false
	}

	return sessionID, true
}

// GetSessionIDFromContext извлекает идентификатор кассовой сессии из контекста запроса.
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}
