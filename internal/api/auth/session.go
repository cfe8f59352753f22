package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	authCookieName = "gymdesk_auth"
	authSessionTTL = 7 * 24 * time.Hour
)

var errAuthConfigMissing = errors.New("auth configuration missing")

// Claims is the signed cookie payload identifying a logged-in admin.
type Claims struct {
	AdminID   int64  `json:"admin_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"exp"`
}

type contextKey struct{}

// ContextWithAdmin attaches authenticated admin claims to the context.
func ContextWithAdmin(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// AdminFromContext returns the authenticated admin claims, or nil.
func AdminFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKey{}).(*Claims)
	return claims
}

func isSecureCookie() bool {
	return appConfig == nil || appConfig.App.Environment != "development"
}

// SetAuthCookie writes a signed session cookie for the admin.
func SetAuthCookie(w http.ResponseWriter, claims Claims) error {
	if w == nil {
		return errors.New("auth session requires response writer")
	}
	if appConfig == nil || appConfig.App.SecretKey == "" {
		return errAuthConfigMissing
	}

	claims.ExpiresAt = time.Now().Add(authSessionTTL).Unix()

	payload, err := json.Marshal(claims)
	if err != nil {
		return err
	}

	encodedPayload := base64.RawURLEncoding.EncodeToString(payload)
	signature, err := signPayload(encodedPayload)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    encodedPayload + "." + signature,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecureCookie(),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(claims.ExpiresAt, 0),
		MaxAge:   int(authSessionTTL.Seconds()),
	})

	return nil
}

// ClearAuthCookie expires the session cookie.
func ClearAuthCookie(w http.ResponseWriter) {
	if w == nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecureCookie(),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// AdminFromRequest verifies the session cookie or a bearer token and returns
// the claims. A missing cookie yields (nil, nil).
func AdminFromRequest(r *http.Request) (*Claims, error) {
	if r == nil {
		return nil, nil
	}

	token := bearerToken(r)
	if token == "" {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			if errors.Is(err, http.ErrNoCookie) {
				return nil, nil
			}
			return nil, err
		}
		token = cookie.Value
	}

	return verifyToken(token)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func verifyToken(token string) (*Claims, error) {
	if appConfig == nil || appConfig.App.SecretKey == "" {
		return nil, errAuthConfigMissing
	}

	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, errors.New("invalid auth token")
	}

	encodedPayload := parts[0]
	signature := parts[1]
	expectedSignature, err := signPayload(encodedPayload)
	if err != nil {
		return nil, err
	}

	if !hmac.Equal([]byte(signature), []byte(expectedSignature)) {
		return nil, errors.New("invalid auth token signature")
	}

	payload, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return nil, err
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, err
	}

	if claims.ExpiresAt <= time.Now().Unix() {
		return nil, errors.New("auth session expired")
	}

	return &claims, nil
}

func signPayload(payload string) (string, error) {
	if appConfig == nil || appConfig.App.SecretKey == "" {
		return "", errAuthConfigMissing
	}

	mac := hmac.New(sha256.New, []byte(appConfig.App.SecretKey))
	_, _ = mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
