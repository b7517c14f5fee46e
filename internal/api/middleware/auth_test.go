package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testKeyID  = "test-key-sp"
	testIssuer = "https://idp.test/realms/portal"
)

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(jwks)
	return data
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey, issuer string) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewJWTAuthWithKeyfunc(kf, issuer, testLogger())
}

type tokenOpts struct {
	sub     string
	issuer  string
	expired bool
}

func generateToken(t *testing.T, key *rsa.PrivateKey, o tokenOpts) string {
	t.Helper()

	exp := time.Now().Add(time.Hour)
	if o.expired {
		exp = time.Now().Add(-time.Hour)
	}
	if o.issuer == "" {
		o.issuer = testIssuer
	}

	claims := jwt.MapClaims{
		"iss":                o.issuer,
		"exp":                jwt.NewNumericDate(exp),
		"iat":                jwt.NewNumericDate(time.Now()),
		"preferred_username": "alice",
		"email":              "alice@example.com",
	}
	if o.sub != "" {
		claims["sub"] = o.sub
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return tokenStr
}

// serve пропускает запрос через middleware и возвращает ответ и claims, увиденные handler.
func serve(auth *JWTAuth, header string) (*httptest.ResponseRecorder, *AuthClaims) {
	var seen *AuthClaims
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestJWTAuth_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key, testIssuer)

	rec, claims := serve(auth, "Bearer "+generateToken(t, key, tokenOpts{sub: "student-alice"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	if claims == nil {
		t.Fatal("claims не помещены в контекст")
	}
	if claims.Subject != "student-alice" || claims.Email != "alice@example.com" || claims.PreferredUsername != "alice" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJWTAuth_Rejected(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	auth := newTestJWTAuth(t, key, testIssuer)

	tests := []struct {
		name   string
		header string
	}{
		{"без заголовка", ""},
		{"не Bearer", "Basic dXNlcjpwYXNz"},
		{"пустой токен", "Bearer "},
		{"мусор", "Bearer not-a-jwt"},
		{"просроченный", "Bearer " + generateToken(t, key, tokenOpts{sub: "s", expired: true})},
		{"чужой ключ", "Bearer " + generateToken(t, otherKey, tokenOpts{sub: "s"})},
		{"чужой issuer", "Bearer " + generateToken(t, key, tokenOpts{sub: "s", issuer: "https://evil.test"})},
		{"без sub", "Bearer " + generateToken(t, key, tokenOpts{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, claims := serve(auth, tt.header)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("статус = %d, ожидался 401", rec.Code)
			}
			if claims != nil {
				t.Error("handler не должен вызываться")
			}

			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("ошибка декодирования: %v", err)
			}
			if body.Error.Code != "UNAUTHORIZED" {
				t.Errorf("code = %q, ожидался UNAUTHORIZED", body.Error.Code)
			}
		})
	}
}

func TestJWTAuth_IssuerOptional(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key, "")

	rec, claims := serve(auth, "Bearer "+generateToken(t, key, tokenOpts{sub: "s", issuer: "https://any.test"}))
	if rec.Code != http.StatusOK || claims == nil {
		t.Errorf("без настроенного issuer токен должен приниматься: статус %d", rec.Code)
	}
}

func TestSubjectFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := SubjectFromContext(req.Context()); got != "" {
		t.Errorf("SubjectFromContext = %q, ожидалась пустая строка", got)
	}

	ctx := WithClaims(req.Context(), &AuthClaims{Subject: "admin-1"})
	if got := SubjectFromContext(ctx); got != "admin-1" {
		t.Errorf("SubjectFromContext = %q, ожидался admin-1", got)
	}
}
