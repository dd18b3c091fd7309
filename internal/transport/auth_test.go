package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shelfline/flightrec/internal/config"
)

// --- test helpers ---

func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func generateECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func rsaKeyToJWK(kid string, pub *rsa.PublicKey) map[string]any {
	return map[string]any{
		"kid": kid,
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func ecKeyToJWK(kid string, pub *ecdsa.PublicKey) map[string]any {
	return map[string]any{
		"kid": kid,
		"kty": "EC",
		"crv": "P-256",
		"use": "sig",
		"x":   base64.RawURLEncoding.EncodeToString(pub.X.Bytes()),
		"y":   base64.RawURLEncoding.EncodeToString(pub.Y.Bytes()),
	}
}

func startJWKSServer(t *testing.T, keys ...map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signJWT(t *testing.T, key any, method jwt.SigningMethod, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func testIdentityCfg() config.IdentityConfig {
	return config.IdentityConfig{
		Enabled:    true,
		Issuer:     "https://auth.shelfline.example",
		Audience:   "flightrec-dashboard",
		Algorithms: []string{"RS256", "ES256"},
	}
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": "user-1",
		"iss": "https://auth.shelfline.example",
		"aud": "flightrec-dashboard",
		"exp": jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
		"iat": jwt.NewNumericDate(time.Now()),
	}
}

func authErrorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Message
}

// --- WebhookAuthenticator tests ---

func TestWebhookAuthenticator_validSecret(t *testing.T) {
	h := WebhookAuthenticator("s3cret")(okHandler())

	req := httptest.NewRequest("POST", "/hooks/clio/matter-created", nil)
	req.Header.Set(WebhookSecretHeader, "s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestWebhookAuthenticator_wrongSecret(t *testing.T) {
	h := WebhookAuthenticator("s3cret")(okHandler())

	for _, got := range []string{"", "wrong"} {
		req := httptest.NewRequest("POST", "/hooks/clio/matter-created", nil)
		if got != "" {
			req.Header.Set(WebhookSecretHeader, got)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("secret %q: status = %d, want 401", got, w.Code)
		}
	}
}

func TestWebhookAuthenticator_emptyConfiguredSecret_open(t *testing.T) {
	h := WebhookAuthenticator("")(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/hooks/clio/matter-created", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with no secret configured", w.Code)
	}
}

// --- JWKSClient tests ---

func TestJWKSClient_GetKey_RSA(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwks := startJWKSServer(t, rsaKeyToJWK("rsa-key-1", &rsaKey.PublicKey))

	client := NewJWKSClient(jwks.URL, 1*time.Hour)
	key, err := client.GetKey("rsa-key-1")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	pubKey, ok := key.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("key type = %T, want *rsa.PublicKey", key)
	}
	if pubKey.N.Cmp(rsaKey.PublicKey.N) != 0 {
		t.Error("RSA modulus mismatch")
	}
}

func TestJWKSClient_GetKey_EC(t *testing.T) {
	ecKey := generateECKey(t)
	jwks := startJWKSServer(t, ecKeyToJWK("ec-key-1", &ecKey.PublicKey))

	client := NewJWKSClient(jwks.URL, 1*time.Hour)
	key, err := client.GetKey("ec-key-1")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	pubKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		t.Fatalf("key type = %T, want *ecdsa.PublicKey", key)
	}
	if pubKey.X.Cmp(ecKey.PublicKey.X) != 0 {
		t.Error("EC X coordinate mismatch")
	}
}

func TestJWKSClient_GetKey_unknown(t *testing.T) {
	jwks := startJWKSServer(t)

	client := NewJWKSClient(jwks.URL, 1*time.Hour)
	if _, err := client.GetKey("no-such-key"); err == nil {
		t.Fatal("expected error for unknown kid")
	}
}

func TestJWKSClient_degradedMode_usesCachedKey(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwks := startJWKSServer(t, rsaKeyToJWK("rsa-key-1", &rsaKey.PublicKey))

	client := NewJWKSClient(jwks.URL, 1*time.Nanosecond)
	if _, err := client.GetKey("rsa-key-1"); err != nil {
		t.Fatalf("initial GetKey: %v", err)
	}

	// Cache is expired but the endpoint is gone. The stale key must still
	// be served.
	jwks.Close()
	client.minRefresh = 0
	if _, err := client.GetKey("rsa-key-1"); err != nil {
		t.Fatalf("degraded GetKey: %v", err)
	}
}

// --- JWTAuthenticator tests ---

func jwtTestHandler(t *testing.T, cfg config.IdentityConfig, jwksURL string) http.Handler {
	t.Helper()
	jwks := NewJWKSClient(jwksURL, 1*time.Hour)
	return JWTAuthenticator(cfg, jwks)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFrom(r.Context())
		WriteJSON(w, http.StatusOK, map[string]any{"sub": claims["sub"]})
	}))
}

func TestJWTAuthenticator_validToken(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwks := startJWKSServer(t, rsaKeyToJWK("k1", &rsaKey.PublicKey))
	h := jwtTestHandler(t, testIdentityCfg(), jwks.URL)

	token := signJWT(t, rsaKey, jwt.SigningMethodRS256, "k1", validClaims())
	req := httptest.NewRequest("GET", "/api/traces", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "user-1") {
		t.Errorf("claims not propagated: %s", w.Body.String())
	}
}

func TestJWTAuthenticator_validECToken(t *testing.T) {
	ecKey := generateECKey(t)
	jwks := startJWKSServer(t, ecKeyToJWK("k2", &ecKey.PublicKey))
	h := jwtTestHandler(t, testIdentityCfg(), jwks.URL)

	token := signJWT(t, ecKey, jwt.SigningMethodES256, "k2", validClaims())
	req := httptest.NewRequest("GET", "/api/traces", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestJWTAuthenticator_missingHeader(t *testing.T) {
	jwks := startJWKSServer(t)
	h := jwtTestHandler(t, testIdentityCfg(), jwks.URL)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/traces", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestJWTAuthenticator_malformedHeader(t *testing.T) {
	jwks := startJWKSServer(t)
	h := jwtTestHandler(t, testIdentityCfg(), jwks.URL)

	req := httptest.NewRequest("GET", "/api/traces", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestJWTAuthenticator_expiredToken(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwks := startJWKSServer(t, rsaKeyToJWK("k1", &rsaKey.PublicKey))
	h := jwtTestHandler(t, testIdentityCfg(), jwks.URL)

	claims := validClaims()
	claims["exp"] = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	token := signJWT(t, rsaKey, jwt.SigningMethodRS256, "k1", claims)

	req := httptest.NewRequest("GET", "/api/traces", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if msg := authErrorMessage(t, w); msg != "Token expired" {
		t.Errorf("message = %q, want Token expired", msg)
	}
}

func TestJWTAuthenticator_wrongIssuer(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwks := startJWKSServer(t, rsaKeyToJWK("k1", &rsaKey.PublicKey))
	h := jwtTestHandler(t, testIdentityCfg(), jwks.URL)

	claims := validClaims()
	claims["iss"] = "https://other-idp.example"
	token := signJWT(t, rsaKey, jwt.SigningMethodRS256, "k1", claims)

	req := httptest.NewRequest("GET", "/api/traces", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if msg := authErrorMessage(t, w); msg != "Invalid token issuer" {
		t.Errorf("message = %q, want Invalid token issuer", msg)
	}
}

func TestJWTAuthenticator_wrongAudience(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwks := startJWKSServer(t, rsaKeyToJWK("k1", &rsaKey.PublicKey))
	h := jwtTestHandler(t, testIdentityCfg(), jwks.URL)

	claims := validClaims()
	claims["aud"] = "some-other-service"
	token := signJWT(t, rsaKey, jwt.SigningMethodRS256, "k1", claims)

	req := httptest.NewRequest("GET", "/api/traces", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestJWTAuthenticator_disallowedAlgorithm(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwks := startJWKSServer(t, rsaKeyToJWK("k1", &rsaKey.PublicKey))

	cfg := testIdentityCfg()
	cfg.Algorithms = []string{"ES256"}
	h := jwtTestHandler(t, cfg, jwks.URL)

	token := signJWT(t, rsaKey, jwt.SigningMethodRS256, "k1", validClaims())
	req := httptest.NewRequest("GET", "/api/traces", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestJWTAuthenticator_missingKid(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwks := startJWKSServer(t, rsaKeyToJWK("k1", &rsaKey.PublicKey))
	h := jwtTestHandler(t, testIdentityCfg(), jwks.URL)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	s, err := token.SignedString(rsaKey)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/traces", nil)
	req.Header.Set("Authorization", "Bearer "+s)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
