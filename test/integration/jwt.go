package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer is a minimal identity provider for tests: one RSA key served
// over a JWKS endpoint, and signed tokens bound to a fixed issuer/audience.
type tokenIssuer struct {
	key      *rsa.PrivateKey
	kid      string
	issuer   string
	audience string
	server   *httptest.Server
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	iss := &tokenIssuer{
		key:      key,
		kid:      "integration-key-1",
		issuer:   "https://auth.shelfline.example",
		audience: "flightrec-dashboard",
	}

	jwk := map[string]any{
		"kid": iss.kid,
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}
	iss.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"keys": []any{jwk}})
	}))
	t.Cleanup(iss.server.Close)
	return iss
}

func (i *tokenIssuer) jwksURL() string { return i.server.URL }

func (i *tokenIssuer) token(t *testing.T) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "ops-user",
		"iss": i.issuer,
		"aud": i.audience,
		"exp": jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
		"iat": jwt.NewNumericDate(time.Now()),
	})
	tok.Header["kid"] = i.kid
	s, err := tok.SignedString(i.key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}
