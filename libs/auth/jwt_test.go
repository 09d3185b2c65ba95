package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testClaims(sub, role string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
}

func TestHS256RoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(testClaims("patient-1", "patient", time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	parsed, err := NewHS256Verifier(secret).Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject != "patient-1" || parsed.Role != "patient" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := NewHS256Verifier("wrong-secret").Verify(token); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestHS256Expired(t *testing.T) {
	token, err := SignHS256(testClaims("admin-1", "admin", -time.Minute), "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := NewHS256Verifier("s").Verify(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestJWKSVerify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "kid-1",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims("doctor-1", "doctor", time.Hour))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign RS256: %v", err)
	}

	parsed, err := NewJWKSVerifier(NewJWKSClient(srv.URL, time.Minute), "").Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject != "doctor-1" || parsed.Role != "doctor" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Fatalf("expected abc, got %q %v", tok, ok)
	}
	if _, ok := BearerToken("Basic abc"); ok {
		t.Fatal("expected non-bearer scheme to be rejected")
	}
}

func TestJWKSUnknownKidRefetchIsThrottled(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	defer srv.Close()

	c := NewJWKSClient(srv.URL, time.Minute)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if _, err := c.Get("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if _, err := c.Get("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if fetches.Load() != 1 {
		t.Fatalf("expected one fetch inside the refetch window, got %d", fetches.Load())
	}
	now = now.Add(minRefetch + time.Second)
	_, _ = c.Get("missing")
	if fetches.Load() != 2 {
		t.Fatalf("expected refetch after window, got %d", fetches.Load())
	}
}
