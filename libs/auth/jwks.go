package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrKeyNotFound = errors.New("jwks key not found")

// minRefetch bounds how often an unknown kid can force a fetch.
const minRefetch = 10 * time.Second

type keySet struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// JWKSClient resolves RS256 verification keys published by the identity provider.
// A snapshot is served until ttl passes; an unknown kid triggers an early refetch,
// and a failed refetch keeps serving the previous snapshot.
type JWKSClient struct {
	http *http.Client
	url  string
	ttl  time.Duration
	now  func() time.Time

	mu  sync.Mutex
	set keySet
}

func NewJWKSClient(url string, ttl time.Duration) *JWKSClient {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &JWKSClient{
		http: &http.Client{Timeout: 5 * time.Second},
		url:  url,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Keyfunc plugs the key set into jwt.Parse.
func (c *JWKSClient) Keyfunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: token has no kid header", ErrKeyNotFound)
	}
	return c.Get(kid)
}

func (c *JWKSClient) Get(kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	fresh := now.Sub(c.set.fetchedAt) < c.ttl
	if key, ok := c.set.keys[kid]; ok && fresh {
		return key, nil
	}
	if fresh && now.Sub(c.set.fetchedAt) < minRefetch {
		return nil, ErrKeyNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout)
	defer cancel()
	keys, err := c.fetch(ctx)
	if err != nil {
		if key, ok := c.set.keys[kid]; ok {
			return key, nil
		}
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	c.set = keySet{keys: keys, fetchedAt: now}

	if key, ok := keys[kid]; ok {
		return key, nil
	}
	return nil, ErrKeyNotFound
}

func (c *JWKSClient) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

func rsaKey(n64, e64 string) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(n64)
	if err != nil || len(n) == 0 {
		return nil, errors.New("bad jwk modulus")
	}
	e, err := base64.RawURLEncoding.DecodeString(e64)
	if err != nil || len(e) == 0 || len(e) > 4 {
		return nil, errors.New("bad jwk exponent")
	}
	exp := new(big.Int).SetBytes(e).Int64()
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp)}, nil
}
