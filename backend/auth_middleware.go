// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const (
	defaultAuthCookie = "wicketkeeper_auth"
	mockAuthCookie    = "mock_auth_user"
	jwksRefreshPeriod = time.Minute
)

// jwksCache holds the signing keys of the identity provider and refetches
// them when a token names an unknown key.
type jwksCache struct {
	url string

	mu          sync.RWMutex
	keys        jwk.Set
	lastRefresh time.Time
}

func (c *jwksCache) refresh() error {
	if c.url == "" {
		return errors.New("no JWKS URL provided")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	set, err := jwk.Fetch(ctx, c.url)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	c.mu.Lock()
	c.keys = set
	c.lastRefresh = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *jwksCache) lookup(kid string) (any, error) {
	c.mu.RLock()
	set := c.keys
	c.mu.RUnlock()
	if set == nil {
		return nil, errors.New("JWKS not initialized")
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to materialize key: %w", err)
	}
	return raw, nil
}

// keyFunc resolves the verification key of a token.
func (c *jwksCache) keyFunc(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA, *jwt.SigningMethodEd25519:
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, errors.New("token missing 'kid' header")
	}
	key, err := c.lookup(kid)
	if err == nil {
		return key, nil
	}

	c.mu.RLock()
	stale := time.Since(c.lastRefresh) > jwksRefreshPeriod
	c.mu.RUnlock()
	if !stale {
		return nil, err
	}
	if err := c.refresh(); err != nil {
		log.Printf("Error refreshing JWKS: %v", err)
		return nil, err
	}
	return c.lookup(kid)
}

// jwtAuthMiddleware sets the user ID from a JWT cookie verified against the
// configured JWKS. Requests without a valid token proceed anonymously.
func jwtAuthMiddleware(opts Options, next http.Handler) http.Handler {
	keys := &jwksCache{url: opts.AuthJWKSURL}
	if opts.AuthJWKSURL != "" {
		if err := keys.refresh(); err != nil {
			log.Printf("Warning: Failed to fetch JWKS on startup: %v", err)
		}
	} else {
		log.Println("Warning: No AuthJWKSURL provided. JWT validation will fail unless MockAuth is used.")
	}
	cookieName := opts.AuthCookieName
	if cookieName == "" {
		cookieName = defaultAuthCookie
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, err := jwt.Parse(cookie.Value, keys.keyFunc)
		if err != nil || !token.Valid {
			if opts.Debug && err != nil {
				log.Printf("JWT Validation failed: %v", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if email, ok := claims["email"].(string); ok && email != "" {
				ctx := context.WithValue(r.Context(), userIDKey, normalizeEmail(email))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// mockAuthMiddleware trusts a plain cookie as the user ID. Development only.
func mockAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(mockAuthCookie); err == nil && cookie.Value != "" {
			ctx := context.WithValue(r.Context(), userIDKey, normalizeEmail(cookie.Value))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		next.ServeHTTP(w, r)
	})
}
