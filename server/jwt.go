// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JSONWebKey is a public key in JWK format, as served by the JWKS endpoint.
type JSONWebKey struct {
	KID string `json:"kid"`
	KTY string `json:"kty"`
	ALG string `json:"alg"`
	USE string `json:"use"`
	CRV string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// JSONWebKeySet is the document served at the JWKS endpoint.
type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// KeyPair holds a private signing key and its public JWK.
type KeyPair struct {
	PrivateKey *ecdsa.PrivateKey
	PublicJWK  JSONWebKey
}

// KeyManager generates and holds ECDSA key pairs used to sign push
// notification tokens, and serves the matching public keys as a JWKS so
// notification receivers can verify deliveries.
type KeyManager struct {
	mu       sync.RWMutex
	keyPairs map[string]*KeyPair
	jwks     JSONWebKeySet
}

// NewKeyManager creates an empty key manager.
func NewKeyManager() *KeyManager {
	return &KeyManager{
		keyPairs: make(map[string]*KeyPair),
	}
}

// GenerateKeyPair generates a new P-256 key pair under the given key ID and
// registers it with the manager.
func (m *KeyManager) GenerateKeyPair(kid string) (*KeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	jwk := JSONWebKey{
		KID: kid,
		KTY: "EC",
		ALG: "ES256",
		USE: "sig",
		CRV: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(privateKey.X.Bytes()),
		Y:   base64.RawURLEncoding.EncodeToString(privateKey.Y.Bytes()),
	}

	keyPair := &KeyPair{
		PrivateKey: privateKey,
		PublicJWK:  jwk,
	}
	m.keyPairs[kid] = keyPair
	m.jwks.Keys = append(m.jwks.Keys, jwk)

	return keyPair, nil
}

// GetKeyPair returns a key pair by key ID.
func (m *KeyManager) GetKeyPair(kid string) (*KeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keyPair, ok := m.keyPairs[kid]
	if !ok {
		return nil, fmt.Errorf("key pair not found: %s", kid)
	}
	return keyPair, nil
}

// GetJWKS returns the current JSON Web Key Set.
func (m *KeyManager) GetJWKS() JSONWebKeySet {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.jwks
}

// SignJWT signs the claims with the named key pair using ES256.
func (m *KeyManager) SignJWT(kid string, claims jwt.Claims) (string, error) {
	keyPair, err := m.GetKeyPair(kid)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = kid

	return token.SignedString(keyPair.PrivateKey)
}

// SignDeliveryToken signs a short-lived token for a push delivery. The
// request_body_sha256 claim binds the token to the exact payload, so a
// receiver can verify both the sender identity and the body integrity.
func (m *KeyManager) SignDeliveryToken(kid, issuer, audience string, body []byte, validity time.Duration) (string, error) {
	now := time.Now()
	sum := sha256.Sum256(body)

	claims := jwt.MapClaims{
		"iss":                 issuer,
		"aud":                 audience,
		"iat":                 jwt.NewNumericDate(now),
		"exp":                 jwt.NewNumericDate(now.Add(validity)),
		"jti":                 uuid.NewString(),
		"request_body_sha256": hex.EncodeToString(sum[:]),
	}

	return m.SignJWT(kid, claims)
}

// CreateJWKSHandler returns an HTTP handler serving the public keys.
func (m *KeyManager) CreateJWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		sonic.ConfigDefault.NewEncoder(w).Encode(m.GetJWKS())
	}
}
