package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

var ErrNotConfigured = errors.New("auth: neither issuer nor secret configured")

type Claims struct {
	jwt.RegisteredClaims
	Name      string `json:"name"`
	GivenName string `json:"given_name"`
	Email     string `json:"email"`
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

// Validator checks RS256 tokens against an issuer's JWKS and HS256 tokens
// against a shared secret. Either may be disabled.
type Validator struct {
	issuer     string
	secret     []byte
	httpClient *http.Client
	logger     *slog.Logger

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

type ValidatorOptions struct {
	IssuerURL  string
	Secret     string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewValidator(opts ValidatorOptions) (*Validator, error) {
	if opts.IssuerURL == "" && opts.Secret == "" {
		return nil, ErrNotConfigured
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Validator{
		issuer:     strings.TrimSuffix(opts.IssuerURL, "/"),
		secret:     []byte(opts.Secret),
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		keys:       make(map[string]*rsa.PublicKey),
	}, nil
}

// Start loads the JWKS and refreshes it every interval until ctx is done.
// It is a no-op when no issuer is configured.
func (v *Validator) Start(ctx context.Context, interval time.Duration) error {
	if v.issuer == "" {
		return nil
	}
	if err := v.Refresh(ctx); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := v.Refresh(ctx); err != nil {
					v.logger.Error("[AUTH] Error refreshing JWKS", "error", err)
				} else {
					v.logger.Debug("[AUTH] JWKS refreshed")
				}
			}
		}
	}()

	return nil
}

// Refresh fetches the issuer's JWKS and replaces the cached keys.
func (v *Validator) Refresh(ctx context.Context) error {
	jwksURL := v.issuer + "/.well-known/jwks.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return fmt.Errorf("build JWKS request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, jwk := range jwks.Keys {
		if jwk.Kty != "RSA" {
			continue
		}
		key, err := jwkToPublicKey(jwk)
		if err != nil {
			v.logger.Warn("[AUTH] Skipping malformed JWK", "kid", jwk.Kid, "error", err)
			continue
		}
		keys[jwk.Kid] = key
	}

	v.mu.Lock()
	v.keys = keys
	v.mu.Unlock()

	v.logger.Info("[AUTH] JWKS loaded", "url", jwksURL, "keys", len(keys))
	return nil
}

func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, errors.New("token is empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	if _, isRSA := token.Method.(*jwt.SigningMethodRSA); isRSA && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("invalid issuer: expected %s, got %s", v.issuer, claims.Issuer)
	}

	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return claims, nil
}

func (v *Validator) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA:
		if v.issuer == "" {
			return nil, errors.New("RSA tokens are not accepted")
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid not found in token header")
		}
		return v.publicKey(kid)

	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, errors.New("HMAC tokens are not accepted")
		}
		return v.secret, nil
	}

	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

func (v *Validator) publicKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
	}
	return key, nil
}

// jwkToPublicKey converts JWK to RSA public key
func jwkToPublicKey(jwk JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, errors.New("empty exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
