package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"rafflechain/crypto"
)

// AuthConfig describes the HS256 bearer tokens accepted for state-changing
// methods. The token subject is the caller's bech32 account address.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

type Authenticator struct {
	cfg    AuthConfig
	secret []byte
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, secret: []byte(strings.TrimSpace(cfg.HMACSecret))}
}

// Enabled reports whether a signing secret is configured.
func (a *Authenticator) Enabled() bool { return a != nil && len(a.secret) > 0 }

// Authenticate resolves the caller account from the request's bearer token.
func (a *Authenticator) Authenticate(r *http.Request) ([20]byte, *RPCError) {
	if !a.Enabled() {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "RPC authentication secret not configured"}
	}
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "invalid token", Data: err.Error()}
	}
	if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "invalid token", Data: err.Error()}
	}
	subject, _ := claims["sub"].(string)
	caller, err := parseAccount(subject)
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "invalid token subject", Data: err.Error()}
	}
	return caller, nil
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != audience {
				return errors.New("audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("audience mismatch")
			}
		default:
			return errors.New("audience missing")
		}
	}
	return nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// IssueToken signs a caller token for subject, valid for ttl from now.
func IssueToken(cfg AuthConfig, subject string, ttl time.Duration, now time.Time) (string, error) {
	secret := strings.TrimSpace(cfg.HMACSecret)
	if secret == "" {
		return "", errors.New("auth: signing secret required")
	}
	if _, err := parseAccount(subject); err != nil {
		return "", fmt.Errorf("auth: subject: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if cfg.Issuer != "" {
		claims["iss"] = cfg.Issuer
	}
	if cfg.Audience != "" {
		claims["aud"] = cfg.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseAccount(value string) ([20]byte, error) {
	return crypto.DecodeAs(crypto.AccountPrefix, value)
}
