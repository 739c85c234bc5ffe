package jwttoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims carries both token shapes. Refresh tokens leave the user fields
// empty; Subject is always the username.
type Claims struct {
	UserID id.UserID `json:"user_id,omitempty"`
	Role   string    `json:"role,omitempty"`
	Email  string    `json:"email,omitempty"`
	Type   TokenType `json:"type"`
	jwt.RegisteredClaims
}

// AccessSubject is the user data embedded in an access token.
type AccessSubject struct {
	Username string
	UserID   id.UserID
	Role     string
	Email    string
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures the JWTService.
type Option func(*JWTService)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(s *JWTService) {
		s.now = now
	}
}

// NewJWTService builds a signer for one of the HMAC algorithms. Tokens
// declaring any other algorithm are rejected at validation.
func NewJWTService(signingKey, algorithm string, accessTTL, refreshTTL time.Duration, opts ...Option) (*JWTService, error) {
	if signingKey == "" {
		return nil, errors.New("jwt signing key is required")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm %q: only HS256, HS384 and HS512 are allowed", algorithm)
	}
	s := &JWTService{
		signingKey: []byte(signingKey),
		method:     method,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL is the lifetime of issued access tokens.
func (s *JWTService) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *JWTService) GenerateAccessToken(subject AccessSubject) (string, error) {
	now := s.now()
	return s.sign(Claims{
		UserID: subject.UserID,
		Role:   subject.Role,
		Email:  subject.Email,
		Type:   TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	})
}

func (s *JWTService) GenerateRefreshToken(username string) (string, error) {
	now := s.now()
	return s.sign(Claims{
		Type: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	})
}

func (s *JWTService) sign(claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken verifies signature, expiry and that the token is an
// access token.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, TokenTypeAccess)
}

// ValidateRefreshToken verifies signature, expiry and that the token is a
// refresh token.
func (s *JWTService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, TokenTypeRefresh)
}

func (s *JWTService) validate(tokenString string, want TokenType) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeExpiredToken, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeMalformedToken, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeMalformedToken, "invalid token claims")
	}
	if claims.Type != want {
		return nil, dErrors.New(dErrors.CodeWrongTokenType, "unexpected token type")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeMalformedToken, "token subject is missing")
	}
	return claims, nil
}
