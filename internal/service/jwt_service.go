package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"poll-api/internal/domain"
)

const (
	tokenTypeSession = "session"
	tokenTypeVerify  = "verify"
	tokenTypeReset   = "reset"
)

// JWTService emite y valida los tokens firmados: sesiones, enlaces de verificacion y reset.
type JWTService struct {
	secret     []byte
	sessionTTL time.Duration
	issuer     string
	store      SessionStore
}

// Session es el resultado de un login exitoso.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Claims struct {
	UserID    string `json:"userId,omitempty"`
	UserName  string `json:"userName,omitempty"`
	IsAdmin   bool   `json:"isAdmin,omitempty"`
	TokenType string `json:"typ"`
	Purpose   string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

func NewJWTService(secret string, sessionTTL time.Duration) *JWTService {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &JWTService{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		issuer:     "poll-api",
		store:      NewMemorySessionStore(),
	}
}

func NewJWTServiceWithStore(secret string, sessionTTL time.Duration, store SessionStore) *JWTService {
	svc := NewJWTService(secret, sessionTTL)
	if store != nil {
		svc.store = store
	}
	return svc
}

// IssueSession firma un token de sesion y registra su jti en el store.
func (s *JWTService) IssueSession(ctx context.Context, user domain.User) (Session, error) {
	if len(s.secret) == 0 {
		return Session{}, ErrJWTInvalid
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.sessionTTL)
	jti := uuid.NewString()
	claims := Claims{
		UserID:    user.ID,
		UserName:  user.FullName,
		IsAdmin:   user.IsAdmin,
		TokenType: tokenTypeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := s.sign(claims)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.Store(ctx, jti, user.ID, s.sessionTTL); err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt}, nil
}

// ParseSession valida firma, expiracion y que la sesion no haya sido revocada.
func (s *JWTService) ParseSession(ctx context.Context, token string) (Claims, error) {
	claims, err := s.parse(token, tokenTypeSession)
	if err != nil {
		return Claims{}, err
	}
	if claims.UserID == "" || claims.UserID != claims.Subject || claims.ID == "" {
		return Claims{}, ErrJWTInvalid
	}
	ok, err := s.store.Exists(ctx, claims.ID)
	if err != nil || !ok {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

// RevokeSession es idempotente.
func (s *JWTService) RevokeSession(ctx context.Context, claims Claims) error {
	if claims.ID == "" {
		return nil
	}
	return s.store.Revoke(ctx, claims.ID)
}

// RevokeUserSessions invalida todas las sesiones emitidas para el usuario.
func (s *JWTService) RevokeUserSessions(ctx context.Context, userID string) error {
	return s.store.RevokeUser(ctx, userID)
}

// SignPurpose firma un token de un solo proposito (verify o reset) para el subject dado.
func (s *JWTService) SignPurpose(tokenType, subject, purpose string, ttl time.Duration) (token, jti string, err error) {
	if len(s.secret) == 0 {
		return "", "", ErrJWTInvalid
	}
	now := time.Now().UTC()
	jti = uuid.NewString()
	claims := Claims{
		TokenType: tokenType,
		Purpose:   purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err = s.sign(claims)
	return token, jti, err
}

// ParsePurpose valida un token emitido por SignPurpose y devuelve sus claims.
func (s *JWTService) ParsePurpose(token, tokenType string) (Claims, error) {
	return s.parse(token, tokenType)
}

func (s *JWTService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) parse(tokenString, tokenType string) (Claims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrJWTInvalid
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(strings.TrimSpace(tokenString), &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	if claims.TokenType != tokenType || strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}
