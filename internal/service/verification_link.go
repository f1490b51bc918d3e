package service

import (
	"errors"
	"net/url"
	"time"
)

const defaultLinkTTL = 5 * time.Minute

// LinkStrategy envia un enlace con un JWT de vida corta. El secreto guardado es el jti,
// asi que solo el ultimo enlace emitido es valido.
type LinkStrategy struct {
	tokens *JWTService
	ttl    time.Duration
}

func NewLinkStrategy(tokens *JWTService, ttl time.Duration) *LinkStrategy {
	if ttl <= 0 {
		ttl = defaultLinkTTL
	}
	return &LinkStrategy{tokens: tokens, ttl: ttl}
}

func (s *LinkStrategy) Name() string { return "link" }

func (s *LinkStrategy) Issue(target Target) (Challenge, error) {
	token, jti, err := s.tokens.SignPurpose(tokenTypeVerify, target.ID, string(target.Kind), s.ttl)
	if err != nil {
		return Challenge{}, err
	}
	return Challenge{Secret: jti, Value: verificationLink(target, token)}, nil
}

func (s *LinkStrategy) Check(target Target, stored, submitted string) error {
	claims, err := s.tokens.ParsePurpose(submitted, tokenTypeVerify)
	if errors.Is(err, ErrJWTExpired) {
		return ErrVerificationExpired
	}
	if err != nil {
		return ErrOTPInvalid
	}
	if claims.Subject != target.ID || claims.Purpose != string(target.Kind) || claims.ID != stored {
		return ErrOTPInvalid
	}
	return nil
}

func verificationLink(target Target, token string) string {
	escaped := url.PathEscape(target.ID)
	switch target.Kind {
	case TargetVote:
		return target.BaseURL + "/api/verify-voters/" + escaped + "/" + token
	default:
		return target.BaseURL + "/verify/" + escaped + "/" + token
	}
}
