package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"math/big"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"poll-api/internal/email"
)

var (
	ErrOTPNotRequested     = errors.New("otp not requested")
	ErrOTPInvalid          = errors.New("incorrect OTP")
	ErrVerificationExpired = errors.New("verification expired")
	ErrRateLimited         = errors.New("rate limited")
)

type TargetKind string

const (
	TargetUser TargetKind = "user"
	TargetVote TargetKind = "vote"
)

// Target identifica que se esta verificando: una cuenta (ID de usuario) o el voto
// pendiente de una encuesta (ID de encuesta).
type Target struct {
	Kind    TargetKind
	ID      string
	Email   string
	BaseURL string
}

// Challenge separa lo que se persiste (Secret) de lo que recibe el usuario (Value).
type Challenge struct {
	Secret string
	Value  string
}

// VerificationStrategy genera y valida desafios. Se elige una sola al arrancar.
type VerificationStrategy interface {
	Name() string
	Issue(target Target) (Challenge, error)
	// Check devuelve ErrOTPInvalid o ErrVerificationExpired.
	Check(target Target, stored, submitted string) error
}

// PersistFunc guarda el secreto vigente del objetivo, reemplazando el anterior.
type PersistFunc func(ctx context.Context, secret string) error

// ComposeFunc arma el correo a partir del codigo o enlace generado.
type ComposeFunc func(value string) email.Message

// Verifier coordina la emision y confirmacion de desafios.
type Verifier struct {
	logger   *zap.Logger
	strategy VerificationStrategy
	notifier *Notifier
	limiter  IssueLimiter
}

func NewVerifier(logger *zap.Logger, strategy VerificationStrategy, notifier *Notifier, limiter IssueLimiter) *Verifier {
	if limiter == nil {
		limiter = NewMemoryIssueLimiter(issueRateWindow, issueRateMax)
	}
	return &Verifier{
		logger:   logger,
		strategy: strategy,
		notifier: notifier,
		limiter:  limiter,
	}
}

func (v *Verifier) Strategy() string {
	return v.strategy.Name()
}

// Issue pasa el objetivo a CodeIssued. Cualquier codigo previo deja de valer.
func (v *Verifier) Issue(ctx context.Context, target Target, persist PersistFunc, compose ComposeFunc) error {
	if !v.limiter.Allow(ctx, target) {
		return ErrRateLimited
	}
	return v.issue(ctx, target, persist, compose)
}

func (v *Verifier) issue(ctx context.Context, target Target, persist PersistFunc, compose ComposeFunc) error {
	challenge, err := v.strategy.Issue(target)
	if err != nil {
		return err
	}
	if err := persist(ctx, challenge.Secret); err != nil {
		return err
	}
	v.notifier.Dispatch(compose(challenge.Value))
	return nil
}

// Confirm valida submitted contra el secreto guardado. El llamador debe limpiar el
// secreto tras el exito. Si el enlace expiro se emite y envia uno nuevo y se devuelve
// ErrVerificationExpired.
func (v *Verifier) Confirm(ctx context.Context, target Target, stored, submitted string, persist PersistFunc, compose ComposeFunc) error {
	if stored == "" {
		return ErrOTPNotRequested
	}
	err := v.strategy.Check(target, stored, strings.TrimSpace(submitted))
	if errors.Is(err, ErrVerificationExpired) {
		if reissueErr := v.Issue(ctx, target, persist, compose); reissueErr != nil {
			return reissueErr
		}
		if v.logger != nil {
			v.logger.Info("verification expired, reissued",
				zap.String("kind", string(target.Kind)),
				zap.String("target", target.ID),
			)
		}
		return ErrVerificationExpired
	}
	return err
}

const (
	otpMin = 1000
	otpMax = 9999
)

// OTPStrategy emite codigos numericos de 4 digitos sin expiracion. Solo se guarda
// salt:sha256 del codigo.
type OTPStrategy struct{}

func (OTPStrategy) Name() string { return "otp" }

func (OTPStrategy) Issue(_ Target) (Challenge, error) {
	code, secret, err := generateOTP()
	if err != nil {
		return Challenge{}, err
	}
	return Challenge{Secret: secret, Value: code}, nil
}

func (OTPStrategy) Check(_ Target, stored, submitted string) error {
	if !isValidOTPCode(submitted) || !verifyOTP(submitted, stored) {
		return ErrOTPInvalid
	}
	return nil
}

func generateOTP() (string, string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", "", err
	}
	code := strconv.FormatInt(n.Int64()+otpMin, 10)

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", "", err
	}
	saltStr := base64.StdEncoding.EncodeToString(salt)
	return code, saltStr + ":" + hashOTP(saltStr, code), nil
}

func hashOTP(salt, code string) string {
	sum := sha256.Sum256([]byte(salt + ":" + code))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func verifyOTP(code, stored string) bool {
	saltStr, expectedHash, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	hash := hashOTP(saltStr, code)
	return subtle.ConstantTimeCompare([]byte(hash), []byte(expectedHash)) == 1
}

func isValidOTPCode(code string) bool {
	n, err := strconv.Atoi(code)
	if err != nil || len(code) != 4 {
		return false
	}
	return n >= otpMin && n <= otpMax
}
