package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"poll-api/internal/domain"
	"poll-api/internal/email"
	"poll-api/internal/repository"
)

// UserService coordina reglas de negocio para cuentas de usuario.
type UserService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	verifier *Verifier
	notifier *Notifier
	tokens   *JWTService
	resetTTL time.Duration
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, verifier *Verifier, notifier *Notifier, tokens *JWTService, resetTTL time.Duration) *UserService {
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}
	return &UserService{
		logger:   logger,
		users:    users,
		verifier: verifier,
		notifier: notifier,
		tokens:   tokens,
		resetTTL: resetTTL,
	}
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidCredentials = errors.New("password is incorrect")
	ErrUserNotVerified    = errors.New("user not verified")
	ErrAlreadyVerified    = errors.New("user already verified")
	ErrPasswordRequired   = errors.New("password cannot be empty")
	ErrInvalidResetToken  = errors.New("invalid reset token")
)

const (
	passwordCost    = 12
	defaultResetTTL = 15 * time.Minute
)

type SignUpInput struct {
	FullName        string
	Email           string
	PhoneNumber     string
	Password        string
	ConfirmPassword string
	BaseURL         string
}

// signUpForm es la entrada ya normalizada; las reglas viven en los tags.
type signUpForm struct {
	FullName        string `json:"Fullname" validate:"required,min=3,max=40"`
	Email           string `json:"email" validate:"required,max=40,email"`
	PhoneNumber     string `json:"phoneNumber" validate:"required,phone"`
	Password        string `json:"password" validate:"required,min=8,max=20,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=Password"`
}

func (in SignUpInput) validate() error {
	form := signUpForm{
		FullName:        strings.TrimSpace(in.FullName),
		Email:           normalizeEmail(in.Email),
		PhoneNumber:     strings.TrimSpace(in.PhoneNumber),
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
	}
	if err := validate.Struct(form); err != nil {
		return toValidationError(err, "")
	}
	return nil
}

// SignUp crea una cuenta sin verificar y emite el primer desafio de verificacion.
func (s *UserService) SignUp(ctx context.Context, input SignUpInput) (domain.User, error) {
	if err := input.validate(); err != nil {
		return domain.User{}, err
	}
	emailAddr := normalizeEmail(input.Email)

	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return domain.User{}, ErrEmailTaken
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), passwordCost)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		FullName:     strings.ToLower(strings.TrimSpace(input.FullName)),
		Email:        emailAddr,
		PhoneNumber:  strings.TrimSpace(input.PhoneNumber),
		PasswordHash: string(hash),
		Polls:        []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}

	if err := s.issueVerification(ctx, &user, input.BaseURL); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Verify confirma la cuenta con el codigo (o token del enlace) recibido por email.
func (s *UserService) Verify(ctx context.Context, userID, submitted, baseURL string) (domain.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if user.IsVerified {
		return domain.User{}, ErrAlreadyVerified
	}

	target := s.userTarget(user, baseURL)
	err = s.verifier.Confirm(ctx, target, user.PendingCode, submitted, s.persistCode(user.ID), s.composeVerification(user))
	if err != nil {
		return domain.User{}, err
	}
	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return domain.User{}, err
	}
	user.IsVerified = true
	user.PendingCode = ""
	return user, nil
}

// ResendCode emite un desafio nuevo; el anterior deja de valer.
func (s *UserService) ResendCode(ctx context.Context, userID, baseURL string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}
	return s.issueVerification(ctx, &user, baseURL)
}

type LoginResult struct {
	User    domain.User
	Session Session
}

// Login exige cuenta verificada; nunca emite sesion para una cuenta sin verificar.
func (s *UserService) Login(ctx context.Context, emailAddr, password string) (LoginResult, error) {
	emailAddr = normalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return LoginResult{}, ErrInvalidEmail
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LoginResult{}, ErrUserNotFound
		}
		return LoginResult{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return LoginResult{}, ErrUserNotVerified
	}

	session, err := s.tokens.IssueSession(ctx, user)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.users.UpdateSessionToken(ctx, user.ID, session.Token); err != nil {
		return LoginResult{}, err
	}
	user.SessionToken = session.Token
	return LoginResult{User: user, Session: session}, nil
}

// SignOut limpia el token guardado y revoca todas las sesiones del usuario. Es idempotente.
func (s *UserService) SignOut(ctx context.Context, claims Claims) error {
	user, err := s.getUser(ctx, claims.UserID)
	if err != nil {
		return err
	}
	return s.endSessions(ctx, user.ID)
}

// ForgotPassword envia un enlace de reset firmado. El token deja de valer cuando cambia la contraseña.
func (s *UserService) ForgotPassword(ctx context.Context, emailAddr, baseURL string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	token, _, err := s.tokens.SignPurpose(tokenTypeReset, user.ID, passwordFingerprint(user.PasswordHash), s.resetTTL)
	if err != nil {
		return err
	}
	link := baseURL + "/reset/" + url.PathEscape(user.ID) + "?token=" + url.QueryEscape(token)
	s.notifier.Dispatch(email.PasswordResetMessage(user.Email, user.FullName, link))
	return nil
}

func (s *UserService) ResetPassword(ctx context.Context, userID, password, token string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if err := checkPassword(password); err != nil {
		return err
	}
	claims, err := s.tokens.ParsePurpose(token, tokenTypeReset)
	if err != nil || claims.Subject != userID {
		return ErrInvalidResetToken
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if claims.Purpose != passwordFingerprint(user.PasswordHash) {
		return ErrInvalidResetToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}
	return s.endSessions(ctx, user.ID)
}

func (s *UserService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return s.getUser(ctx, userID)
}

// SetAdmin promueve o degrada una cuenta. Solo se usa desde la CLI de operacion.
func (s *UserService) SetAdmin(ctx context.Context, emailAddr string, admin bool) (domain.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	if err := s.users.SetAdmin(ctx, user.ID, admin); err != nil {
		return domain.User{}, err
	}
	user.IsAdmin = admin
	return user, nil
}

func (s *UserService) endSessions(ctx context.Context, userID string) error {
	if err := s.users.UpdateSessionToken(ctx, userID, ""); err != nil {
		return err
	}
	return s.tokens.RevokeUserSessions(ctx, userID)
}

func (s *UserService) getUser(ctx context.Context, userID string) (domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, ErrUserNotFound
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *UserService) issueVerification(ctx context.Context, user *domain.User, baseURL string) error {
	persist := func(ctx context.Context, secret string) error {
		if err := s.users.UpdatePendingCode(ctx, user.ID, secret); err != nil {
			return err
		}
		user.PendingCode = secret
		return nil
	}
	return s.verifier.Issue(ctx, s.userTarget(*user, baseURL), persist, s.composeVerification(*user))
}

func (s *UserService) persistCode(userID string) PersistFunc {
	return func(ctx context.Context, secret string) error {
		return s.users.UpdatePendingCode(ctx, userID, secret)
	}
}

func (s *UserService) composeVerification(user domain.User) ComposeFunc {
	return func(value string) email.Message {
		return email.VerificationMessage(user.Email, user.FullName, value)
	}
}

func (s *UserService) userTarget(user domain.User, baseURL string) Target {
	return Target{Kind: TargetUser, ID: user.ID, Email: user.Email, BaseURL: baseURL}
}

func passwordFingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return base64.RawURLEncoding.EncodeToString(sum[:12])
}
