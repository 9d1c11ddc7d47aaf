package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/render-tgm/server/internal/config"
	"github.com/render-tgm/server/internal/mail"
	"github.com/render-tgm/server/internal/models"
	"github.com/render-tgm/server/internal/repository"
	"github.com/render-tgm/server/internal/security"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrResetTokenInvalid covers both an unknown and an expired reset token;
// the client cannot tell which.
var ErrResetTokenInvalid = errors.New("reset token invalid or expired")

type AuthService struct {
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	mailer   mail.Sender
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAuthService(
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	mailer mail.Sender,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		mailer:   mailer,
		cfg:      cfg,
		log:      log,
	}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type AuthResult struct {
	Token string
	User  models.User
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.Name == "" || input.Email == "" || input.Password == "" {
		return AuthResult{}, fmt.Errorf("name, email and password are required")
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	// The configured superadmin address bootstraps its own role; everyone
	// else starts as a plain user.
	role := models.RoleUser
	if s.cfg.Security.SuperAdminEmail != "" && input.Email == strings.ToLower(s.cfg.Security.SuperAdminEmail) {
		role = models.RoleSuperAdmin
	}

	user, err := s.users.Create(ctx, input.Name, input.Email, passwordHash, role)
	if err != nil {
		return AuthResult{}, err
	}

	token, err := s.issueToken(user)
	if err != nil {
		return AuthResult{}, err
	}

	s.log.Info().Int64("user_id", user.ID).Msg("user registered")

	return AuthResult{Token: token, User: user}, nil
}

type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))

	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	// Login audit trail; a write failure must not block the login.
	if err := s.sessions.Record(ctx, user.ID, input.IPAddress, input.UserAgent); err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("session record failed")
	}

	token, err := s.issueToken(user)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{Token: token, User: user}, nil
}

// ForgotPassword stores a hashed single-use token and mails the reset
// link. The raw token only ever exists in the email.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, tokenHash, err := security.GenerateResetToken()
	if err != nil {
		return err
	}

	expires := time.Now().Add(s.cfg.Security.ResetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, tokenHash, expires); err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/reset-password/%s", strings.TrimSuffix(s.cfg.SMTP.FrontendURL, "/"), token)
	body := fmt.Sprintf(
		"<h1>Password Reset</h1>"+
			"<p>Hello %s,</p>"+
			"<p>Click the link below to choose a new password:</p>"+
			"<a href=%q>Reset Password</a>"+
			"<p>The link expires in 1 hour. If you did not request this, ignore this email.</p>",
		user.Name, resetURL)

	if err := s.mailer.Send(user.Email, "Password Reset - RENDER-TGM", body); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}

	s.log.Info().Int64("user_id", user.ID).Msg("password reset requested")
	return nil
}

// ResetPassword matches the presented token against users with an active
// reset window and replaces the password on a hit. Tokens are stored
// hashed, so each candidate hash has to be verified individually.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return ErrResetTokenInvalid
	}

	candidates, err := s.users.ListWithActiveResetToken(ctx)
	if err != nil {
		return err
	}

	for _, user := range candidates {
		ok, err := security.VerifyPassword(token, user.ResetTokenHash)
		if err != nil || !ok {
			continue
		}

		passwordHash, err := security.HashPassword(newPassword)
		if err != nil {
			return err
		}

		if err := s.users.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
			return err
		}

		s.log.Info().Int64("user_id", user.ID).Msg("password reset completed")
		return nil
	}

	return ErrResetTokenInvalid
}

func (s *AuthService) issueToken(user models.User) (string, error) {
	return security.GenerateAccessToken(
		s.cfg.Security.JWTSecret,
		user.ID,
		user.Email,
		string(user.Role),
		s.cfg.Security.JWTTTL,
	)
}
