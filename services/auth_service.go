package services

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cppla/memevault/repository"
	"github.com/cppla/memevault/utils"
)

var tokenPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ValidTokenFormat reports whether raw looks like an issued token. Other
// values never reach the database.
func ValidTokenFormat(raw string) bool {
	return tokenPattern.MatchString(raw)
}

// AuthOptions configures AuthService.
type AuthOptions struct {
	Password     string
	PasswordHash string
	TokenMaxAge  time.Duration
}

// AuthService issues and checks bearer tokens for the shared password.
type AuthService struct {
	tokens  repository.AuthTokenRepository
	limiter utils.LoginLimiter
	opts    AuthOptions
}

// NewAuthService creates an AuthService.
func NewAuthService(tokens repository.AuthTokenRepository, limiter utils.LoginLimiter, opts AuthOptions) *AuthService {
	if opts.TokenMaxAge <= 0 {
		opts.TokenMaxAge = 7 * 24 * time.Hour
	}
	return &AuthService{tokens: tokens, limiter: limiter, opts: opts}
}

// Login checks password for the client at addr and returns a new token.
// Attempts over the limit fail with ErrRateLimited before the password is checked.
func (s *AuthService) Login(ctx context.Context, addr, password string) (string, error) {
	if s.opts.Password == "" && s.opts.PasswordHash == "" {
		return "", ErrPasswordNotConfigured
	}
	if !s.limiter.Allow(ctx, addr) {
		return "", ErrRateLimited
	}
	if !utils.MatchSecret(s.opts.PasswordHash, s.opts.Password, password) {
		return "", ErrInvalidCredentials
	}

	if _, err := s.Cleanup(ctx); err != nil {
		return "", err
	}
	token := uuid.NewString()
	if err := s.tokens.Add(ctx, token); err != nil {
		return "", err
	}
	return token, nil
}

// Validate reports whether token is a live token.
func (s *AuthService) Validate(ctx context.Context, token string) (bool, error) {
	if !ValidTokenFormat(token) {
		return false, nil
	}
	return s.tokens.Has(ctx, token)
}

// Touch refreshes the last-use time of token. Failures are logged only.
func (s *AuthService) Touch(ctx context.Context, token string) {
	if err := s.tokens.Touch(ctx, token); err != nil {
		utils.Logger.Warn("token touch failed", zap.Error(err))
	}
}

// Logout revokes token and reports whether it existed.
func (s *AuthService) Logout(ctx context.Context, token string) (bool, error) {
	if !ValidTokenFormat(token) {
		return false, nil
	}
	return s.tokens.Remove(ctx, token)
}

// Cleanup removes expired tokens and returns how many were deleted.
func (s *AuthService) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.tokens.Cleanup(ctx, s.opts.TokenMaxAge)
	if err != nil {
		return 0, fmt.Errorf("token cleanup: %w", err)
	}
	return n, nil
}

// StartCleanup runs Cleanup every interval until ctx is done. It is
// best-effort and logs failures.
func (s *AuthService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			n, err := s.Cleanup(runCtx)
			cancel()
			if err != nil {
				utils.Logger.Warn("token sweeper failed", zap.Error(err))
				continue
			}
			if n > 0 {
				utils.Logger.Info("expired tokens removed", zap.Int64("count", n))
			}
		}
	}()
}
