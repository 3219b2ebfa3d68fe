package auth

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type operator struct {
	username     string
	passwordHash string
	role         string
}

type session struct {
	claims    OperatorClaims
	expiresAt time.Time
}

type attempts struct {
	failures    int
	lockedUntil time.Time
}

// Service authenticates the configured operators and issues tokens.
// Refresh tokens are kept in memory as SHA-256 hashes; a restart logs everyone out.
type Service struct {
	config    Config
	jwt       *JWTManager
	passwords *PasswordManager
	operators []operator
	logger    zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]session // refresh token hash -> session
	attempts map[string]*attempts
}

// NewService creates the operator auth service
func NewService(cfg Config, logger zerolog.Logger) *Service {
	def := DefaultConfig()
	if cfg.AccessTokenDuration <= 0 {
		cfg.AccessTokenDuration = def.AccessTokenDuration
	}
	if cfg.RefreshTokenDuration <= 0 {
		cfg.RefreshTokenDuration = def.RefreshTokenDuration
	}
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = def.MaxLoginAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}

	s := &Service{
		config:    cfg,
		jwt:       NewJWTManager(cfg.JWTSecret, cfg.AccessTokenDuration, cfg.RefreshTokenDuration),
		passwords: NewPasswordManager(DefaultBcryptCost),
		logger:    logger.With().Str("component", "Auth").Logger(),
		now:       time.Now,
		sessions:  make(map[string]session),
		attempts:  make(map[string]*attempts),
	}
	if cfg.AdminUsername != "" && cfg.AdminPasswordHash != "" {
		s.operators = append(s.operators, operator{cfg.AdminUsername, cfg.AdminPasswordHash, RoleAdmin})
	}
	if cfg.ViewerUsername != "" && cfg.ViewerPasswordHash != "" {
		s.operators = append(s.operators, operator{cfg.ViewerUsername, cfg.ViewerPasswordHash, RoleViewer})
	}
	return s
}

// JWT returns the token manager used by the middleware
func (s *Service) JWT() *JWTManager {
	return s.jwt
}

// Login checks the operator's password and returns a token pair
func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	now := s.now()

	s.mu.Lock()
	a := s.attempts[req.Username]
	if a != nil && now.Before(a.lockedUntil) {
		s.mu.Unlock()
		return nil, ErrRateLimited
	}
	s.mu.Unlock()

	op, ok := s.lookup(req.Username)
	if !ok || !s.passwords.VerifyPassword(req.Password, op.passwordHash) {
		s.recordFailure(req.Username, now)
		return nil, ErrInvalidCredentials
	}

	claims := OperatorClaims{Username: op.username, Role: op.role}
	pair, err := s.jwt.GenerateTokenPair(claims)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.attempts, req.Username)
	s.sessions[HashRefreshToken(pair.RefreshToken)] = session{
		claims:    claims,
		expiresAt: now.Add(s.config.RefreshTokenDuration),
	}
	s.mu.Unlock()

	s.logger.Info().Str("username", op.username).Str("role", op.role).Msg("Operator logged in")
	return pair, nil
}

// Refresh rotates a refresh token into a new pair
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	key := HashRefreshToken(refreshToken)
	now := s.now()

	s.mu.Lock()
	sess, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()

	if !ok {
		return nil, ErrSessionRevoked
	}
	if now.After(sess.expiresAt) {
		return nil, ErrTokenExpired
	}

	pair, err := s.jwt.GenerateTokenPair(sess.claims)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[HashRefreshToken(pair.RefreshToken)] = session{
		claims:    sess.claims,
		expiresAt: now.Add(s.config.RefreshTokenDuration),
	}
	s.mu.Unlock()
	return pair, nil
}

// Logout revokes a refresh token
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	s.mu.Lock()
	delete(s.sessions, HashRefreshToken(refreshToken))
	s.mu.Unlock()
}

func (s *Service) lookup(username string) (operator, bool) {
	for _, op := range s.operators {
		if subtle.ConstantTimeCompare([]byte(op.username), []byte(username)) == 1 {
			return op, true
		}
	}
	return operator{}, false
}

func (s *Service) recordFailure(username string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.attempts[username]
	if a == nil {
		a = &attempts{}
		s.attempts[username] = a
	}
	a.failures++
	if a.failures >= s.config.MaxLoginAttempts {
		a.failures = 0
		a.lockedUntil = now.Add(s.config.LockoutDuration)
		s.logger.Warn().Str("username", username).Dur("lockout", s.config.LockoutDuration).Msg("Operator locked out after failed logins")
	}
}
