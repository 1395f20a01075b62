package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/config"
	"go.uber.org/zap"
)

type Permission string

const (
	PermOperator   Permission = "operator"
	PermTechnician Permission = "technician"
	PermAdmin      Permission = "admin"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
)

const (
	maxFailedAttempts = 5
	lockDuration      = time.Minute
)

type operator struct {
	username     string
	passwordHash string
	role         string
	failed       int
	lockedUntil  time.Time
}

// AuthService authenticates the operators listed in the configuration.
// With no operators configured authentication is disabled and every
// request is treated as a local admin.
type AuthService struct {
	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher
	logger         *zap.Logger
	now            func() time.Time

	mu        sync.Mutex
	operators map[string]*operator
}

func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) (*AuthService, error) {
	a := &AuthService{
		jwtHandler:     NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL),
		passwordHasher: NewPasswordHasher(DefaultHashParams),
		logger:         logger,
		now:            time.Now,
		operators:      make(map[string]*operator, len(cfg.Operators)),
	}

	for _, op := range cfg.Operators {
		if op.Username == "" {
			return nil, fmt.Errorf("operator without username")
		}
		if _, dup := a.operators[op.Username]; dup {
			return nil, fmt.Errorf("operator %s configured twice", op.Username)
		}
		if op.PasswordHash == "" {
			return nil, fmt.Errorf("operator %s has no password hash", op.Username)
		}
		switch Permission(op.Role) {
		case PermOperator, PermTechnician, PermAdmin:
		default:
			return nil, fmt.Errorf("operator %s: unknown role %q", op.Username, op.Role)
		}
		a.operators[op.Username] = &operator{
			username:     op.Username,
			passwordHash: op.PasswordHash,
			role:         op.Role,
		}
	}

	if a.Enabled() && !cfg.IsProductionReady() {
		logger.Warn("JWT secret not set or too short, using development secret",
			zap.String("env", cfg.JWTSecretEnv))
	}
	return a, nil
}

func (a *AuthService) Enabled() bool {
	return len(a.operators) > 0
}

// Login verifies the credentials and returns an access token. Five failed
// attempts lock the account for a minute.
func (a *AuthService) Login(username, password, ipAddress string) (string, time.Time, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	op, ok := a.operators[username]
	if !ok {
		a.logger.Warn("Login failed: unknown operator",
			zap.String("username", username),
			zap.String("ip", ipAddress))
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := a.now()
	if now.Before(op.lockedUntil) {
		return "", time.Time{}, fmt.Errorf("%w until %s", ErrAccountLocked, op.lockedUntil.Format(time.RFC3339))
	}

	valid, err := a.passwordHasher.VerifyPassword(password, op.passwordHash)
	if err != nil {
		a.logger.Error("Stored password hash unusable", zap.String("username", username), zap.Error(err))
	}
	if err != nil || !valid {
		op.failed++
		if op.failed >= maxFailedAttempts {
			op.lockedUntil = now.Add(lockDuration)
			op.failed = 0
			a.logger.Warn("Operator locked after failed logins", zap.String("username", username))
		}
		a.logger.Warn("Login failed: invalid password",
			zap.String("username", username),
			zap.String("ip", ipAddress))
		return "", time.Time{}, ErrInvalidCredentials
	}

	op.failed = 0
	token, expires, err := a.jwtHandler.GenerateAccessToken(op.username, op.role)
	if err != nil {
		return "", time.Time{}, err
	}
	a.logger.Info("Operator logged in",
		zap.String("username", username),
		zap.String("role", op.role),
		zap.String("ip", ipAddress))
	return token, expires, nil
}

// ValidateToken checks an access token and returns its claims and the
// permissions of its role.
func (a *AuthService) ValidateToken(token string) (*JWTClaims, []Permission, error) {
	claims, err := a.jwtHandler.ValidateAccessToken(token)
	if err != nil {
		return nil, nil, err
	}
	return claims, RoleToPermissions(claims.Role), nil
}

func RoleToPermissions(role string) []Permission {
	switch Permission(role) {
	case PermAdmin:
		return []Permission{PermOperator, PermTechnician, PermAdmin}
	case PermTechnician:
		return []Permission{PermOperator, PermTechnician}
	default:
		return []Permission{PermOperator}
	}
}

func HasPermission(perms []Permission, required Permission) bool {
	for _, p := range perms {
		if p == required {
			return true
		}
	}
	return false
}
