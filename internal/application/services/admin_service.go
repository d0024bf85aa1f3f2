package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/osamaflash/catalog/internal/domain/entities"
	"github.com/osamaflash/catalog/internal/infrastructure/config"
	"github.com/osamaflash/catalog/internal/infrastructure/logger"
	"github.com/osamaflash/catalog/internal/ports"
)

const adminSubject = "admin"

// Claims represents the JWT claims of an admin token
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminService handles the site configuration document and admin login
type AdminService struct {
	store    ports.DocumentStore
	security config.SecurityConfig
	logger   *logger.Logger
	now      func() time.Time
	writeMu  sync.Mutex
}

// NewAdminService creates a new admin service
func NewAdminService(store ports.DocumentStore, security config.SecurityConfig, logger *logger.Logger) *AdminService {
	return &AdminService{
		store:    store,
		security: security,
		logger:   logger.WithComponent("admin"),
		now:      time.Now,
	}
}

// Authenticate compares password against the stored admin password. A
// stored bcrypt hash is checked with bcrypt; anything else is compared as
// plain text, exactly.
func (s *AdminService) Authenticate(ctx context.Context, password string) (bool, error) {
	var cfg entities.SiteConfig
	if err := s.store.Get(ctx, entities.DocumentConfig, &cfg); err != nil {
		return false, fmt.Errorf("failed to load config: %w", err)
	}

	if isBcryptHash(cfg.AdminPass) {
		err := bcrypt.CompareHashAndPassword([]byte(cfg.AdminPass), []byte(password))
		return err == nil, nil
	}

	return subtle.ConstantTimeCompare([]byte(cfg.AdminPass), []byte(password)) == 1, nil
}

// Login authenticates and, when a token secret is configured, issues an
// admin token.
func (s *AdminService) Login(ctx context.Context, req ports.LoginRequest) (*ports.LoginResult, error) {
	if req.Password == nil {
		return &ports.LoginResult{Success: false}, nil
	}

	ok, err := s.Authenticate(ctx, *req.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warnw("Admin login rejected")
		return &ports.LoginResult{Success: false}, nil
	}

	result := &ports.LoginResult{Success: true}
	if s.security.TokenSecret != "" {
		token, err := s.IssueToken()
		if err != nil {
			return nil, fmt.Errorf("failed to issue token: %w", err)
		}
		result.Token = token
	}

	s.logger.Infow("Admin logged in")

	return result, nil
}

// IssueToken signs a new admin token.
func (s *AdminService) IssueToken() (string, error) {
	if s.security.TokenSecret == "" {
		return "", fmt.Errorf("token secret is not configured")
	}

	now := s.now()
	claims := Claims{
		Role: adminSubject,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   adminSubject,
			Issuer:    s.security.TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.security.TokenExpiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.security.TokenSecret))
}

// ValidateToken checks the signature, expiry and subject of an admin token.
func (s *AdminService) ValidateToken(tokenString string) (*ports.AdminClaims, error) {
	if s.security.TokenSecret == "" {
		return nil, fmt.Errorf("%w: token secret is not configured", entities.ErrUnauthorized)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.security.TokenSecret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.security.TokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject != adminSubject {
		return nil, fmt.Errorf("%w: invalid token", entities.ErrUnauthorized)
	}

	out := &ports.AdminClaims{
		Subject: claims.Subject,
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return out, nil
}

// UpdateConfig overwrites only the keys present in the request.
func (s *AdminService) UpdateConfig(ctx context.Context, req ports.UpdateConfigRequest) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var cfg entities.SiteConfig
	if err := s.store.Get(ctx, entities.DocumentConfig, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	changed := make([]string, 0, 3)
	if req.AdminPass != nil {
		cfg.AdminPass = *req.AdminPass
		changed = append(changed, "adminPass")
	}
	if req.SiteTitle != nil {
		cfg.SiteTitle = *req.SiteTitle
		changed = append(changed, "siteTitle")
	}
	if req.AboutContent != nil {
		cfg.AboutContent = *req.AboutContent
		changed = append(changed, "aboutContent")
	}

	if err := s.store.Save(ctx, entities.DocumentConfig, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	s.logger.LogAdminAction("update_config", map[string]interface{}{
		"fields": strings.Join(changed, ","),
	})

	return nil
}

// SetPassword stores a new admin password, optionally as a bcrypt hash.
func (s *AdminService) SetPassword(ctx context.Context, password string, hash bool) error {
	stored := password
	if hash {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		stored = string(hashed)
	}

	return s.UpdateConfig(ctx, ports.UpdateConfigRequest{AdminPass: &stored})
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
