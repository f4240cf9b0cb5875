package app

import (
	"context"
	"fmt"
	"time"

	"masthead/api/internal/auth"
	"masthead/api/internal/authpw"
	"masthead/api/internal/email"
	"masthead/api/internal/presence"
	"masthead/api/internal/rbac"
	"masthead/api/internal/revisions"
	"masthead/api/internal/search"
	"masthead/api/internal/store"
	"masthead/api/internal/util"
)

// dataStore is the durable storage surface the service depends on. The
// Postgres store satisfies it; tests substitute fakes.
type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	UpdateUserAvatar(ctx context.Context, userID, avatarKey string) error

	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	ListBonds(ctx context.Context) ([]store.Bond, error)
	GetBond(ctx context.Context, id string) (store.Bond, error)
	InsertBond(ctx context.Context, b store.Bond) error
	UpdateBond(ctx context.Context, b store.Bond) error
	DeleteBond(ctx context.Context, id string) error

	ListCryptoAssets(ctx context.Context) ([]store.CryptoAsset, error)
	GetCryptoAsset(ctx context.Context, id string) (store.CryptoAsset, error)
	InsertCryptoAsset(ctx context.Context, c store.CryptoAsset) error
	UpdateCryptoAsset(ctx context.Context, c store.CryptoAsset) error
	DeleteCryptoAsset(ctx context.Context, id string) error

	ListStocks(ctx context.Context) ([]store.Stock, error)
	GetStock(ctx context.Context, id string) (store.Stock, error)
	InsertStock(ctx context.Context, st store.Stock) error
	UpdateStock(ctx context.Context, st store.Stock) error
	DeleteStock(ctx context.Context, id string) error

	ListNewsletters(ctx context.Context) ([]store.Newsletter, error)
	GetNewsletter(ctx context.Context, id string) (store.Newsletter, error)
	InsertNewsletter(ctx context.Context, n store.Newsletter) error
	UpdateNewsletter(ctx context.Context, n store.Newsletter) error
	DeleteNewsletter(ctx context.Context, id string) error

	ListSpotlights(ctx context.Context) ([]store.Spotlight, error)
	GetSpotlight(ctx context.Context, id string) (store.Spotlight, error)
	InsertSpotlight(ctx context.Context, sp store.Spotlight) error
	UpdateSpotlight(ctx context.Context, sp store.Spotlight) error
	DeleteSpotlight(ctx context.Context, id string) error

	ListLandingPages(ctx context.Context) ([]store.LandingPage, error)
	GetLandingPage(ctx context.Context, id string) (store.LandingPage, error)
	InsertLandingPage(ctx context.Context, lp store.LandingPage) error
	UpdateLandingPage(ctx context.Context, lp store.LandingPage) error
	SetLandingPagePreviewKey(ctx context.Context, id, previewKey string) error
	DeleteLandingPage(ctx context.Context, id string) error

	ListPixelConfigs(ctx context.Context) ([]store.PixelConfig, error)
	GetPixelConfig(ctx context.Context, id string) (store.PixelConfig, error)
	InsertPixelConfig(ctx context.Context, p store.PixelConfig) error
	UpdatePixelConfig(ctx context.Context, p store.PixelConfig) error
	DeletePixelConfig(ctx context.Context, id string) error
}

// sessionStore holds refresh tokens. The Redis store is preferred;
// PostgresSessions adapts the durable store when Redis is not configured.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// PostgresSessions adapts the Postgres store to the sessionStore surface.
type PostgresSessions struct {
	Store *store.PostgresStore
}

func (p PostgresSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.Store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p PostgresSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.Store.LookupRefreshSession(ctx, tokenHash)
}

func (p PostgresSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.Store.RevokeRefreshSession(ctx, tokenHash)
}

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type Service struct {
	db        dataStore
	sessions  sessionStore
	authpw    *authpw.Service
	email     *email.Service
	search    *search.Service
	assets    assetStore
	revisions *revisions.Service
	presence  *presence.Registry

	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	heartbeat  time.Duration
	publicURL  string
}

type Options struct {
	Store             dataStore
	Sessions          sessionStore
	AuthPW            *authpw.Service
	Email             *email.Service
	Search            *search.Service
	Assets            assetStore
	Revisions         *revisions.Service
	Presence          *presence.Registry
	JWTSecret         []byte
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	PresenceHeartbeat time.Duration
	PublicURL         string
}

func NewService(opts Options) *Service {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}
	if opts.PresenceHeartbeat <= 0 {
		opts.PresenceHeartbeat = 10 * time.Second
	}
	return &Service{
		db:         opts.Store,
		sessions:   opts.Sessions,
		authpw:     opts.AuthPW,
		email:      opts.Email,
		search:     opts.Search,
		assets:     opts.Assets,
		revisions:  opts.Revisions,
		presence:   opts.Presence,
		jwtSecret:  opts.JWTSecret,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		heartbeat:  opts.PresenceHeartbeat,
		publicURL:  opts.PublicURL,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Service) Presence() *presence.Registry {
	return s.presence
}

// PresenceHeartbeat is the cadence clients should send heartbeats at. The
// registry's liveness window is sized against it.
func (s *Service) PresenceHeartbeat() time.Duration {
	return s.heartbeat
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// SendVerificationEmail delivers the verify link when SMTP is configured.
// Failures are returned so the HTTP layer can fall back to the dev bypass.
func (s *Service) SendVerificationEmail(toEmail, userName, token string) error {
	if !s.SMTPConfigured() {
		return fmt.Errorf("smtp not configured")
	}
	url := s.publicURL + "/verify-email?token=" + token
	return s.email.SendVerificationEmail(toEmail, userName, url)
}

func (s *Service) SendPasswordResetEmail(toEmail, userName, token string) error {
	if !s.SMTPConfigured() {
		return fmt.Errorf("smtp not configured")
	}
	url := s.publicURL + "/reset-password?token=" + token
	return s.email.SendPasswordResetEmail(toEmail, userName, url)
}

// CreateSession issues an access/refresh pair for a verified user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("jti")
	expiresAt := time.Now().Add(s.accessTTL)
	token, err := auth.IssueToken(s.jwtSecret, auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	refreshToken := util.NewID("rft")
	refreshExpiry := time.Now().Add(s.refreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), user, refreshExpiry); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates the refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, auth.ErrInvalidToken
	}
	hash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.jwtSecret, token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.db.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes both halves of the session. Best-effort: a missing refresh
// token still revokes the access token.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.db.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			return fmt.Errorf("revoke access token: %w", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return fmt.Errorf("revoke refresh session: %w", err)
		}
	}
	return nil
}
