package app

import (
	"context"
	"net/http"
	"time"

	"fieldops/api/internal/auth"
	"fieldops/api/internal/authpw"
	"fieldops/api/internal/config"
	"fieldops/api/internal/feed"
	"fieldops/api/internal/rbac"
	"fieldops/api/internal/search"
	"fieldops/api/internal/store"
	"fieldops/api/internal/util"
)

// Session is the resolved caller identity attached to every authenticated
// request. ClientID is empty for staff and set for portal accounts.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	TenantID     string
	ClientID     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the subset of the Postgres store the service layer needs
// directly. The feed engine holds its own, wider view.
type dataStore interface {
	Ping(ctx context.Context) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// SessionStore persists refresh sessions. The Redis store keeps the full
// user context with the token; the Postgres fallback joins it back in.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type pgSessions struct {
	store *store.PostgresStore
}

// NewPostgresSessions adapts the Postgres store to SessionStore for
// deployments without Redis.
func NewPostgresSessions(st *store.PostgresStore) SessionStore {
	return pgSessions{store: st}
}

func (p pgSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p pgSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p pgSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions SessionStore
	authpw   *authpw.Service
	feed     *feed.Aggregator
	search   *search.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions SessionStore, aggregator *feed.Aggregator, searchSvc *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		authpw:   authpw.NewService(dataStore),
		feed:     aggregator,
		search:   searchSvc,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SignIn authenticates an email/password pair and issues a fresh session.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	clientID := ""
	if user.ClientID != nil {
		clientID = *user.ClientID
	}

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:    user.ID,
		Name:   user.DisplayName,
		Role:   user.Role,
		Tenant: user.TenantID,
		Client: clientID,
		JTI:    jti,
		Exp:    expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		TenantID:     user.TenantID,
		ClientID:     clientID,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token. The user row is re-read so a
// deactivated account loses access within one request, not one token TTL.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	if user.DeactivatedAt != nil {
		return Session{}, auth.ErrInvalidToken
	}

	clientID := ""
	if user.ClientID != nil {
		clientID = *user.ClientID
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		TenantID:  user.TenantID,
		ClientID:  clientID,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func hrefPrefix(session Session) string {
	return rbac.PathPrefix(rbac.Normalize(session.Role))
}

// ── Feed views ──
//
// Each returns the marshaled payload bytes straight from the aggregator, so
// a cache hit and a fresh build are byte-identical on the wire.

func (s *Service) Attention(ctx context.Context, session Session) ([]byte, error) {
	return s.feed.Attention(ctx, session.TenantID, hrefPrefix(session))
}

func (s *Service) EntityTimeline(ctx context.Context, session Session, entityID string) ([]byte, error) {
	return s.feed.EntityTimeline(ctx, session.TenantID, entityID, hrefPrefix(session))
}

func (s *Service) OpsActivity(ctx context.Context, session Session) ([]byte, error) {
	return s.feed.OpsActivity(ctx, session.TenantID, hrefPrefix(session))
}

func (s *Service) PortalTimeline(ctx context.Context, session Session) ([]byte, error) {
	if session.ClientID == "" {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Portal account has no client", nil)
	}
	return s.feed.PortalTimeline(ctx, session.TenantID, session.ClientID)
}

func (s *Service) HealthFlags(ctx context.Context, session Session) ([]byte, error) {
	return s.feed.HealthFlags(ctx, session.TenantID)
}

func (s *Service) EngineerActivity(ctx context.Context, session Session) ([]byte, error) {
	return s.feed.EngineerActivity(ctx, session.TenantID)
}

func (s *Service) MapPins(ctx context.Context, session Session) ([]byte, error) {
	return s.feed.MapPins(ctx, session.TenantID, hrefPrefix(session))
}

// Search runs an entity search scoped to the caller's tenant.
func (s *Service) Search(session Session, q search.Query) search.Response {
	q.TenantID = session.TenantID
	return s.search.Search(q)
}
