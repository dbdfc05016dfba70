package auth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/uhmwpe-lab/labdata/internal/rbac"
	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// ErrSessionUserGone is returned by Status when the session names a user that no longer exists.
var ErrSessionUserGone = errors.New("auth: session user no longer exists")

// PermissionLister exposes the permission map of a user. *rbac.Engine implements it.
type PermissionLister interface {
	AllPermissions(ctx context.Context, userID int64) map[string]map[rbac.Action]bool
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	sessions *shared.SessionManager
	perms    PermissionLister
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, sessions *shared.SessionManager, perms PermissionLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, sessions: sessions, perms: perms, logger: logger, now: time.Now}
}

// Authenticate validates username/password credentials. Callers only learn that an account
// is disabled after presenting its correct password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, shared.ErrInvalidCredentials
	}
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrAccountDisabled
	}
	return user, nil
}

// Login authenticates and binds the user to sess under a fresh session id.
func (s *Service) Login(ctx context.Context, sess *shared.Session, client ClientInfo, username, password string) (*UserSummary, error) {
	if sess == nil {
		return nil, errors.New("auth: session missing")
	}
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	summary, err := s.repo.FindSummary(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.sessions.Renew(sess)
	sess.SetUser(user.ID)
	sess.Set(shared.SessionRoleKey, strconv.FormatInt(user.RoleID, 10))

	expiresAt := s.now().Add(s.sessions.TTL())
	if err := s.repo.CreateSession(ctx, sess.ID, user.ID, expiresAt, client.IP, client.UserAgent); err != nil {
		s.logger.Warn("register session", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	return summary, nil
}

// Logout clears the session. It succeeds whether or not anybody was logged in.
func (s *Service) Logout(ctx context.Context, sess *shared.Session) {
	if sess == nil {
		return
	}
	if _, ok := sess.UserID(); ok {
		if err := s.repo.DeleteSession(ctx, sess.ID); err != nil {
			s.logger.Warn("remove session", slog.Any("error", err))
		}
	}
	s.sessions.Destroy(sess)
}

// Status reports the session's user and permissions. A session whose user vanished is
// destroyed and ErrSessionUserGone is returned.
func (s *Service) Status(ctx context.Context, sess *shared.Session) (Status, error) {
	userID, ok := sess.UserID()
	if !ok || sess.Destroyed() {
		return Status{LoggedIn: false}, nil
	}

	var (
		summary *UserSummary
		perms   map[string]map[rbac.Action]bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = s.repo.FindSummary(gctx, userID)
		return err
	})
	g.Go(func() error {
		perms = s.perms.AllPermissions(gctx, userID)
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.Logout(ctx, sess)
			return Status{LoggedIn: false}, ErrSessionUserGone
		}
		return Status{}, err
	}
	return Status{LoggedIn: true, User: summary, Permissions: perms}, nil
}
