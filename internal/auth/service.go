package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitea.jw6.us/james/crmdesk/internal/metrics"
	"gitea.jw6.us/james/crmdesk/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultSessionTTL is the absolute lifetime of a session.
const DefaultSessionTTL = 24 * time.Hour

// PublicUser is the client-facing view of a user. It never carries the
// password digest.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Title     string    `json:"title"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
}

func publicUser(u store.User) PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Title:     u.Title,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
	}
}

// ProfileUpdate lists the mutable profile fields. Nil fields are left as is.
type ProfileUpdate struct {
	Name   *string `json:"name"`
	Title  *string `json:"title"`
	Avatar *string `json:"avatar"`
}

type Options struct {
	SessionTTL time.Duration
	BcryptCost int
	Logger     *slog.Logger
}

// Service handles credentials and sessions on top of the document store.
type Service struct {
	store  *store.Store
	ttl    time.Duration
	cost   int
	logger *slog.Logger

	now      func() time.Time
	newToken func() (string, error)

	dummyOnce sync.Once
	dummyHash string
}

func NewService(st *store.Store, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		store:    st,
		ttl:      opts.SessionTTL,
		cost:     opts.BcryptCost,
		logger:   opts.Logger,
		now:      time.Now,
		newToken: generateToken,
	}
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup registers a user and opens their first session in a single store
// cycle.
func (s *Service) Signup(ctx context.Context, name, email, password string) (PublicUser, string, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		metrics.AuthEvent("signup", "invalid")
		return PublicUser{}, "", ErrMissingFields
	}

	digest, err := HashPassword(password, s.cost)
	if err != nil {
		return PublicUser{}, "", err
	}
	token, err := s.newToken()
	if err != nil {
		return PublicUser{}, "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return PublicUser{}, "", fmt.Errorf("generate user id: %w", err)
	}

	now := s.now().UTC()
	user := store.User{
		ID:           id.String(),
		Name:         name,
		Email:        email,
		PasswordHash: digest,
		CreatedAt:    now,
	}
	err = s.store.Update(ctx, func(d *store.Dataset) error {
		if findUserByEmail(d, email) >= 0 {
			return ErrDuplicateEmail
		}
		d.Users = append(d.Users, user)
		d.Sessions = append(d.Sessions, newSession(token, user.ID, now, s.ttl))
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			metrics.AuthEvent("signup", "duplicate")
		} else {
			metrics.AuthEvent("signup", "error")
		}
		return PublicUser{}, "", err
	}

	metrics.AuthEvent("signup", "success")
	s.logger.InfoContext(ctx, "user signed up", "user_id", user.ID)
	return publicUser(user), token, nil
}

// Login checks email and password and opens a new, independent session.
func (s *Service) Login(ctx context.Context, email, password string) (PublicUser, string, error) {
	email = NormalizeEmail(email)

	var (
		user  store.User
		found bool
	)
	err := s.store.View(ctx, func(d *store.Dataset) error {
		if idx := findUserByEmail(d, email); idx >= 0 {
			user, found = d.Users[idx], true
		}
		return nil
	})
	if err != nil {
		metrics.AuthEvent("login", "error")
		return PublicUser{}, "", err
	}

	if !found {
		// Spend the same bcrypt time as a real comparison.
		CheckPassword(s.dummyDigest(), password)
		metrics.AuthEvent("login", "failure")
		return PublicUser{}, "", ErrInvalidCredentials
	}
	if !CheckPassword(user.PasswordHash, password) {
		metrics.AuthEvent("login", "failure")
		return PublicUser{}, "", ErrInvalidCredentials
	}

	token, err := s.newToken()
	if err != nil {
		return PublicUser{}, "", err
	}
	now := s.now().UTC()
	err = s.store.Update(ctx, func(d *store.Dataset) error {
		d.Sessions = append(d.Sessions, newSession(token, user.ID, now, s.ttl))
		return nil
	})
	if err != nil {
		metrics.AuthEvent("login", "error")
		return PublicUser{}, "", err
	}

	metrics.AuthEvent("login", "success")
	return publicUser(user), token, nil
}

// Logout deletes the session matching token. Unknown or empty tokens are a
// no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	hash := hashToken(token)
	err := s.store.Update(ctx, func(d *store.Dataset) error {
		for i, sess := range d.Sessions {
			if sess.TokenHash == hash {
				d.Sessions = append(d.Sessions[:i], d.Sessions[i+1:]...)
				return nil
			}
		}
		return store.ErrNoChange
	})
	if err != nil {
		return err
	}
	metrics.AuthEvent("logout", "success")
	return nil
}

// Resolve purges expired sessions and returns the user id owning token.
func (s *Service) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	hash := hashToken(token)
	now := s.now()

	var (
		userID string
		purged int
	)
	err := s.store.Update(ctx, func(d *store.Dataset) error {
		purged = purgeExpired(d, now)
		for _, sess := range d.Sessions {
			if sess.TokenHash == hash {
				userID = sess.UserID
				break
			}
		}
		if purged == 0 {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if purged > 0 {
		metrics.SessionsPurged(purged)
		s.logger.DebugContext(ctx, "purged expired sessions", "count", purged)
	}
	if userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

// PurgeExpired removes every expired session and reports how many went.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	now := s.now()
	var purged int
	err := s.store.Update(ctx, func(d *store.Dataset) error {
		purged = purgeExpired(d, now)
		if purged == 0 {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.SessionsPurged(purged)
	return purged, nil
}

// CurrentUser returns the public profile of userID.
func (s *Service) CurrentUser(ctx context.Context, userID string) (PublicUser, error) {
	var user PublicUser
	err := s.store.View(ctx, func(d *store.Dataset) error {
		idx := findUserByID(d, userID)
		if idx < 0 {
			return store.ErrNotFound
		}
		user = publicUser(d.Users[idx])
		return nil
	})
	return user, err
}

// UpdateProfile changes name, title and avatar. Email and password cannot be
// changed here.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (PublicUser, error) {
	var user PublicUser
	err := s.store.Update(ctx, func(d *store.Dataset) error {
		idx := findUserByID(d, userID)
		if idx < 0 {
			return store.ErrNotFound
		}
		u := &d.Users[idx]
		if upd.Name != nil {
			u.Name = *upd.Name
		}
		if upd.Title != nil {
			u.Title = *upd.Title
		}
		if upd.Avatar != nil {
			u.Avatar = *upd.Avatar
		}
		user = publicUser(*u)
		return nil
	})
	return user, err
}

// RevokeOtherSessions deletes all of userID's sessions except the one
// identified by keepToken.
func (s *Service) RevokeOtherSessions(ctx context.Context, userID, keepToken string) (int, error) {
	keep := hashToken(keepToken)
	var revoked int
	err := s.store.Update(ctx, func(d *store.Dataset) error {
		kept := d.Sessions[:0]
		for _, sess := range d.Sessions {
			if sess.UserID == userID && sess.TokenHash != keep {
				revoked++
				continue
			}
			kept = append(kept, sess)
		}
		d.Sessions = kept
		if revoked == 0 {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return revoked, nil
}

func (s *Service) dummyDigest() string {
	s.dummyOnce.Do(func() {
		digest, err := HashPassword("crmdesk-timing-equalizer", s.cost)
		if err != nil {
			s.logger.Warn("could not prepare dummy password digest", "error", err)
			return
		}
		s.dummyHash = digest
	})
	return s.dummyHash
}

func findUserByEmail(d *store.Dataset, email string) int {
	for i, u := range d.Users {
		if NormalizeEmail(u.Email) == email {
			return i
		}
	}
	return -1
}

func findUserByID(d *store.Dataset, id string) int {
	for i, u := range d.Users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
