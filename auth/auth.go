// Package auth implements registration, login, password reset and the role
// policy applied to routes.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stokaro/trustboard/core/apperr"
	"github.com/stokaro/trustboard/core/clock"
	"github.com/stokaro/trustboard/core/sanitize"
	"github.com/stokaro/trustboard/mailer"
	"github.com/stokaro/trustboard/session"
	"github.com/stokaro/trustboard/store"
)

// Client-facing messages.
const (
	MsgLoginRequired       = "로그인이 필요합니다."
	MsgAdminRequired       = "관리자 권한이 필요합니다."
	MsgBadUsername         = "아이디는 3~20자의 영문/숫자/_.- 만 사용할 수 있습니다."
	MsgBadEmail            = "올바른 이메일 주소를 입력해주세요."
	MsgBadPassword         = "비밀번호는 6~64자로 입력해주세요."
	MsgUsernameTaken       = "이미 사용 중인 아이디입니다."
	MsgEmailTaken          = "이미 사용 중인 이메일입니다."
	MsgLoginMissing        = "아이디와 비밀번호를 입력해주세요."
	MsgLoginFailed         = "아이디 또는 비밀번호가 올바르지 않습니다."
	MsgResetRequested      = "비밀번호 재설정 안내를 확인해주세요."
	MsgTokenMissing        = "토큰이 필요합니다."
	MsgTokenInvalid        = "유효하지 않거나 만료된 토큰입니다."
	MsgPasswordReset       = "비밀번호가 변경되었습니다. 새 비밀번호로 로그인해주세요."
	MsgPasswordChanged     = "비밀번호가 변경되었습니다."
	MsgCurrentPasswordBad  = "현재 비밀번호가 올바르지 않습니다."
	resetEmailSubject      = "[업체정보 커뮤니티] 비밀번호 재설정 안내"
	resetTokenBytes        = 32
	DefaultBcryptCost      = 10
	DefaultResetTokenTTL   = time.Hour
	resetPasswordPath      = "/reset-password"
	resetPasswordTokenName = "token"
)

// Repository is the storage the service needs.
type Repository interface {
	CreateUser(ctx context.Context, username, email, passwordHash string, isAdmin bool) (store.User, error)
	UserByID(ctx context.Context, id int64) (store.User, bool, error)
	UserByUsername(ctx context.Context, username string) (store.User, bool, error)
	UserByEmail(ctx context.Context, email string) (store.User, bool, error)
	SetUserPassword(ctx context.Context, id int64, passwordHash string) (bool, error)
	EnsureAdmin(ctx context.Context, username, email, passwordHash string) (bool, error)
	ReplaceResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	ResetTokenUser(ctx context.Context, tokenHash string, now time.Time) (int64, bool, error)
	RedeemResetToken(ctx context.Context, userID int64, passwordHash string) error
}

// Options configure the service.
type Options struct {
	// Production hides the raw reset token from responses.
	Production bool
	// BaseURL overrides the request origin in reset links.
	BaseURL    string
	BcryptCost int
	ResetTTL   time.Duration
}

// Service implements the account operations.
type Service struct {
	repo   Repository
	mailer mailer.Mailer
	clock  clock.Clock
	opts   Options
	logger *slog.Logger
}

// NewService creates the account service.
func NewService(repo Repository, m mailer.Mailer, clk clock.Clock, opts Options) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = DefaultBcryptCost
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = DefaultResetTokenTTL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Service{repo: repo, mailer: m, clock: clk, opts: opts, logger: slog.Default()}
}

// WithLogger sets the logger for the service
func (s *Service) WithLogger(l *slog.Logger) *Service {
	tmp := *s
	tmp.logger = l
	return &tmp
}

// SessionUser converts a stored user into its session identity.
func SessionUser(u store.User) session.User {
	return session.User{ID: u.ID, Username: u.Username, Email: u.Email, IsAdmin: u.IsAdmin}
}

// Register creates a regular account.
func (s *Service) Register(ctx context.Context, username, email, password string) (session.User, error) {
	username = sanitize.Username(username)
	email = sanitize.Email(email)

	if !sanitize.ValidUsername(username) {
		return session.User{}, apperr.Validation(MsgBadUsername)
	}
	if !sanitize.ValidEmail(email) {
		return session.User{}, apperr.Validation(MsgBadEmail)
	}
	if !sanitize.ValidPassword(password) {
		return session.User{}, apperr.Validation(MsgBadPassword)
	}

	if _, found, err := s.repo.UserByUsername(ctx, username); err != nil {
		return session.User{}, apperr.Internal(err)
	} else if found {
		return session.User{}, apperr.Conflict(MsgUsernameTaken)
	}
	if _, found, err := s.repo.UserByEmail(ctx, email); err != nil {
		return session.User{}, apperr.Internal(err)
	} else if found {
		return session.User{}, apperr.Conflict(MsgEmailTaken)
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return session.User{}, apperr.Internal(err)
	}

	u, err := s.repo.CreateUser(ctx, username, email, hash, false)
	if errors.Is(err, store.ErrDuplicate) {
		// lost a race with a concurrent registration
		return session.User{}, apperr.Conflict(MsgUsernameTaken)
	}
	if err != nil {
		return session.User{}, apperr.Internal(err)
	}

	s.logger.Info("User registered", "username", username, "id", u.ID)
	return SessionUser(u), nil
}

// Login checks credentials. Unknown users and wrong passwords fail the same
// way.
func (s *Service) Login(ctx context.Context, username, password string) (session.User, error) {
	username = sanitize.Username(username)
	if username == "" || password == "" {
		return session.User{}, apperr.Validation(MsgLoginMissing)
	}

	u, found, err := s.repo.UserByUsername(ctx, username)
	if err != nil {
		return session.User{}, apperr.Internal(err)
	}
	if !found || !CheckPassword(u.PasswordHash, password) {
		return session.User{}, apperr.Unauthorized(MsgLoginFailed)
	}
	return SessionUser(u), nil
}

// ResetRequest is the outcome of RequestPasswordReset. ResetURL and Token
// are set only outside production and only when the address is registered.
type ResetRequest struct {
	Message  string `json:"message"`
	ResetURL string `json:"resetUrl,omitempty"`
	Token    string `json:"token,omitempty"`
}

// RequestPasswordReset issues a reset token for the account with the email.
// The response does not reveal whether such an account exists. origin is
// the scheme and host of the request, used when no base URL is configured.
func (s *Service) RequestPasswordReset(ctx context.Context, email, origin string) (ResetRequest, error) {
	email = sanitize.Email(email)
	if !sanitize.ValidEmail(email) {
		return ResetRequest{}, apperr.Validation(MsgBadEmail)
	}

	result := ResetRequest{Message: MsgResetRequested}

	u, found, err := s.repo.UserByEmail(ctx, email)
	if err != nil {
		return ResetRequest{}, apperr.Internal(err)
	}
	if !found {
		return result, nil
	}

	token, err := newToken()
	if err != nil {
		return ResetRequest{}, apperr.Internal(err)
	}
	expires := s.clock.Now().Add(s.opts.ResetTTL)
	if err := s.repo.ReplaceResetToken(ctx, u.ID, HashToken(token), expires); err != nil {
		return ResetRequest{}, apperr.Internal(err)
	}

	resetURL := s.resetURL(origin, token)
	s.logger.Info("Password reset requested", "username", u.Username)

	msg := mailer.Message{
		To:      u.Email,
		Subject: resetEmailSubject,
		Body: fmt.Sprintf("%s님, 아래 링크에서 비밀번호를 재설정해주세요. 링크는 %d분 동안 유효합니다.\n\n%s\n",
			u.Username, int(s.opts.ResetTTL/time.Minute), resetURL),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("Failed to deliver reset email", "username", u.Username, "error", err)
	}

	if !s.opts.Production {
		result.ResetURL = resetURL
		result.Token = token
	}
	return result, nil
}

// RedeemPasswordReset sets a new password with a reset token. Every token
// of the user is invalidated on success.
func (s *Service) RedeemPasswordReset(ctx context.Context, token, password string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperr.Validation(MsgTokenMissing)
	}
	if !sanitize.ValidPassword(password) {
		return "", apperr.Validation(MsgBadPassword)
	}

	userID, found, err := s.repo.ResetTokenUser(ctx, HashToken(token), s.clock.Now())
	if err != nil {
		return "", apperr.Internal(err)
	}
	if !found {
		return "", apperr.InvalidOrExpiredToken(MsgTokenInvalid)
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if err := s.repo.RedeemResetToken(ctx, userID, hash); err != nil {
		return "", apperr.Internal(err)
	}

	s.logger.Info("Password reset completed", "userId", userID)
	return MsgPasswordReset, nil
}

// ChangePassword replaces the password of a signed in user after checking
// the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) (string, error) {
	if !sanitize.ValidPassword(next) {
		return "", apperr.Validation(MsgBadPassword)
	}

	u, found, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if !found {
		return "", apperr.Unauthorized(MsgLoginRequired)
	}
	if !CheckPassword(u.PasswordHash, current) {
		return "", apperr.Validation(MsgCurrentPasswordBad)
	}

	hash, err := s.HashPassword(next)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if _, err := s.repo.SetUserPassword(ctx, userID, hash); err != nil {
		return "", apperr.Internal(err)
	}
	return MsgPasswordChanged, nil
}

// SeedAdmin creates the bootstrap administrator unless the username exists.
func (s *Service) SeedAdmin(ctx context.Context, username, email, password string) (bool, error) {
	hash, err := s.HashPassword(password)
	if err != nil {
		return false, err
	}
	created, err := s.repo.EnsureAdmin(ctx, username, email, hash)
	if err != nil {
		return false, fmt.Errorf("failed to seed admin account: %w", err)
	}
	if created {
		s.logger.Warn("Default admin account created, change its password after the first login", "username", username, "email", email)
	}
	return created, nil
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashToken returns the stored form of a reset token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *Service) resetURL(origin, token string) string {
	base := s.opts.BaseURL
	if base == "" {
		base = strings.TrimRight(origin, "/")
	}
	return base + resetPasswordPath + "?" + url.Values{resetPasswordTokenName: {token}}.Encode()
}
