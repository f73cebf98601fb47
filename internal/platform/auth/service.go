package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
	ulid "github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

// ---- Clock & ID ----
type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

type Service struct {
	store  AccountStore
	secret []byte
	ttl    time.Duration
	clock  Clock
	id     IDGen
	log    *zap.Logger
}

func NewService(db *sql.DB, secret []byte, ttl time.Duration, log *zap.Logger) *Service {
	return newService(NewStore(db), secret, ttl, log)
}

func newService(st AccountStore, secret []byte, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{
		store:  st,
		secret: secret,
		ttl:    ttl,
		clock:  realClock{},
		id:     ulidGen{},
		log:    log,
	}
}

// Login は認証に成功すると HS256 の JWT (sub=アカウントID, role) を返す。
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	acct, err := s.store.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", err
	}
	// ユーザーの有無は区別しない
	if acct == nil {
		return "", ErrUnauthenticated("invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", ErrUnauthenticated("invalid username or password")
	}
	if acct.IsDisabled {
		return "", ErrForbidden("account disabled")
	}

	now := s.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  acct.ID,
		"role": acct.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	})
	return token.SignedString(s.secret)
}

// Register は一般利用者を作る。権限は常に user。
func (s *Service) Register(ctx context.Context, username, password string) (AccountResponse, error) {
	a, err := s.create(ctx, username, password, RoleUser)
	if err != nil {
		return AccountResponse{}, err
	}
	return a.Response(), nil
}

// EnsureAdmin は初回起動用。同名のアカウントが無いときだけ admin を作る。
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" {
		return nil
	}
	exists, err := s.store.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if exists != nil {
		return nil
	}
	a, err := s.create(ctx, username, password, RoleAdmin)
	if err != nil {
		return err
	}
	s.log.Info("bootstrap admin created", zap.String("account_id", a.ID), zap.String("username", a.Username))
	return nil
}

func (s *Service) create(ctx context.Context, username, password, role string) (*Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalid("username is required")
	}
	if len(password) < minPasswordLen {
		return nil, ErrInvalid("password must be at least 8 characters")
	}

	exists, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists != nil {
		return nil, ErrConflict("username already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	a := &Account{
		ID:           s.id.NewULID(now),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
	}
	if err := s.store.Create(ctx, a); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return nil, ErrConflict("username already exists")
		}
		return nil, err
	}
	return a, nil
}

// ===== admin =====

func (s *Service) ListAccounts(ctx context.Context) ([]AccountResponse, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AccountResponse, 0, len(list))
	for i := range list {
		out = append(out, list[i].Response())
	}
	return out, nil
}

// ChangeRole は actor が admin のときだけ許可する。自分自身の降格は不可。
func (s *Service) ChangeRole(ctx context.Context, actorRole, actorID, id, role string) (AccountResponse, error) {
	if actorRole != RoleAdmin {
		return AccountResponse{}, ErrForbidden("only admin can change roles")
	}
	if role != RoleAdmin && role != RoleUser {
		return AccountResponse{}, ErrInvalid("role must be admin or user")
	}
	if actorID == id && role != RoleAdmin {
		return AccountResponse{}, ErrConflict("cannot demote yourself")
	}
	a, err := s.mustGet(ctx, id)
	if err != nil {
		return AccountResponse{}, err
	}
	if a.Role != role {
		if _, err := s.store.UpdateRole(ctx, id, role); err != nil {
			return AccountResponse{}, err
		}
		a.Role = role
		s.log.Info("role changed", zap.String("account_id", id), zap.String("role", role), zap.String("by", actorID))
	}
	return a.Response(), nil
}

// SetDisabled は利用停止/再開。停止中のアカウントはログインも貸出もできない。
func (s *Service) SetDisabled(ctx context.Context, actorID, id string, disabled bool) (AccountResponse, error) {
	if actorID == id && disabled {
		return AccountResponse{}, ErrConflict("cannot disable yourself")
	}
	a, err := s.mustGet(ctx, id)
	if err != nil {
		return AccountResponse{}, err
	}
	if a.IsDisabled != disabled {
		if _, err := s.store.SetDisabled(ctx, id, disabled); err != nil {
			return AccountResponse{}, err
		}
		a.IsDisabled = disabled
		s.log.Info("account state changed", zap.String("account_id", id), zap.Bool("disabled", disabled), zap.String("by", actorID))
	}
	return a.Response(), nil
}

func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrConflict("cannot delete yourself")
	}
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1451 { // foreign key: 貸出中の機器がある
			return ErrConflict("account still holds units")
		}
		return err
	}
	if n == 0 {
		return ErrNotFound("account not found")
	}
	s.log.Info("account deleted", zap.String("account_id", id), zap.String("by", actorID))
	return nil
}

func (s *Service) mustGet(ctx context.Context, id string) (*Account, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound("account not found")
	}
	return a, nil
}
