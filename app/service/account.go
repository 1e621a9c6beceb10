package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-filedrop/app/dto"
	"github.com/vibast-solutions/ms-go-filedrop/app/entity"
	"github.com/vibast-solutions/ms-go-filedrop/app/mailer"
	"github.com/vibast-solutions/ms-go-filedrop/app/repository"
	"github.com/vibast-solutions/ms-go-filedrop/app/types"
	"github.com/vibast-solutions/ms-go-filedrop/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	msgEmailTaken    = "A user with that email already exists."
	msgUsernameTaken = "A user with that username already exists."
)

type userRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*entity.User, error)
	List(ctx context.Context, search string) ([]*entity.User, error)
	MarkEmailVerified(ctx context.Context, userID uint64, token string) (int64, error)
	Update(ctx context.Context, user *entity.User) error
	UpdateLastLogin(ctx context.Context, userID uint64, lastLogin time.Time) error
}

type sessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error
	FindActiveByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*entity.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error)
	DeleteByUserID(ctx context.Context, userID uint64) error
}

type AccountService interface {
	Register(ctx context.Context, req *types.RegisterRequest) (*dto.RegisterResult, error)
	VerifyEmail(ctx context.Context, token string) error
	Login(ctx context.Context, req *types.LoginRequest) (*dto.LoginResult, error)
	Authenticate(ctx context.Context, sessionToken string) (*entity.User, error)
	Logout(ctx context.Context, sessionToken string) error
	RequestPasswordReset(ctx context.Context, req *types.PasswordResetRequest) error
	CheckPasswordResetToken(ctx context.Context, uidb64, token string) (*entity.User, error)
	ConfirmPasswordReset(ctx context.Context, req *types.PasswordResetConfirmRequest) error

	CreateUser(ctx context.Context, in CreateUserInput) (*entity.User, error)
	ListUsers(ctx context.Context, search string) ([]*entity.User, error)
	VerifyUserByEmail(ctx context.Context, email string) (*entity.User, error)
}

// CreateUserInput is the administrative path for adding accounts without the
// verification email.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Staff    bool
	Verified bool
}

type AsyncRunner func(task func())

type AccountServiceOption func(*accountService)

type accountService struct {
	userRepo    userRepository
	sessionRepo sessionRepository
	mailer      mailer.Mailer
	cfg         *config.Config
	resetTokens *resetTokenSigner
	clock       Clock
	asyncRunner AsyncRunner
	bcryptCost  int
	dummyHash   func() []byte
}

func NewAccountService(
	userRepo userRepository,
	sessionRepo sessionRepository,
	m mailer.Mailer,
	cfg *config.Config,
	opts ...AccountServiceOption,
) AccountService {
	svc := &accountService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		mailer:      m,
		cfg:         cfg,
		resetTokens: newResetTokenSigner(cfg.App.SecretKey, cfg.Tokens.ResetTTL),
		clock:       RealClock{},
		asyncRunner: func(task func()) {
			go task()
		},
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(svc)
	}

	cost := svc.bcryptCost
	svc.dummyHash = sync.OnceValue(func() []byte {
		hash, _ := bcrypt.GenerateFromPassword([]byte("filedrop-timing-equalizer"), cost)
		return hash
	})
	return svc
}

func WithAsyncRunner(runner AsyncRunner) AccountServiceOption {
	return func(s *accountService) {
		if runner != nil {
			s.asyncRunner = runner
		}
	}
}

func WithClock(clock Clock) AccountServiceOption {
	return func(s *accountService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithBcryptCost overrides the hashing cost; values outside bcrypt's range are
// ignored.
func WithBcryptCost(cost int) AccountServiceOption {
	return func(s *accountService) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

func (s *accountService) Register(ctx context.Context, req *types.RegisterRequest) (*dto.RegisterResult, error) {
	if err := s.validateNewUser(ctx, req); err != nil {
		return nil, err
	}

	token := uuid.New().String()
	user, err := s.createUser(ctx, req, false, false, token)
	if err != nil {
		return nil, err
	}

	link := s.cfg.App.BaseURL + "/verify-email/" + token + "/"
	result := &dto.RegisterResult{User: user, VerificationToken: token, VerificationLink: link}

	msg, err := mailer.VerificationEmail(user.Email, user.Username, link)
	if err != nil {
		return result, fmt.Errorf("%w: %s", ErrMailDelivery, err.Error())
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return result, fmt.Errorf("%w: %s", ErrMailDelivery, err.Error())
	}

	return result, nil
}

func (s *accountService) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}

	user, err := s.userRepo.FindByVerificationToken(ctx, token)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidToken
	}

	// Conditional on the token so concurrent requests consume it once.
	affected, err := s.userRepo.MarkEmailVerified(ctx, user.ID, token)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidToken
	}

	return nil
}

func (s *accountService) Login(ctx context.Context, req *types.LoginRequest) (*dto.LoginResult, error) {
	user, err := s.userRepo.FindByCanonicalEmail(ctx, CanonicalizeEmail(req.Email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(req.Password))
		return nil, ErrInvalidCredentials
	}

	if !user.EmailVerified {
		return nil, ErrNotVerified
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	sessionToken, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &entity.Session{
		UserID:     user.ID,
		TokenHash:  HashToken(sessionToken),
		Persistent: req.Remember(),
		ExpiresAt:  now.Add(s.cfg.Session.TTL),
		CreatedAt:  now,
	}
	if err = s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.asyncRunner(func() {
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if updateErr := s.userRepo.UpdateLastLogin(updateCtx, user.ID, now); updateErr != nil {
			logrus.WithError(updateErr).WithField("user_id", user.ID).Error("failed to update last_login")
		}
	})

	return &dto.LoginResult{
		User:         user,
		SessionToken: sessionToken,
		Persistent:   session.Persistent,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

func (s *accountService) Authenticate(ctx context.Context, sessionToken string) (*entity.User, error) {
	if sessionToken == "" {
		return nil, ErrSessionInvalid
	}

	session, err := s.sessionRepo.FindActiveByTokenHash(ctx, HashToken(sessionToken), s.clock.Now())
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionInvalid
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, ErrSessionInvalid
	}

	return user, nil
}

func (s *accountService) Logout(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	_, err := s.sessionRepo.DeleteByTokenHash(ctx, HashToken(sessionToken))
	return err
}

func (s *accountService) RequestPasswordReset(ctx context.Context, req *types.PasswordResetRequest) error {
	user, err := s.userRepo.FindByCanonicalEmail(ctx, CanonicalizeEmail(req.Email))
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}

	token, err := s.resetTokens.Issue(user, s.clock.Now())
	if err != nil {
		return err
	}

	link := s.cfg.App.BaseURL + "/password-reset-confirm/" + EncodeUID(user.ID) + "/" + token + "/"
	msg, err := mailer.PasswordResetEmail(user.Email, user.Username, link)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMailDelivery, err.Error())
	}
	if err = s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %s", ErrMailDelivery, err.Error())
	}

	return nil
}

func (s *accountService) CheckPasswordResetToken(ctx context.Context, uidb64, token string) (*entity.User, error) {
	id, err := DecodeUID(uidb64)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}

	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidOrExpiredToken
	}

	if err = s.resetTokens.Verify(token, user, s.clock.Now()); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *accountService) ConfirmPasswordReset(ctx context.Context, req *types.PasswordResetConfirmRequest) error {
	user, err := s.CheckPasswordResetToken(ctx, req.UIDB64, req.Token)
	if err != nil {
		return err
	}

	verr := types.NewValidationError()
	if err = req.Validate(); err != nil {
		existing, ok := types.AsValidationError(err)
		if !ok {
			return err
		}
		verr = existing
	}
	if !verr.HasErrors() {
		if policyErr := s.cfg.Password.Policy.Validate(req.NewPassword1); policyErr != nil {
			verr.Add("new_password2", policyErr.Error())
		}
	}
	if verr.HasErrors() {
		return verr
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword1), s.bcryptCost)
	if err != nil {
		return err
	}

	user.PasswordHash = string(hash)
	if err = s.userRepo.Update(ctx, user); err != nil {
		return err
	}

	return s.sessionRepo.DeleteByUserID(ctx, user.ID)
}

func (s *accountService) CreateUser(ctx context.Context, in CreateUserInput) (*entity.User, error) {
	req := &types.RegisterRequest{
		Username:  in.Username,
		Email:     in.Email,
		Password1: in.Password,
		Password2: in.Password,
	}
	if err := s.validateNewUser(ctx, req); err != nil {
		return nil, err
	}

	var token string
	if !in.Verified {
		token = uuid.New().String()
	}
	return s.createUser(ctx, req, in.Staff, in.Verified, token)
}

func (s *accountService) ListUsers(ctx context.Context, search string) ([]*entity.User, error) {
	return s.userRepo.List(ctx, strings.TrimSpace(search))
}

func (s *accountService) VerifyUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	user, err := s.userRepo.FindByCanonicalEmail(ctx, CanonicalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if user.EmailVerified {
		return user, nil
	}

	user.EmailVerified = true
	user.VerificationToken = sql.NullString{}
	if err = s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// validateNewUser runs shape, policy and uniqueness checks, collecting every
// message into one ValidationError.
func (s *accountService) validateNewUser(ctx context.Context, req *types.RegisterRequest) error {
	verr := types.NewValidationError()
	if err := req.Validate(); err != nil {
		existing, ok := types.AsValidationError(err)
		if !ok {
			return err
		}
		verr = existing
	}

	if len(verr.Get("password1")) == 0 && len(verr.Get("password2")) == 0 {
		if err := s.cfg.Password.Policy.Validate(req.Password1); err != nil {
			verr.Add("password2", err.Error())
		}
	}

	if len(verr.Get("email")) == 0 {
		existing, err := s.userRepo.FindByCanonicalEmail(ctx, CanonicalizeEmail(req.Email))
		if err != nil {
			return err
		}
		if existing != nil {
			verr.Add("email", msgEmailTaken)
		}
	}

	if len(verr.Get("username")) == 0 {
		existing, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(req.Username))
		if err != nil {
			return err
		}
		if existing != nil {
			verr.Add("username", msgUsernameTaken)
		}
	}

	return verr.Err()
}

func (s *accountService) createUser(ctx context.Context, req *types.RegisterRequest, staff, verified bool, token string) (*entity.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password1), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	email := strings.TrimSpace(req.Email)
	user := &entity.User{
		Username:       strings.TrimSpace(req.Username),
		Email:          email,
		CanonicalEmail: CanonicalizeEmail(email),
		PasswordHash:   string(hash),
		IsActive:       true,
		IsStaff:        staff,
		EmailVerified:  verified,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if token != "" {
		user.VerificationToken = sql.NullString{String: token, Valid: true}
	}

	if err = s.userRepo.Create(ctx, user); err != nil {
		// A concurrent registration can pass the lookup and lose at the index.
		var dupErr *repository.DuplicateError
		if errors.As(err, &dupErr) {
			if strings.Contains(dupErr.Message, "username") {
				return nil, types.FieldError("username", msgUsernameTaken)
			}
			return nil, types.FieldError("email", msgEmailTaken)
		}
		return nil, err
	}

	return user, nil
}
