package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vibast-solutions/ms-go-filedrop/app/dto"
	"github.com/vibast-solutions/ms-go-filedrop/app/entity"
	"github.com/vibast-solutions/ms-go-filedrop/app/repository"
	"github.com/vibast-solutions/ms-go-filedrop/app/storage"
	"github.com/vibast-solutions/ms-go-filedrop/config"

	"github.com/sirupsen/logrus"
)

const (
	defaultTransferTTL     = 7 * 24 * time.Hour
	defaultMaxCodeAttempts = 32
	maxDisplayNameLength   = 255
)

type transferRepository interface {
	Create(ctx context.Context, transfer *entity.FileTransfer) error
	FindByCode(ctx context.Context, code string) (*entity.FileTransfer, error)
	CodeExists(ctx context.Context, code string) (bool, error)
}

type TransferService interface {
	Upload(ctx context.Context, in UploadInput) (*dto.UploadResult, error)
	Download(ctx context.Context, code string) (*dto.DownloadResult, error)
}

type UploadInput struct {
	Name    string
	Size    int64
	Content io.Reader
}

type TransferServiceOption func(*transferService)

type transferService struct {
	repo        transferRepository
	store       storage.BlobStore
	ttl         time.Duration
	maxAttempts int
	clock       Clock
	newCode     CodeGenerator
}

func NewTransferService(
	repo transferRepository,
	store storage.BlobStore,
	cfg config.TransferConfig,
	opts ...TransferServiceOption,
) TransferService {
	svc := &transferService{
		repo:        repo,
		store:       store,
		ttl:         cfg.TTL,
		maxAttempts: cfg.MaxCodeAttempts,
		clock:       RealClock{},
		newCode:     RandomCode,
	}
	if svc.ttl <= 0 {
		svc.ttl = defaultTransferTTL
	}
	if svc.maxAttempts <= 0 {
		svc.maxAttempts = defaultMaxCodeAttempts
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithTransferClock(clock Clock) TransferServiceOption {
	return func(s *transferService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithCodeGenerator(gen CodeGenerator) TransferServiceOption {
	return func(s *transferService) {
		if gen != nil {
			s.newCode = gen
		}
	}
}

// Upload stores the content, then claims a free code. The blob is removed
// again if no record could be written for it.
func (s *transferService) Upload(ctx context.Context, in UploadInput) (*dto.UploadResult, error) {
	if in.Content == nil {
		return nil, ErrBadRequest
	}

	name := DisplayName(in.Name)
	// MySQL DATETIME(6) keeps microseconds; truncating keeps the returned
	// expiry identical to what a later read sees.
	createdAt := s.clock.Now().UTC().Truncate(time.Microsecond)
	key := storage.NewKey(createdAt, name)

	if err := s.store.Put(ctx, key, in.Content, in.Size); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorage, err.Error())
	}

	transfer := &entity.FileTransfer{
		StorageKey: key,
		Name:       name,
		Size:       in.Size,
		CreatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(s.ttl),
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			s.discard(key)
			return nil, err
		}

		exists, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			s.discard(key)
			return nil, fmt.Errorf("%w: %s", ErrStorage, err.Error())
		}
		if exists {
			continue
		}

		transfer.Code = code
		err = s.repo.Create(ctx, transfer)
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		if err != nil {
			s.discard(key)
			return nil, fmt.Errorf("%w: %s", ErrStorage, err.Error())
		}

		return &dto.UploadResult{
			Code:      transfer.Code,
			Filename:  transfer.Name,
			Size:      transfer.Size,
			ExpiresAt: transfer.ExpiresAt,
		}, nil
	}

	s.discard(key)
	return nil, ErrCodeSpaceExhausted
}

func (s *transferService) Download(ctx context.Context, code string) (*dto.DownloadResult, error) {
	if !IsValidCode(code) {
		return nil, ErrNotFound
	}

	transfer, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, ErrNotFound
	}
	if transfer.IsExpired(s.clock.Now()) {
		return nil, ErrGone
	}

	content, err := s.store.Open(ctx, transfer.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorage, err.Error())
	}

	return &dto.DownloadResult{
		Name:    transfer.Name,
		Size:    transfer.Size,
		Content: content,
	}, nil
}

func (s *transferService) discard(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.Delete(ctx, key); err != nil {
		logrus.WithError(err).WithField("storage_key", key).Warn("failed to remove orphaned blob")
	}
}

// DisplayName strips any client supplied directory and bounds the length to
// what the name column holds.
func DisplayName(name string) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "file"
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		runes := []rune(name)
		name = string(runes[:maxDisplayNameLength])
	}
	return name
}
