package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poultryledger/backend/internal/cache"
	"poultryledger/backend/internal/domain"
	"poultryledger/backend/internal/lock"
	"poultryledger/backend/internal/store"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError maps request fields (json names) to the rule they broke.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field string, rule string) error {
	return &ValidationError{Fields: map[string]string{field: rule}}
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Locker      lock.Locker
	Snapshots   cache.SnapshotCache
	SnapshotTTL time.Duration
	Logger      *zap.Logger
	Now         func() time.Time
}

type Service struct {
	repo        store.Repository
	locker      lock.Locker
	snapshots   cache.SnapshotCache
	snapshotTTL time.Duration
	logger      *zap.Logger
	now         func() time.Time
	validate    *validator.Validate
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Locker == nil {
		opts.Locker = lock.NewLocalLocker(15 * time.Second)
	}
	if opts.Snapshots == nil {
		opts.Snapshots = cache.NoopSnapshotCache{}
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	return &Service{
		repo:        repo,
		locker:      opts.Locker,
		snapshots:   opts.Snapshots,
		snapshotTTL: opts.SnapshotTTL,
		logger:      opts.Logger,
		now:         func() time.Time { return opts.Now().UTC() },
		validate:    validate,
	}
}

func (s *Service) userID(ctx context.Context) (string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return "", ErrUnauthorized
	}
	return actor.UserID, nil
}

// check runs struct-tag validation and folds any extra field errors into the
// same ValidationError.
func (s *Service) check(req any, extra map[string]string) error {
	fields := make(map[string]string)
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
	}
	for k, v := range extra {
		if _, exists := fields[k]; !exists {
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Validate checks a request struct against its tags only.
func (s *Service) Validate(req any) error {
	return s.check(req, nil)
}

const (
	moneyPlaces  = 2
	weightPlaces = 3
)

// overScale reports a value with more decimal places than the store keeps.
func overScale(d decimal.Decimal, places int32) bool {
	return !d.Equal(d.Truncate(places))
}

// checkScale flags money and weight fields that would be rounded on save.
func checkScale(extra map[string]string, money map[string]decimal.Decimal, weights map[string]decimal.Decimal) {
	for field, v := range money {
		if _, taken := extra[field]; !taken && overScale(v, moneyPlaces) {
			extra[field] = "scale"
		}
	}
	for field, v := range weights {
		if _, taken := extra[field]; !taken && overScale(v, weightPlaces) {
			extra[field] = "scale"
		}
	}
}

func parseDate(value string) (time.Time, error) {
	return time.ParseInLocation(domain.DateLayout, strings.TrimSpace(value), time.UTC)
}

// mustDate parses a date already checked by the datetime validator.
func mustDate(value string) time.Time {
	t, _ := parseDate(value)
	return t
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// mutate runs fn atomically while holding the lot locks of productTypes,
// then drops the user's cached dashboard.
func (s *Service) mutate(ctx context.Context, userID string, productTypes []string, fn func(tx store.Repository) error) error {
	keys := make([]string, 0, len(productTypes))
	for _, t := range productTypes {
		if t != "" {
			keys = append(keys, lock.LotKey(userID, t))
		}
	}
	return s.mutateLocked(ctx, userID, keys, fn)
}

func (s *Service) mutateLocked(ctx context.Context, userID string, keys []string, fn func(tx store.Repository) error) error {
	release, err := lock.ObtainAll(ctx, s.locker, keys...)
	if err != nil {
		return err
	}
	defer release()

	if err := s.repo.Atomically(ctx, fn); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if err := s.snapshots.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("invalidate snapshot", zap.String("user_id", userID), zap.Error(err))
	}
}
