package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Tubbz-alt/adsbrecorder/internal/metrics"
	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/repository"
)

var (
	ErrAuthorizationExpired = errors.New("authorization expired")
	ErrOwnershipViolation   = errors.New("ownership violation")
)

// OwnershipError is returned when a validator rejects access to a resource.
type OwnershipError struct {
	Operation  string
	UserID     int64
	ResourceID string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("user %d may not access %q via %s", e.UserID, e.ResourceID, e.Operation)
}

func (e *OwnershipError) Unwrap() error { return ErrOwnershipViolation }

// OwnershipValidator decides whether a user may access the resource with the given id.
type OwnershipValidator interface {
	Check(ctx context.Context, user models.User, resourceID string) (bool, error)
}

type OwnershipValidatorFunc func(ctx context.Context, user models.User, resourceID string) (bool, error)

func (f OwnershipValidatorFunc) Check(ctx context.Context, user models.User, resourceID string) (bool, error) {
	return f(ctx, user, resourceID)
}

// ValidatorRegistry maps validator names to instances. It is populated during startup and
// sealed before serving; after Seal, lookups take no lock.
type ValidatorRegistry struct {
	mu         sync.RWMutex
	sealed     atomic.Bool
	validators map[string]OwnershipValidator
}

func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{validators: make(map[string]OwnershipValidator)}
}

// Register adds a validator. It panics on a sealed registry or a duplicate name.
func (r *ValidatorRegistry) Register(name string, v OwnershipValidator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		panic(fmt.Sprintf("authz: register %q on sealed validator registry", name))
	}
	if _, dup := r.validators[name]; dup {
		panic(fmt.Sprintf("authz: validator %q registered twice", name))
	}
	r.validators[name] = v
}

func (r *ValidatorRegistry) Resolve(name string) (OwnershipValidator, bool) {
	if r.sealed.Load() {
		v, ok := r.validators[name]
		return v, ok
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[name]
	return v, ok
}

func (r *ValidatorRegistry) Seal() {
	r.mu.Lock()
	r.sealed.Store(true)
	r.mu.Unlock()
}

// UserResolver resolves the current principal to a user.
type UserResolver interface {
	CurrentUser(ctx context.Context) (models.User, error)
}

type repositoryUserResolver struct {
	users repository.UserRepository
}

// NewUserResolver resolves the context identity against the user store. Unknown or
// deactivated users are treated as expired authorization.
func NewUserResolver(users repository.UserRepository) UserResolver {
	return &repositoryUserResolver{users: users}
}

func (r *repositoryUserResolver) CurrentUser(ctx context.Context) (models.User, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return models.User{}, ErrAuthorizationExpired
	}
	user, err := r.users.GetUserByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrAuthorizationExpired
		}
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, ErrAuthorizationExpired
	}
	return user, nil
}

// OwnershipRule names the parameter holding the resource id and the validator that checks it.
type OwnershipRule struct {
	IDParam   string
	Validator string
}

// Params carries the named inputs of a guarded call.
type Params map[string]string

// Interceptor enforces ownership rules declared per operation.
type Interceptor struct {
	mu       sync.RWMutex
	rules    map[string]OwnershipRule
	registry *ValidatorRegistry
	users    UserResolver
	logger   zerolog.Logger
}

func NewInterceptor(registry *ValidatorRegistry, users UserResolver, logger zerolog.Logger) *Interceptor {
	return &Interceptor{
		rules:    make(map[string]OwnershipRule),
		registry: registry,
		users:    users,
		logger:   logger.With().Str("component", "ownership").Logger(),
	}
}

// Declare registers the ownership rule for an operation.
func (i *Interceptor) Declare(operation string, rule OwnershipRule) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.rules[operation] = rule
}

// Check runs the ownership rule of operation against params. A missing rule, id or
// validator lets the call through with a warning.
// TODO: make the missing id/validator case deny once every guarded route declares a rule.
func (i *Interceptor) Check(ctx context.Context, operation string, params Params) error {
	i.mu.RLock()
	rule, declared := i.rules[operation]
	i.mu.RUnlock()

	if !declared || rule.IDParam == "" {
		i.logger.Warn().Str("operation", operation).Msg("no ownership id declared, skipping check")
		metrics.RecordOwnershipCheck(operation, "skipped")
		return nil
	}
	resourceID := params[rule.IDParam]
	if resourceID == "" {
		i.logger.Warn().Str("operation", operation).Str("param", rule.IDParam).
			Msg("ownership id missing from call, skipping check")
		metrics.RecordOwnershipCheck(operation, "skipped")
		return nil
	}

	validator, ok := i.registry.Resolve(rule.Validator)
	if !ok {
		i.logger.Warn().Str("operation", operation).Str("validator", rule.Validator).
			Msg("ownership validator not registered, skipping check")
		metrics.RecordOwnershipCheck(operation, "skipped")
		return nil
	}

	user, err := i.users.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, ErrAuthorizationExpired) {
			metrics.RecordOwnershipCheck(operation, "expired")
		}
		return err
	}

	allowed, err := validator.Check(ctx, user, resourceID)
	if err != nil {
		return fmt.Errorf("ownership check %s: %w", operation, err)
	}
	if !allowed {
		metrics.RecordOwnershipCheck(operation, "denied")
		i.logger.Info().Str("operation", operation).Int64("user_id", user.ID).
			Str("resource_id", resourceID).Msg("ownership check denied")
		return &OwnershipError{Operation: operation, UserID: user.ID, ResourceID: resourceID}
	}
	metrics.RecordOwnershipCheck(operation, "allowed")
	return nil
}

// Guard runs fn only when the ownership check for operation passes.
func Guard[T any](ctx context.Context, i *Interceptor, operation string, params Params, fn func(context.Context) (T, error)) (T, error) {
	if err := i.Check(ctx, operation, params); err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx)
}

// Middleware enforces the ownership rule of operation on an HTTP route. Route variables
// take precedence over query parameters.
func (i *Interceptor) Middleware(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			params := Params{}
			for k, v := range r.URL.Query() {
				if len(v) > 0 {
					params[k] = v[0]
				}
			}
			for k, v := range mux.Vars(r) {
				params[k] = v
			}

			if err := i.Check(r.Context(), operation, params); err != nil {
				switch {
				case errors.Is(err, ErrAuthorizationExpired):
					http.Error(w, "authorization expired", http.StatusUnauthorized)
				case errors.Is(err, ErrOwnershipViolation):
					http.Error(w, "access denied", http.StatusForbidden)
				default:
					i.logger.Error().Err(err).Str("operation", operation).Msg("ownership check failed")
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
