package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUserInactive       = errors.New("user is inactive")
)

type UserRepository interface {
	CreateUser(ctx context.Context, username, password string, authorities []models.Authority) (models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (models.User, error)
	GetUserByID(ctx context.Context, userID int64) (models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (u *userRepository) CreateUser(ctx context.Context, username, password string, authorities []models.Authority) (models.User, error) {
	user, err := newUser(username, password, authorities)
	if err != nil {
		return models.User{}, err
	}

	query := `
		INSERT INTO adsb.users (username, password_hash, is_active, authorities)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	err = u.db.QueryRowContext(ctx, query, user.Username, user.PasswordHash, user.IsActive,
		pq.Array(authorityStrings(user.Authorities))).Scan(&user.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.User{}, ErrUsernameTaken
		}
		return models.User{}, err
	}
	return user, nil
}

func (u *userRepository) AuthenticateUser(ctx context.Context, username, password string) (models.User, error) {
	const query = `
		SELECT id, username, password_hash, is_active, authorities
		FROM adsb.users
		WHERE username = $1`
	user, err := scanUser(u.db.QueryRowContext(ctx, query, strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	return checkCredentials(user, password)
}

func (u *userRepository) GetUserByID(ctx context.Context, userID int64) (models.User, error) {
	const query = `
		SELECT id, username, password_hash, is_active, authorities
		FROM adsb.users
		WHERE id = $1`
	user, err := scanUser(u.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func scanUser(scanner interface {
	Scan(dest ...interface{}) error
}) (models.User, error) {
	var (
		user        models.User
		authorities pq.StringArray
	)
	if err := scanner.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsActive, &authorities); err != nil {
		return models.User{}, err
	}
	user.Authorities = toAuthorities(authorities)
	return user, nil
}

// MemoryUserRepository backs the memory storage driver.
type MemoryUserRepository struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[int64]models.User)}
}

func (m *MemoryUserRepository) CreateUser(_ context.Context, username, password string, authorities []models.Authority) (models.User, error) {
	user, err := newUser(username, password, authorities)
	if err != nil {
		return models.User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == user.Username {
			return models.User{}, ErrUsernameTaken
		}
	}
	m.nextID++
	user.ID = m.nextID
	m.users[user.ID] = user
	return user, nil
}

func (m *MemoryUserRepository) AuthenticateUser(_ context.Context, username, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	m.mu.RLock()
	var (
		found models.User
		ok    bool
	)
	for _, user := range m.users {
		if user.Username == username {
			found, ok = user, true
			break
		}
	}
	m.mu.RUnlock()

	if !ok {
		return models.User{}, ErrInvalidCredentials
	}
	return checkCredentials(found, password)
}

func (m *MemoryUserRepository) GetUserByID(_ context.Context, userID int64) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

// SetActive toggles whether the user may still act on issued tokens.
func (m *MemoryUserRepository) SetActive(userID int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.IsActive = active
	m.users[userID] = user
	return nil
}

func newUser(username, password string, authorities []models.Authority) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.User{}, errors.New("username and password are required")
	}
	if len(authorities) == 0 {
		authorities = models.DefaultAuthorities
	}
	for _, a := range authorities {
		if !models.IsValidAuthority(a) {
			return models.User{}, errors.New("invalid authorities")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	return models.User{
		Username:     username,
		PasswordHash: string(hash),
		IsActive:     true,
		Authorities:  append([]models.Authority(nil), authorities...),
	}, nil
}

func checkCredentials(user models.User, password string) (models.User, error) {
	if !user.IsActive {
		return models.User{}, ErrUserInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func authorityStrings(authorities []models.Authority) []string {
	result := make([]string, 0, len(authorities))
	for _, a := range authorities {
		result = append(result, string(a))
	}
	return result
}

func toAuthorities(values []string) []models.Authority {
	result := make([]models.Authority, 0, len(values))
	for _, v := range values {
		a := models.Authority(v)
		if models.IsValidAuthority(a) {
			result = append(result, a)
		}
	}
	return result
}
