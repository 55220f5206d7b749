package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"universo-edu/internal/domain"
	httpinfra "universo-edu/internal/infra/http"
)

// ErrInvalidCredentials возвращается при неверной паре почта/пароль.
var ErrInvalidCredentials = errors.New("credenciales inválidas")

const (
	tokenTTL   = 24 * time.Hour
	bcryptCost = 12
)

// Service аутентифицирует учителей и администраторов.
type Service struct {
	users  domain.UserRepo
	secret string
}

// NewService создаёт сервис аутентификации.
func NewService(users domain.UserRepo, secret string) *Service {
	return &Service{users: users, secret: secret}
}

// Login проверяет пароль и выдаёт JWT на 24 часа.
func (s *Service) Login(email, password string) (string, domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", domain.User{}, fmt.Errorf("%w: correo y contraseña son requeridos", domain.ErrValidation)
	}
	user, err := s.users.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.User{}, ErrInvalidCredentials
		}
		return "", domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", domain.User{}, ErrInvalidCredentials
	}

	now := time.Now()
	claims := httpinfra.Claims{
		UserID: user.ID,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.secret))
	if err != nil {
		return "", domain.User{}, fmt.Errorf("подпись токена: %w", err)
	}
	return token, user, nil
}

// HashPassword хэширует пароль для нового пользователя.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("%w: la contraseña debe tener al menos 8 caracteres", domain.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Register создаёт учителя или администратора с хэшированным паролем.
func (s *Service) Register(email, password, name string, role domain.UserRole) (domain.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	return s.users.CreateUser(domain.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		Active:       true,
	})
}
