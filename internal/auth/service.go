package auth

import (
	"context"
	"errors"
	"time"

	"github.com/rashdiman/ridepulse/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

type Service struct {
	secret []byte
	db     db.Querier
}

type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	TeamID string `json:"teamId,omitempty"`
	jwt.RegisteredClaims
}

func NewService(secret string, q db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		db:     q,
	}
}

func validRole(role string) bool {
	return role == RoleRider || role == RoleCoach || role == RoleAdmin
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, TokenResponse, error) {
	if req.Email == "" || req.Name == "" || req.Password == "" {
		return User{}, TokenResponse{}, errors.New("email, name, password required")
	}
	if !validRole(req.Role) {
		return User{}, TokenResponse{}, errors.New("role must be rider, coach or admin")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, TokenResponse{}, err
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		Role:         req.Role,
		TeamID:       req.TeamID,
		PasswordHash: string(hash),
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, name, role, team_id, password_hash)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, user.ID, user.Email, user.Name, user.Role, nullable(user.TeamID), user.PasswordHash)
	if err := row.Scan(&user.CreatedAt); err != nil {
		return User{}, TokenResponse{}, err
	}

	tokens, err := s.GenerateTokens(ctx, identityOf(user))
	if err != nil {
		return User{}, TokenResponse{}, err
	}
	return user, tokens, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (User, TokenResponse, error) {
	user, err := s.userByEmail(ctx, req.Email)
	if err != nil {
		return User{}, TokenResponse{}, errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return User{}, TokenResponse{}, errors.New("invalid credentials")
	}

	tokens, err := s.GenerateTokens(ctx, identityOf(user))
	if err != nil {
		return User{}, TokenResponse{}, err
	}
	return user, tokens, nil
}

func (s *Service) GenerateTokens(ctx context.Context, id Identity) (TokenResponse, error) {
	access, err := s.signToken(id, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := s.signToken(id, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.saveRefreshToken(ctx, refresh, id.UserID, refreshTokenTTL); err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

// ValidateRefreshToken returns the identity bound to a stored, unexpired
// refresh token.
func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (Identity, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return Identity{}, err
	}

	userID, expiresAt, err := s.lookupRefreshToken(ctx, token)
	if err != nil || userID != claims.UserID || time.Now().After(expiresAt) {
		return Identity{}, errors.New("refresh token invalid")
	}
	return identityOfClaims(claims), nil
}

// ValidateAccessToken verifies a token and returns the identity triple.
func (s *Service) ValidateAccessToken(token string) (Identity, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return Identity{}, err
	}
	return identityOfClaims(claims), nil
}

// UserByID loads a user without the password hash.
func (s *Service) UserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, email, name, role, COALESCE(team_id, ''), created_at
		FROM users WHERE id = $1
	`, userID)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.TeamID, &u.CreatedAt); err != nil {
		return User{}, err
	}
	return u, nil
}

// Riders lists rider accounts, optionally filtered by team.
func (s *Service) Riders(ctx context.Context, teamID string) ([]User, error) {
	query := `SELECT id, email, name, role, COALESCE(team_id, ''), created_at FROM users WHERE role = 'rider'`
	args := []any{}
	if teamID != "" {
		query += ` AND team_id = $1`
		args = append(args, teamID)
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.TeamID, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Service) signToken(id Identity, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: id.UserID,
		Email:  id.Email,
		Role:   id.Role,
		TeamID: id.TeamID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func (s *Service) userByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, email, name, role, COALESCE(team_id, ''), password_hash, created_at
		FROM users WHERE email = $1
	`, email)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.TeamID, &u.PasswordHash, &u.CreatedAt); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) saveRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), userID, token, time.Now().Add(ttl))
	return err
}

func (s *Service) lookupRefreshToken(ctx context.Context, token string) (string, time.Time, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, expires_at
		FROM refresh_tokens
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	var userID string
	var expiresAt time.Time
	if err := row.Scan(&userID, &expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return userID, expiresAt, nil
}

func identityOf(u User) Identity {
	return Identity{UserID: u.ID, Email: u.Email, Role: u.Role, TeamID: u.TeamID}
}

func identityOfClaims(c *Claims) Identity {
	return Identity{UserID: c.UserID, Email: c.Email, Role: c.Role, TeamID: c.TeamID}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
