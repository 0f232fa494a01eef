package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/mpart-uis/grant-scout/internal/models"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidCreds = errors.New("invalid credentials")

	jwtSecretOnce    sync.Once
	jwtSecretRuntime []byte
	jwtSecretErr     error

	validate = validator.New()
)

func jwtSecretFromEnv() ([]byte, error) {
	jwtSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
		if secret != "" {
			jwtSecretRuntime = []byte(secret)
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			jwtSecretErr = fmt.Errorf("failed to generate JWT fallback secret: %w", err)
			return
		}

		jwtSecretRuntime = []byte(base64.RawURLEncoding.EncodeToString(buf))
		log.Print("JWT_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if jwtSecretErr != nil {
		return nil, jwtSecretErr
	}
	if len(jwtSecretRuntime) == 0 {
		return nil, errors.New("JWT secret unavailable")
	}

	return jwtSecretRuntime, nil
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

func (s *Service) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid signup request: %w", err)
	}

	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", req.Email).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}

	var user User
	err = s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, name, is_admin, created_at
	`, uuid.New(), req.Email, string(hash), req.Name).Scan(
		&user.ID, &user.Email, &user.Name, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}

	token, err := generateToken(user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{Token: token, User: user}, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid login request: %w", err)
	}

	var user User
	err := s.db.QueryRow(ctx,
		"SELECT id, email, name, password_hash, is_admin, created_at FROM users WHERE email = $1", req.Email,
	).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrInvalidCreds
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCreds
	}

	token, err := generateToken(user.ID)
	if err != nil {
		return nil, err
	}

	user.PasswordHash = ""
	return &AuthResponse{Token: token, User: user}, nil
}

func generateToken(userID uuid.UUID) (string, error) {
	secretKey, err := jwtSecretFromEnv()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey)
}

// Saved matches

func (s *Service) SaveMatch(ctx context.Context, userID uuid.UUID, grantID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO saved_matches (user_id, grant_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, grant_id) DO NOTHING
	`, userID, grantID)
	return err
}

func (s *Service) UnsaveMatch(ctx context.Context, userID uuid.UUID, grantID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM saved_matches
		WHERE user_id = $1 AND grant_id = $2
	`, userID, grantID)
	return err
}

// GetSavedMatches returns the latest match for each grant the user has
// saved, most recently saved first.
func (s *Service) GetSavedMatches(ctx context.Context, userID uuid.UUID) ([]models.Match, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (m.grant_id)
			m.grant_id, m.grant_title, m.match_score, m.keyword_score, m.research_depth,
			m.recommended_lead, m.rationale, m.alignment_points, m.recommended_action,
			m.analysis, m.generated_at
		FROM matches m
		JOIN saved_matches sm ON sm.grant_id = m.grant_id
		WHERE sm.user_id = $1
		ORDER BY m.grant_id, m.generated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := []models.Match{}
	for rows.Next() {
		var m models.Match
		var depth string
		var analysis []byte
		if err := rows.Scan(
			&m.GrantID, &m.GrantTitle, &m.MatchScore, &m.KeywordScore, &depth,
			&m.RecommendedLead, &m.Rationale, &m.AlignmentPoints, &m.RecommendedAction,
			&analysis, &m.GeneratedAt,
		); err != nil {
			return nil, err
		}
		m.ResearchDepth = models.ResearchDepth(depth)
		if len(analysis) > 0 {
			m.Analysis = &models.AnalysisResult{}
			if err := json.Unmarshal(analysis, m.Analysis); err != nil {
				return nil, fmt.Errorf("decoding analysis for %s: %w", m.GrantID, err)
			}
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
