package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/platform/database"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. Inside WithTx every call runs on
// the transaction and content rows are read FOR UPDATE.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    database.Querier
	inTx bool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool, q: pool}, nil
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PostgresStore{pool: s.pool, q: tx, inTx: true})
	})
}

func (s *PostgresStore) GetContentProgress(ctx context.Context, userID, contentID string) (ContentProgress, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `SELECT user_id, content_id, watch_time, is_completed, completed_at, updated_at
		 FROM content_progress
		 WHERE user_id = $1 AND content_id = $2`
	if s.inTx {
		query += ` FOR UPDATE`
	}

	var p ContentProgress
	err := s.q.QueryRow(ctx, query, userID, contentID).
		Scan(&p.UserID, &p.ContentID, &p.WatchTime, &p.IsCompleted, &p.CompletedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ContentProgress{}, false, nil
	}
	if err != nil {
		return ContentProgress{}, false, fmt.Errorf("query content progress: %w", err)
	}
	return p, true, nil
}

// SaveContentProgress upserts the row. The merge happens in SQL so two
// concurrent first writes still keep the larger watch time.
func (s *PostgresStore) SaveContentProgress(ctx context.Context, p ContentProgress) (ContentProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	var out ContentProgress
	err := s.q.QueryRow(ctx,
		`INSERT INTO content_progress (user_id, content_id, watch_time, is_completed, completed_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, content_id) DO UPDATE SET
		   watch_time   = GREATEST(content_progress.watch_time, EXCLUDED.watch_time),
		   is_completed = content_progress.is_completed OR EXCLUDED.is_completed,
		   completed_at = COALESCE(content_progress.completed_at, EXCLUDED.completed_at),
		   updated_at   = EXCLUDED.updated_at
		 RETURNING user_id, content_id, watch_time, is_completed, completed_at, updated_at`,
		p.UserID, p.ContentID, p.WatchTime, p.IsCompleted, p.CompletedAt, updatedAt,
	).Scan(&out.UserID, &out.ContentID, &out.WatchTime, &out.IsCompleted, &out.CompletedAt, &out.UpdatedAt)
	if err != nil {
		return ContentProgress{}, fmt.Errorf("upsert content progress: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListContentProgress(ctx context.Context, userID string) (map[string]ContentProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.q.Query(ctx,
		`SELECT user_id, content_id, watch_time, is_completed, completed_at, updated_at
		 FROM content_progress
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query content progress: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ContentProgress)
	for rows.Next() {
		var p ContentProgress
		if err := rows.Scan(&p.UserID, &p.ContentID, &p.WatchTime, &p.IsCompleted, &p.CompletedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan content progress: %w", err)
		}
		out[p.ContentID] = p
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetChapterProgress(ctx context.Context, userID, chapterID string) (ChapterProgress, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var p ChapterProgress
	err := s.q.QueryRow(ctx,
		`SELECT user_id, chapter_id, is_completed, completed_at
		 FROM chapter_progress
		 WHERE user_id = $1 AND chapter_id = $2`,
		userID, chapterID,
	).Scan(&p.UserID, &p.ChapterID, &p.IsCompleted, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChapterProgress{}, false, nil
	}
	if err != nil {
		return ChapterProgress{}, false, fmt.Errorf("query chapter progress: %w", err)
	}
	return p, true, nil
}

func (s *PostgresStore) SaveChapterProgress(ctx context.Context, p ChapterProgress) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.q.Exec(ctx,
		`INSERT INTO chapter_progress (user_id, chapter_id, is_completed, completed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, chapter_id) DO UPDATE SET
		   is_completed = chapter_progress.is_completed OR EXCLUDED.is_completed,
		   completed_at = COALESCE(chapter_progress.completed_at, EXCLUDED.completed_at)`,
		p.UserID, p.ChapterID, p.IsCompleted, p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert chapter progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChapterProgress(ctx context.Context, userID string) (map[string]ChapterProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.q.Query(ctx,
		`SELECT user_id, chapter_id, is_completed, completed_at
		 FROM chapter_progress
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chapter progress: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ChapterProgress)
	for rows.Next() {
		var p ChapterProgress
		if err := rows.Scan(&p.UserID, &p.ChapterID, &p.IsCompleted, &p.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan chapter progress: %w", err)
		}
		out[p.ChapterID] = p
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetModuleProgress(ctx context.Context, userID, moduleID string) (ModuleProgress, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var p ModuleProgress
	err := s.q.QueryRow(ctx,
		`SELECT user_id, module_id, is_completed, completed_at
		 FROM module_progress
		 WHERE user_id = $1 AND module_id = $2`,
		userID, moduleID,
	).Scan(&p.UserID, &p.ModuleID, &p.IsCompleted, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ModuleProgress{}, false, nil
	}
	if err != nil {
		return ModuleProgress{}, false, fmt.Errorf("query module progress: %w", err)
	}
	return p, true, nil
}

func (s *PostgresStore) SaveModuleProgress(ctx context.Context, p ModuleProgress) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.q.Exec(ctx,
		`INSERT INTO module_progress (user_id, module_id, is_completed, completed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, module_id) DO UPDATE SET
		   is_completed = module_progress.is_completed OR EXCLUDED.is_completed,
		   completed_at = COALESCE(module_progress.completed_at, EXCLUDED.completed_at)`,
		p.UserID, p.ModuleID, p.IsCompleted, p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert module progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListModuleProgress(ctx context.Context, userID string) (map[string]ModuleProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.q.Query(ctx,
		`SELECT user_id, module_id, is_completed, completed_at
		 FROM module_progress
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query module progress: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ModuleProgress)
	for rows.Next() {
		var p ModuleProgress
		if err := rows.Scan(&p.UserID, &p.ModuleID, &p.IsCompleted, &p.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan module progress: %w", err)
		}
		out[p.ModuleID] = p
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddQuizResult(ctx context.Context, r QuizResult) (QuizResult, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	answers := r.Answers
	if answers == nil {
		answers = map[string]catalog.Answer{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return QuizResult{}, fmt.Errorf("marshal answers: %w", err)
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO quiz_results (id, user_id, quiz_id, score, passed, answers, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		r.ID, r.UserID, r.QuizID, r.Score, r.Passed, string(data), r.CreatedAt,
	)
	if err != nil {
		return QuizResult{}, fmt.Errorf("insert quiz result: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) HasPassedQuiz(ctx context.Context, userID, quizID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var passed bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM quiz_results WHERE user_id = $1 AND quiz_id = $2 AND passed
		 )`,
		userID, quizID,
	).Scan(&passed)
	if err != nil {
		return false, fmt.Errorf("query quiz pass: %w", err)
	}
	return passed, nil
}

func (s *PostgresStore) ListQuizResults(ctx context.Context, userID, quizID string) ([]QuizResult, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.q.Query(ctx,
		`SELECT id, user_id, quiz_id, score, passed, answers, created_at
		 FROM quiz_results
		 WHERE user_id = $1 AND quiz_id = $2
		 ORDER BY created_at DESC, id DESC`,
		userID, quizID,
	)
	if err != nil {
		return nil, fmt.Errorf("query quiz results: %w", err)
	}
	defer rows.Close()

	var out []QuizResult
	for rows.Next() {
		var (
			r    QuizResult
			data []byte
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.QuizID, &r.Score, &r.Passed, &data, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quiz result: %w", err)
		}
		if err := json.Unmarshal(data, &r.Answers); err != nil {
			return nil, fmt.Errorf("decode quiz answers: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListCertificates(ctx context.Context, userID string) ([]Certificate, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.q.Query(ctx,
		`SELECT id, user_id, tier, COALESCE(module_id, ''), certificate_number, issued_at
		 FROM certificates
		 WHERE user_id = $1
		 ORDER BY issued_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query certificates: %w", err)
	}
	defer rows.Close()

	var out []Certificate
	for rows.Next() {
		var (
			c    Certificate
			tier string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &tier, &c.ModuleID, &c.CertificateNumber, &c.IssuedAt); err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		c.Tier = Tier(tier)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateCertificate(ctx context.Context, c Certificate) (Certificate, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.IssuedAt.IsZero() {
		c.IssuedAt = time.Now()
	}

	_, err := s.q.Exec(ctx,
		`INSERT INTO certificates (id, user_id, tier, module_id, certificate_number, issued_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.UserID, string(c.Tier), nullIfEmpty(c.ModuleID), c.CertificateNumber, c.IssuedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) && database.ConstraintName(err) == "certificates_user_tier_key" {
			return Certificate{}, ErrAlreadyObtained
		}
		return Certificate{}, fmt.Errorf("insert certificate: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Summaries(ctx context.Context) ([]LearnerSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.q.Query(ctx,
		`WITH learners AS (
		   SELECT user_id FROM content_progress
		   UNION SELECT user_id FROM chapter_progress
		   UNION SELECT user_id FROM module_progress
		   UNION SELECT user_id FROM quiz_results
		   UNION SELECT user_id FROM certificates
		 )
		 SELECT l.user_id,
		   (SELECT COUNT(*) FROM content_progress c WHERE c.user_id = l.user_id AND c.is_completed),
		   (SELECT COUNT(*) FROM chapter_progress c WHERE c.user_id = l.user_id AND c.is_completed),
		   (SELECT COUNT(*) FROM module_progress m WHERE m.user_id = l.user_id AND m.is_completed),
		   (SELECT COUNT(*) FROM quiz_results r WHERE r.user_id = l.user_id),
		   (SELECT COUNT(DISTINCT r.quiz_id) FROM quiz_results r WHERE r.user_id = l.user_id AND r.passed),
		   COALESCE((SELECT array_agg(ce.tier ORDER BY ce.issued_at) FROM certificates ce WHERE ce.user_id = l.user_id), '{}'),
		   GREATEST(
		     (SELECT MAX(c.updated_at) FROM content_progress c WHERE c.user_id = l.user_id),
		     (SELECT MAX(r.created_at) FROM quiz_results r WHERE r.user_id = l.user_id)
		   )
		 FROM learners l
		 ORDER BY l.user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []LearnerSummary
	for rows.Next() {
		var (
			sum   LearnerSummary
			tiers []string
		)
		if err := rows.Scan(
			&sum.UserID,
			&sum.CompletedContents,
			&sum.CompletedChapters,
			&sum.CompletedModules,
			&sum.QuizAttempts,
			&sum.QuizzesPassed,
			&tiers,
			&sum.LastActivity,
		); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		for _, t := range tiers {
			sum.Certificates = append(sum.Certificates, Tier(t))
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
