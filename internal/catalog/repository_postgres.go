package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-academy/internal/platform/database"
)

const dbTimeout = 5 * time.Second

// PostgresRepository is a PostgreSQL-backed Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a catalog repository on the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) (*PostgresRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) ActiveModules(ctx context.Context) ([]Module, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, sort_order, is_active, created_at
		 FROM modules
		 WHERE is_active
		 ORDER BY sort_order ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer rows.Close()

	var out []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.Order, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modules: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetModule(ctx context.Context, id string) (Module, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var m Module
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, sort_order, is_active, created_at
		 FROM modules WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Title, &m.Description, &m.Order, &m.IsActive, &m.CreatedAt)
	if err != nil {
		return Module{}, notFound(err, "get module")
	}
	return m, nil
}

func (r *PostgresRepository) ActiveChapters(ctx context.Context, moduleID string) ([]Chapter, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT id, module_id, title, sort_order, is_active, created_at
		 FROM chapters
		 WHERE module_id = $1 AND is_active
		 ORDER BY sort_order ASC`,
		moduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}
	defer rows.Close()

	var out []Chapter
	for rows.Next() {
		var c Chapter
		if err := rows.Scan(&c.ID, &c.ModuleID, &c.Title, &c.Order, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chapters: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetChapter(ctx context.Context, id string) (Chapter, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var c Chapter
	err := r.pool.QueryRow(ctx,
		`SELECT id, module_id, title, sort_order, is_active, created_at
		 FROM chapters WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.ModuleID, &c.Title, &c.Order, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return Chapter{}, notFound(err, "get chapter")
	}
	return c, nil
}

func (r *PostgresRepository) ActiveContents(ctx context.Context, chapterID string) ([]Content, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT id, chapter_id, content_type, url, duration, sort_order, is_active, created_at
		 FROM contents
		 WHERE chapter_id = $1 AND is_active
		 ORDER BY sort_order ASC`,
		chapterID,
	)
	if err != nil {
		return nil, fmt.Errorf("query contents: %w", err)
	}
	defer rows.Close()

	var out []Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contents: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetContent(ctx context.Context, id string) (Content, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	c, err := scanContent(r.pool.QueryRow(ctx,
		`SELECT id, chapter_id, content_type, url, duration, sort_order, is_active, created_at
		 FROM contents WHERE id = $1`,
		id,
	))
	if err != nil {
		return Content{}, notFound(err, "get content")
	}
	return c, nil
}

func (r *PostgresRepository) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	q, err := scanQuiz(r.pool.QueryRow(ctx,
		`SELECT id, chapter_id, title, passing_score, questions, created_at
		 FROM quizzes WHERE id = $1`,
		id,
	))
	if err != nil {
		return Quiz{}, notFound(err, "get quiz")
	}
	return q, nil
}

func (r *PostgresRepository) QuizForChapter(ctx context.Context, chapterID string) (Quiz, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	q, err := scanQuiz(r.pool.QueryRow(ctx,
		`SELECT id, chapter_id, title, passing_score, questions, created_at
		 FROM quizzes WHERE chapter_id = $1`,
		chapterID,
	))
	if err != nil {
		return Quiz{}, notFound(err, "get chapter quiz")
	}
	return q, nil
}

func (r *PostgresRepository) CreateModule(ctx context.Context, m Module) (Module, error) {
	if err := ValidateModule(m); err != nil {
		return Module{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO modules (id, title, description, sort_order, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		m.ID, m.Title, m.Description, m.Order, m.IsActive,
	).Scan(&m.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return Module{}, uniqueConflict(err, ErrOrderTaken)
		}
		return Module{}, fmt.Errorf("insert module: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) CreateChapter(ctx context.Context, c Chapter) (Chapter, error) {
	if err := ValidateChapter(c); err != nil {
		return Chapter{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO chapters (id, module_id, title, sort_order, is_active)
		 SELECT $1::text, m.id, $3::text, $4::int, $5::boolean FROM modules m WHERE m.id = $2
		 RETURNING created_at`,
		c.ID, c.ModuleID, c.Title, c.Order, c.IsActive,
	).Scan(&c.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return Chapter{}, uniqueConflict(err, ErrOrderTaken)
		}
		return Chapter{}, notFound(err, "insert chapter")
	}
	return c, nil
}

func (r *PostgresRepository) CreateContent(ctx context.Context, c Content) (Content, error) {
	if err := ValidateContent(c); err != nil {
		return Content{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Order = 1
	err := r.pool.QueryRow(ctx,
		`INSERT INTO contents (id, chapter_id, content_type, url, duration, sort_order, is_active)
		 SELECT $1::text, ch.id, $3::text, $4::text, $5::double precision, $6::int, $7::boolean FROM chapters ch WHERE ch.id = $2
		 RETURNING created_at`,
		c.ID, c.ChapterID, string(c.Type), c.URL, c.Duration, c.Order, c.IsActive,
	).Scan(&c.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return Content{}, uniqueConflict(err, ErrContentExists)
		}
		return Content{}, notFound(err, "insert content")
	}
	return c, nil
}

func (r *PostgresRepository) CreateQuiz(ctx context.Context, q Quiz) (Quiz, error) {
	if err := ValidateQuiz(q); err != nil {
		return Quiz{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return Quiz{}, fmt.Errorf("marshal questions: %w", err)
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO quizzes (id, chapter_id, title, passing_score, questions)
		 SELECT $1::text, ch.id, $3::text, $4::int, $5::jsonb FROM chapters ch WHERE ch.id = $2
		 RETURNING created_at`,
		q.ID, q.ChapterID, q.Title, q.PassingScore, string(questions),
	).Scan(&q.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return Quiz{}, uniqueConflict(err, ErrQuizExists)
		}
		return Quiz{}, notFound(err, "insert quiz")
	}
	return q, nil
}

func scanContent(row pgx.Row) (Content, error) {
	var c Content
	var ct string
	if err := row.Scan(&c.ID, &c.ChapterID, &ct, &c.URL, &c.Duration, &c.Order, &c.IsActive, &c.CreatedAt); err != nil {
		return Content{}, err
	}
	c.Type = ContentType(ct)
	return c, nil
}

func scanQuiz(row pgx.Row) (Quiz, error) {
	var q Quiz
	var questions []byte
	if err := row.Scan(&q.ID, &q.ChapterID, &q.Title, &q.PassingScore, &questions, &q.CreatedAt); err != nil {
		return Quiz{}, err
	}
	if err := json.Unmarshal(questions, &q.Questions); err != nil {
		return Quiz{}, fmt.Errorf("decode questions of quiz %s: %w", q.ID, err)
	}
	return q, nil
}

// uniqueConflict tells a duplicate primary key apart from the scoped
// uniqueness rule the table enforces.
func uniqueConflict(err, scoped error) error {
	if strings.HasSuffix(database.ConstraintName(err), "_pkey") {
		return ErrIDTaken
	}
	return scoped
}

// notFound maps pgx.ErrNoRows to ErrNotFound and wraps anything else.
func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
