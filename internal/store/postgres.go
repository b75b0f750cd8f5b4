package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/quizbot/internal/quiz"
)

// Postgres stores sessions in the users table and challenges in their own
// table, both created by the migrations in ./migrations.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an open connection pool.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

type userRow struct {
	ID                 string    `db:"id"`
	Phone              string    `db:"phone"`
	BotID              string    `db:"bot_id"`
	Language           string    `db:"language"`
	Name               string    `db:"name"`
	SelectedMainTopic  string    `db:"selected_main_topic"`
	SelectedSubtopic   string    `db:"selected_subtopic"`
	SelectedDifficulty string    `db:"selected_difficulty"`
	SelectedSet        string    `db:"selected_set"`
	QuestionsAnswered  int       `db:"questions_answered"`
	Score              int       `db:"score"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

type challengeRow struct {
	UserID      string    `db:"user_id"`
	Topic       string    `db:"topic"`
	Subtopic    string    `db:"subtopic"`
	Level       string    `db:"level"`
	SetID       string    `db:"set_id"`
	Score       int       `db:"score"`
	Badge       string    `db:"badge"`
	CompletedAt time.Time `db:"completed_at"`
}

func rowFromSession(s quiz.Session) userRow {
	return userRow{
		ID:                 s.ID,
		Phone:              s.Phone,
		BotID:              s.BotID,
		Language:           s.Language,
		Name:               s.Name,
		SelectedMainTopic:  s.SelectedMainTopic,
		SelectedSubtopic:   s.SelectedSubtopic,
		SelectedDifficulty: s.SelectedDifficulty,
		SelectedSet:        s.SelectedSet,
		QuestionsAnswered:  s.QuestionsAnswered,
		Score:              s.Score,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func (r userRow) session(challenges []quiz.Challenge) quiz.Session {
	return quiz.Session{
		ID:                 r.ID,
		Phone:              r.Phone,
		BotID:              r.BotID,
		Language:           r.Language,
		Name:               r.Name,
		SelectedMainTopic:  r.SelectedMainTopic,
		SelectedSubtopic:   r.SelectedSubtopic,
		SelectedDifficulty: r.SelectedDifficulty,
		SelectedSet:        r.SelectedSet,
		QuestionsAnswered:  r.QuestionsAnswered,
		Score:              r.Score,
		Challenges:         challenges,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func (r challengeRow) challenge() quiz.Challenge {
	return quiz.Challenge{
		Topic:       r.Topic,
		Subtopic:    r.Subtopic,
		Level:       r.Level,
		Set:         r.SetID,
		Score:       r.Score,
		Badge:       quiz.Badge(r.Badge),
		CompletedAt: r.CompletedAt,
	}
}

const userColumns = `id, phone, bot_id, language, name, selected_main_topic, selected_subtopic,
	selected_difficulty, selected_set, questions_answered, score, created_at, updated_at`

// Get loads the session and its challenges.
func (p *Postgres) Get(ctx context.Context, phone, botID string) (*quiz.Session, error) {
	if err := validKey(phone, botID); err != nil {
		return nil, err
	}
	var row userRow
	err := p.db.GetContext(ctx, &row,
		`SELECT `+userColumns+` FROM users WHERE phone = $1 AND bot_id = $2`, phone, botID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}

	var rows []challengeRow
	if err := p.db.SelectContext(ctx, &rows,
		`SELECT user_id, topic, subtopic, level, set_id, score, badge, completed_at
		   FROM challenges WHERE user_id = $1 ORDER BY id`, row.ID); err != nil {
		return nil, fmt.Errorf("select challenges: %w", err)
	}
	challenges := make([]quiz.Challenge, 0, len(rows))
	for _, c := range rows {
		challenges = append(challenges, c.challenge())
	}
	s := row.session(challenges)
	return &s, nil
}

const upsertUserSQL = `
		INSERT INTO users (` + userColumns + `)
		VALUES (:id, :phone, :bot_id, :language, :name, :selected_main_topic, :selected_subtopic,
		        :selected_difficulty, :selected_set, :questions_answered, :score, :created_at, :updated_at)
		ON CONFLICT (phone, bot_id) DO UPDATE SET
			language            = EXCLUDED.language,
			name                = EXCLUDED.name,
			selected_main_topic = EXCLUDED.selected_main_topic,
			selected_subtopic   = EXCLUDED.selected_subtopic,
			selected_difficulty = EXCLUDED.selected_difficulty,
			selected_set        = EXCLUDED.selected_set,
			questions_answered  = EXCLUDED.questions_answered,
			score               = EXCLUDED.score,
			updated_at          = EXCLUDED.updated_at`

const insertChallengeSQL = `
		INSERT INTO challenges (user_id, topic, subtopic, level, set_id, score, badge, completed_at)
		SELECT id, $3, $4, $5, $6, $7, $8, $9 FROM users WHERE phone = $1 AND bot_id = $2`

// execer is satisfied by both *sqlx.DB and *sqlx.Tx.
type execer interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Put upserts the user row. The id and created_at of an existing row win.
func (p *Postgres) Put(ctx context.Context, s quiz.Session) error {
	if err := validKey(s.Phone, s.BotID); err != nil {
		return err
	}
	return upsertUser(ctx, p.db, s)
}

// AppendChallenge inserts c for the user identified by (phone, botID).
func (p *Postgres) AppendChallenge(ctx context.Context, phone, botID string, c quiz.Challenge) error {
	if err := validKey(phone, botID); err != nil {
		return err
	}
	return insertChallenge(ctx, p.db, phone, botID, c)
}

// Complete upserts the user row and inserts c in one transaction.
func (p *Postgres) Complete(ctx context.Context, s quiz.Session, c quiz.Challenge) (err error) {
	if err := validKey(s.Phone, s.BotID); err != nil {
		return err
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = upsertUser(ctx, tx, s); err != nil {
		return err
	}
	if err = insertChallenge(ctx, tx, s.Phone, s.BotID, c); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsertUser(ctx context.Context, db execer, s quiz.Session) error {
	row := rowFromSession(s)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	if _, err := db.NamedExecContext(ctx, upsertUserSQL, row); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func insertChallenge(ctx context.Context, db execer, phone, botID string, c quiz.Challenge) error {
	completed := c.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}
	res, err := db.ExecContext(ctx, insertChallengeSQL,
		phone, botID, c.Topic, c.Subtopic, c.Level, c.Set, c.Score, string(c.Badge), completed)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("append challenge: %w", ErrNotFound)
	}
	return nil
}

// QueryByBot loads every session of botID together with its challenges.
func (p *Postgres) QueryByBot(ctx context.Context, botID string) ([]quiz.Session, error) {
	var users []userRow
	if err := p.db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users WHERE bot_id = $1 ORDER BY phone`, botID); err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	var rows []challengeRow
	if err := p.db.SelectContext(ctx, &rows, `
		SELECT c.user_id, c.topic, c.subtopic, c.level, c.set_id, c.score, c.badge, c.completed_at
		  FROM challenges c JOIN users u ON u.id = c.user_id
		 WHERE u.bot_id = $1 ORDER BY c.id`, botID); err != nil {
		return nil, fmt.Errorf("select challenges: %w", err)
	}
	return groupSessions(users, rows), nil
}

func groupSessions(users []userRow, rows []challengeRow) []quiz.Session {
	byUser := make(map[string][]quiz.Challenge, len(users))
	for _, r := range rows {
		byUser[r.UserID] = append(byUser[r.UserID], r.challenge())
	}
	out := make([]quiz.Session, 0, len(users))
	for _, u := range users {
		out = append(out, u.session(byUser[u.ID]))
	}
	return out
}

// Close closes the pool.
func (p *Postgres) Close(context.Context) error {
	return p.db.Close()
}
