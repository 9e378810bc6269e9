package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/lo"

	"chdrisk/assessment"
	"chdrisk/dataset"
	"chdrisk/risk"
)

// Store persists assessments and training runs in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the database file and schema if needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	database.SetMaxOpenConns(4)
	database.SetConnMaxLifetime(time.Hour)

	s := &Store{db: database}
	if err := s.createTables(); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS assessments (
            id TEXT PRIMARY KEY,
            sbp REAL NOT NULL,
            ldl REAL NOT NULL,
            adiposity REAL NOT NULL,
            obesity REAL NOT NULL,
            age INTEGER NOT NULL,
            famhist TEXT NOT NULL,
            probability REAL NOT NULL,
            label INTEGER NOT NULL,
            risk_factors TEXT,
            model_version TEXT,
            created_at DATETIME NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments(created_at)`,
		`CREATE TABLE IF NOT EXISTS training_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            model_name VARCHAR(50),
            source TEXT,
            seed INTEGER,
            accuracy REAL,
            precision REAL,
            recall REAL,
            log_loss REAL,
            trained_at DATETIME,
            data_points INTEGER
        )`,
		`CREATE TABLE IF NOT EXISTS data_quality (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            source TEXT NOT NULL,
            line INTEGER NOT NULL,
            issue_type TEXT NOT NULL,
            severity TEXT NOT NULL,
            message TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveAssessment(ctx context.Context, a *assessment.Assessment) error {
	factors := strings.Join(lo.Map(a.RiskFactors, func(f risk.Factor, _ int) string {
		return string(f)
	}), ",")
	_, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO assessments (
            id, sbp, ldl, adiposity, obesity, age, famhist,
            probability, label, risk_factors, model_version, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Observation.SBP,
		a.Observation.LDL,
		a.Observation.Adiposity,
		a.Observation.Obesity,
		a.Observation.Age,
		a.Observation.FamHist,
		a.Probability,
		a.Label,
		factors,
		a.ModelVersion,
		a.CreatedAt.UTC(),
	)
	return err
}

// RecentAssessments returns up to limit rows, newest first.
func (s *Store) RecentAssessments(ctx context.Context, limit int) ([]*assessment.Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, sbp, ldl, adiposity, obesity, age, famhist,
               probability, label, risk_factors, model_version, created_at
        FROM assessments
        ORDER BY created_at DESC, rowid DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*assessment.Assessment, 0)
	for rows.Next() {
		var a assessment.Assessment
		var factors, version sql.NullString
		err := rows.Scan(&a.ID, &a.Observation.SBP, &a.Observation.LDL, &a.Observation.Adiposity,
			&a.Observation.Obesity, &a.Observation.Age, &a.Observation.FamHist,
			&a.Probability, &a.Label, &factors, &version, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		a.RiskFactors = parseFactors(factors.String)
		a.ModelVersion = version.String
		result = append(result, &a)
	}
	return result, rows.Err()
}

func parseFactors(s string) []risk.Factor {
	if s == "" {
		return []risk.Factor{}
	}
	return lo.Map(strings.Split(s, ","), func(name string, _ int) risk.Factor {
		return risk.Factor(name)
	})
}

type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	Source     string    `json:"source"`
	Seed       int64     `json:"seed"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	LogLoss    float64   `json:"log_loss"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
}

func (s *Store) SaveTrainingLog(ctx context.Context, log TrainingLog) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (
            model_name, source, seed, accuracy, precision, recall, log_loss, trained_at, data_points
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ModelName, log.Source, log.Seed, log.Accuracy, log.Precision, log.Recall,
		log.LogLoss, log.TrainedAt.UTC(), log.DataPoints)
	return err
}

func (s *Store) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT model_name, source, seed, accuracy, precision, recall, log_loss, trained_at, data_points
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelName, &log.Source, &log.Seed, &log.Accuracy, &log.Precision,
			&log.Recall, &log.LogLoss, &log.TrainedAt, &log.DataPoints); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// SaveQualityIssues records rows the trainer dropped while cleaning a CSV.
func (s *Store) SaveQualityIssues(ctx context.Context, source string, issues []dataset.QualityIssue) error {
	if len(issues) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO data_quality (source, line, issue_type, severity, message)
        VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, issue := range issues {
		if _, err := stmt.ExecContext(ctx, source, issue.Line, issue.Type, issue.Severity, issue.Message); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) CountQualityIssues(ctx context.Context, source string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM data_quality WHERE source = ?`, source).Scan(&n)
	return n, err
}

var _ assessment.Store = (*Store)(nil)
