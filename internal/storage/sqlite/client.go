package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/complymatch/backend/internal/storage/models"
	"github.com/complymatch/backend/pkg/logger"
)

// ErrNotFound reports a missing row for single-record lookups.
var ErrNotFound = errors.New("not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		title TEXT NOT NULL,
		category TEXT,
		weight REAL NOT NULL,
		order_index INTEGER NOT NULL,
		FOREIGN KEY (template_id) REFERENCES templates(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sections_template ON sections(template_id);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		section_id TEXT NOT NULL,
		prompt TEXT NOT NULL,
		type TEXT NOT NULL,
		required INTEGER NOT NULL DEFAULT 0,
		weight REAL NOT NULL,
		order_index INTEGER NOT NULL,
		options TEXT,
		FOREIGN KEY (section_id) REFERENCES sections(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_questions_section ON questions(section_id);

	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		status TEXT NOT NULL,
		answered_questions INTEGER NOT NULL DEFAULT 0,
		total_questions INTEGER NOT NULL DEFAULT 0,
		answer_version INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER,
		FOREIGN KEY (template_id) REFERENCES templates(id)
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_org ON assessments(organization_id);

	CREATE TABLE IF NOT EXISTS answers (
		id TEXT PRIMARY KEY,
		assessment_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		response_text TEXT,
		evidence_tier TEXT NOT NULL,
		ai_score REAL NOT NULL,
		confidence REAL NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (assessment_id, question_id, version),
		FOREIGN KEY (assessment_id) REFERENCES assessments(id) ON DELETE CASCADE,
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_answers_assessment ON answers(assessment_id);
	CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(assessment_id, question_id);

	CREATE TABLE IF NOT EXISTS gaps (
		id TEXT PRIMARY KEY,
		assessment_id TEXT NOT NULL,
		node_path TEXT NOT NULL,
		category TEXT,
		title TEXT,
		description TEXT,
		severity TEXT NOT NULL,
		score REAL NOT NULL,
		deficit REAL NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (assessment_id, node_path),
		FOREIGN KEY (assessment_id) REFERENCES assessments(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_gaps_assessment ON gaps(assessment_id);
	CREATE INDEX IF NOT EXISTS idx_gaps_severity ON gaps(severity);

	CREATE TABLE IF NOT EXISTS vendors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		categories TEXT,
		featured INTEGER NOT NULL DEFAULT 0,
		verified INTEGER NOT NULL DEFAULT 0,
		rating REAL NOT NULL DEFAULT 0,
		review_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vendor_solutions (
		id TEXT PRIMARY KEY,
		vendor_id TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		pricing_model TEXT,
		features TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (vendor_id) REFERENCES vendors(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_solutions_category ON vendor_solutions(category);
	CREATE INDEX IF NOT EXISTS idx_solutions_vendor ON vendor_solutions(vendor_id);

	CREATE TABLE IF NOT EXISTS weight_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		template_id TEXT NOT NULL,
		parent_id TEXT NOT NULL,
		sibling_id TEXT NOT NULL,
		old_weight REAL NOT NULL,
		new_weight REAL NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (template_id) REFERENCES templates(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_weight_audit_template ON weight_audit(template_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertTemplate(ctx context.Context, tmpl *models.Template) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO templates (id, name, category, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		tmpl.ID, tmpl.Name, tmpl.Category, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}

	for i, section := range tmpl.Sections {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sections (id, template_id, title, category, weight, order_index) VALUES (?, ?, ?, ?, ?, ?)`,
			section.ID, tmpl.ID, section.Title, section.Category, section.Weight, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert section: %w", err)
		}

		for j, question := range section.Questions {
			optionsJSON, _ := json.Marshal(question.Options)
			_, err = tx.ExecContext(ctx,
				`INSERT INTO questions (id, section_id, prompt, type, required, weight, order_index, options)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				question.ID, section.ID, question.Prompt, string(question.Type),
				boolToInt(question.Required), question.Weight, j, string(optionsJSON),
			)
			if err != nil {
				return fmt.Errorf("failed to insert question: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit template: %w", err)
	}

	logger.Debug("Template inserted", zap.String("template_id", tmpl.ID))
	return nil
}

func (c *Client) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	var tmpl models.Template
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT id, name, category, created_at, updated_at FROM templates WHERE id = ?`, id,
	).Scan(&tmpl.ID, &tmpl.Name, &tmpl.Category, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	tmpl.CreatedAt = time.Unix(createdAt, 0)
	tmpl.UpdatedAt = time.Unix(updatedAt, 0)

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, title, category, weight, order_index FROM sections WHERE template_id = ? ORDER BY order_index`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get sections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var section models.Section
		var category sql.NullString
		if err := rows.Scan(&section.ID, &section.Title, &category, &section.Weight, &section.OrderIndex); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		section.TemplateID = id
		section.Category = category.String
		tmpl.Sections = append(tmpl.Sections, section)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sections: %w", err)
	}

	for i := range tmpl.Sections {
		questions, err := c.getQuestions(ctx, tmpl.Sections[i].ID)
		if err != nil {
			return nil, err
		}
		tmpl.Sections[i].Questions = questions
	}

	return &tmpl, nil
}

func (c *Client) getQuestions(ctx context.Context, sectionID string) ([]models.Question, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, prompt, type, required, weight, order_index, options
		 FROM questions WHERE section_id = ? ORDER BY order_index`,
		sectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		var qType string
		var required int
		var optionsJSON sql.NullString

		if err := rows.Scan(&q.ID, &q.Prompt, &qType, &required, &q.Weight, &q.OrderIndex, &optionsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		q.SectionID = sectionID
		q.Type = models.QuestionType(qType)
		q.Required = required != 0
		if optionsJSON.Valid && optionsJSON.String != "" {
			json.Unmarshal([]byte(optionsJSON.String), &q.Options)
		}
		questions = append(questions, q)
	}

	return questions, rows.Err()
}

// SiblingWeights loads the committed weight sets of a template keyed by
// parent: the template ID maps to its section weights, each section ID to its
// question weights. Weight edit sessions start from this snapshot.
func (c *Client) SiblingWeights(ctx context.Context, templateID string) (map[string]map[string]float64, error) {
	tmpl, err := c.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]float64, len(tmpl.Sections)+1)
	sectionWeights := make(map[string]float64, len(tmpl.Sections))
	for _, section := range tmpl.Sections {
		sectionWeights[section.ID] = section.Weight

		questionWeights := make(map[string]float64, len(section.Questions))
		for _, question := range section.Questions {
			questionWeights[question.ID] = question.Weight
		}
		out[section.ID] = questionWeights
	}
	out[templateID] = sectionWeights

	return out, nil
}

// ApplyWeightBatch persists a committed weight batch in one transaction and
// writes audit rows. The parent keyed by the template ID updates section
// weights; any other parent updates question weights.
func (c *Client) ApplyWeightBatch(ctx context.Context, templateID string, batch map[string]map[string]float64, previous map[string]map[string]float64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for parentID, siblings := range batch {
		for siblingID, weight := range siblings {
			var stmt string
			if parentID == templateID {
				stmt = `UPDATE sections SET weight = ? WHERE id = ? AND template_id = ?`
			} else {
				stmt = `UPDATE questions SET weight = ? WHERE id = ? AND section_id = ?`
			}
			if _, err := tx.ExecContext(ctx, stmt, weight, siblingID, parentID); err != nil {
				return fmt.Errorf("failed to update weight for %s: %w", siblingID, err)
			}

			oldWeight := 0.0
			if prev, ok := previous[parentID]; ok {
				oldWeight = prev[siblingID]
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO weight_audit (template_id, parent_id, sibling_id, old_weight, new_weight, created_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				templateID, parentID, siblingID, oldWeight, weight, now,
			)
			if err != nil {
				return fmt.Errorf("failed to write weight audit: %w", err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE templates SET updated_at = ? WHERE id = ?`, now, templateID)
	if err != nil {
		return fmt.Errorf("failed to touch template: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit weight batch: %w", err)
	}

	logger.Info("Weight batch applied",
		zap.String("template_id", templateID),
		zap.Int("parents", len(batch)),
	)
	return nil
}

func (c *Client) InsertAssessment(ctx context.Context, a *models.Assessment) error {
	now := time.Now().Unix()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO assessments (id, template_id, organization_id, status, answered_questions,
			total_questions, answer_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TemplateID, a.OrganizationID, string(a.Status),
		a.AnsweredQuestions, a.TotalQuestions, a.AnswerVersion, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

func (c *Client) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	var a models.Assessment
	var status string
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := c.db.QueryRowContext(ctx,
		`SELECT id, template_id, organization_id, status, answered_questions, total_questions,
			answer_version, created_at, updated_at, completed_at
		 FROM assessments WHERE id = ?`, id,
	).Scan(&a.ID, &a.TemplateID, &a.OrganizationID, &status, &a.AnsweredQuestions,
		&a.TotalQuestions, &a.AnswerVersion, &createdAt, &updatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	a.Status = models.AssessmentStatus(status)
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		a.CompletedAt = &t
	}

	return &a, nil
}

// ListAssessmentIDsByTemplate returns the IDs of every assessment built on a
// template, used to invalidate their caches after a weight commit.
func (c *Client) ListAssessmentIDsByTemplate(ctx context.Context, templateID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id FROM assessments WHERE template_id = ?`, templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan assessment id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (c *Client) SetAssessmentStatus(ctx context.Context, id string, status models.AssessmentStatus) error {
	now := time.Now().Unix()
	var err error
	if status == models.AssessmentComplete {
		_, err = c.db.ExecContext(ctx,
			`UPDATE assessments SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
			string(status), now, now, id,
		)
	} else {
		_, err = c.db.ExecContext(ctx,
			`UPDATE assessments SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to set assessment status: %w", err)
	}
	return nil
}

// AdvanceAssessmentProgress updates the answered counter and bumps the
// answer-set version in one statement. Concurrent ingests each get a distinct
// version back, regardless of how stale their in-memory snapshots are.
func (c *Client) AdvanceAssessmentProgress(ctx context.Context, id string, answered int) (int64, error) {
	var version int64
	err := c.db.QueryRowContext(ctx,
		`UPDATE assessments SET answered_questions = ?, answer_version = answer_version + 1, updated_at = ?
		 WHERE id = ? RETURNING answer_version`,
		answered, time.Now().Unix(), id,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to advance assessment progress: %w", err)
	}
	return version, nil
}

func (c *Client) InsertAnswer(ctx context.Context, answer *models.Answer) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO answers (id, assessment_id, question_id, version, response_text,
			evidence_tier, ai_score, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		answer.ID, answer.AssessmentID, answer.QuestionID, answer.Version,
		answer.ResponseText, string(answer.EvidenceTier), answer.AIScore,
		answer.Confidence, answer.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert answer: %w", err)
	}
	return nil
}

func (c *Client) LatestAnswerVersion(ctx context.Context, assessmentID, questionID string) (int, error) {
	var version sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM answers WHERE assessment_id = ? AND question_id = ?`,
		assessmentID, questionID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest answer version: %w", err)
	}
	return int(version.Int64), nil
}

func (c *Client) CountAnsweredQuestions(ctx context.Context, assessmentID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT question_id) FROM answers WHERE assessment_id = ?`,
		assessmentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count answered questions: %w", err)
	}
	return count, nil
}

// ListLatestAnswers returns the newest answer version per question for an
// assessment. Older versions stay on disk for audit but never score.
func (c *Client) ListLatestAnswers(ctx context.Context, assessmentID string) ([]*models.Answer, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT a.id, a.assessment_id, a.question_id, a.version, a.response_text,
			a.evidence_tier, a.ai_score, a.confidence, a.created_at
		 FROM answers a
		 JOIN (
			SELECT assessment_id, question_id, MAX(version) AS version
			FROM answers WHERE assessment_id = ?
			GROUP BY assessment_id, question_id
		 ) latest
		 ON a.assessment_id = latest.assessment_id
			AND a.question_id = latest.question_id
			AND a.version = latest.version`,
		assessmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var answers []*models.Answer
	for rows.Next() {
		var a models.Answer
		var tier string
		var createdAt int64

		err := rows.Scan(&a.ID, &a.AssessmentID, &a.QuestionID, &a.Version, &a.ResponseText,
			&tier, &a.AIScore, &a.Confidence, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		a.EvidenceTier = models.EvidenceTier(tier)
		a.CreatedAt = time.Unix(createdAt, 0)
		answers = append(answers, &a)
	}

	return answers, rows.Err()
}

// UpsertGap inserts a gap or replaces the prior gap for the same
// (assessment, node path), so re-extraction supersedes instead of duplicating.
func (c *Client) UpsertGap(ctx context.Context, gap *models.Gap) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO gaps (id, assessment_id, node_path, category, title, description,
			severity, score, deficit, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(assessment_id, node_path) DO UPDATE SET
			category = excluded.category,
			title = excluded.title,
			description = excluded.description,
			severity = excluded.severity,
			score = excluded.score,
			deficit = excluded.deficit,
			created_at = excluded.created_at`,
		gap.ID, gap.AssessmentID, gap.NodePath, gap.Category, gap.Title, gap.Description,
		string(gap.Severity), gap.Score, gap.Deficit, gap.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert gap: %w", err)
	}
	return nil
}

func (c *Client) DeleteGaps(ctx context.Context, assessmentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM gaps WHERE assessment_id = ?`, assessmentID)
	if err != nil {
		return fmt.Errorf("failed to delete gaps: %w", err)
	}
	return nil
}

type GapFilter struct {
	Severity models.Severity
	Category string
}

func (c *Client) ListGaps(ctx context.Context, assessmentID string, filter GapFilter) ([]models.Gap, error) {
	query := `SELECT id, assessment_id, node_path, category, title, description, severity, score, deficit, created_at
		FROM gaps WHERE assessment_id = ?`
	args := []interface{}{assessmentID}

	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list gaps: %w", err)
	}
	defer rows.Close()

	var out []models.Gap
	for rows.Next() {
		var g models.Gap
		var severity string
		var createdAt int64

		err := rows.Scan(&g.ID, &g.AssessmentID, &g.NodePath, &g.Category, &g.Title,
			&g.Description, &severity, &g.Score, &g.Deficit, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gap: %w", err)
		}
		g.Severity = models.Severity(severity)
		g.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, g)
	}

	return out, rows.Err()
}

func (c *Client) UpsertVendor(ctx context.Context, vendor *models.Vendor) error {
	categoriesJSON, _ := json.Marshal(vendor.Categories)

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO vendors (id, name, categories, featured, verified, rating, review_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			categories = excluded.categories,
			featured = excluded.featured,
			verified = excluded.verified,
			rating = excluded.rating,
			review_count = excluded.review_count`,
		vendor.ID, vendor.Name, string(categoriesJSON), boolToInt(vendor.Featured),
		boolToInt(vendor.Verified), vendor.Rating, vendor.ReviewCount, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vendor: %w", err)
	}
	return nil
}

func (c *Client) UpsertSolution(ctx context.Context, solution *models.VendorSolution) error {
	featuresJSON, _ := json.Marshal(solution.Features)

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO vendor_solutions (id, vendor_id, name, category, pricing_model, features, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			pricing_model = excluded.pricing_model,
			features = excluded.features`,
		solution.ID, solution.VendorID, solution.Name, solution.Category,
		solution.PricingModel, string(featuresJSON), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert solution: %w", err)
	}
	return nil
}

// CandidateRow joins a solution with its vendor for the matcher.
type CandidateRow struct {
	Vendor   models.Vendor
	Solution models.VendorSolution
}

// ListCandidateSolutions loads solutions in any of the given categories along
// with their vendors. An empty category list returns the whole catalog.
func (c *Client) ListCandidateSolutions(ctx context.Context, categories []string) ([]CandidateRow, error) {
	query := `
		SELECT s.id, s.vendor_id, s.name, s.category, s.pricing_model, s.features,
			v.id, v.name, v.categories, v.featured, v.verified, v.rating, v.review_count
		FROM vendor_solutions s
		JOIN vendors v ON v.id = s.vendor_id`
	var args []interface{}

	if len(categories) > 0 {
		query += ` WHERE s.category IN (?` + strings.Repeat(",?", len(categories)-1) + `)`
		for _, category := range categories {
			args = append(args, category)
		}
	}
	query += ` ORDER BY s.id`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate solutions: %w", err)
	}
	defer rows.Close()

	var out []CandidateRow
	for rows.Next() {
		var row CandidateRow
		var featuresJSON, categoriesJSON sql.NullString
		var pricing sql.NullString
		var featured, verified int

		err := rows.Scan(&row.Solution.ID, &row.Solution.VendorID, &row.Solution.Name,
			&row.Solution.Category, &pricing, &featuresJSON,
			&row.Vendor.ID, &row.Vendor.Name, &categoriesJSON,
			&featured, &verified, &row.Vendor.Rating, &row.Vendor.ReviewCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}

		row.Solution.PricingModel = pricing.String
		if featuresJSON.Valid && featuresJSON.String != "" {
			json.Unmarshal([]byte(featuresJSON.String), &row.Solution.Features)
		}
		if categoriesJSON.Valid && categoriesJSON.String != "" {
			json.Unmarshal([]byte(categoriesJSON.String), &row.Vendor.Categories)
		}
		row.Vendor.Featured = featured != 0
		row.Vendor.Verified = verified != 0
		out = append(out, row)
	}

	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

