package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/credit-cpr/internal/model"
)

// UsageRepo stores the analysis log and saved dispute letters.
type UsageRepo struct{ DB *sql.DB }

func NewUsageRepo(db *sql.DB) *UsageRepo { return &UsageRepo{DB: db} }

// InsertAnalysisTx appends an analysis_history row and sets its ID.
func (r *UsageRepo) InsertAnalysisTx(ctx context.Context, tx *sql.Tx, a *model.AnalysisRecord) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO analysis_history (user_id, report_name, errors_found, analyzed_at) VALUES (?,?,?,?)",
		a.UserID, a.ReportName, a.ErrorsFound, FormatTime(a.AnalyzedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// ListAnalyses returns a user's analyses, newest first.
func (r *UsageRepo) ListAnalyses(ctx context.Context, userID uint64, limit int) ([]model.AnalysisRecord, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,user_id,report_name,errors_found,analyzed_at FROM analysis_history WHERE user_id=? ORDER BY id DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AnalysisRecord
	for rows.Next() {
		var (
			a  model.AnalysisRecord
			at string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.ReportName, &a.ErrorsFound, &at); err != nil {
			return nil, err
		}
		if a.AnalyzedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UsageTotals aggregates a user's history tables.
type UsageTotals struct {
	Analyses        int
	ErrorsFound     int
	Letters         int
	PurchasedLetter int
}

// Totals counts rows across analysis_history and dispute_letters.
func (r *UsageRepo) Totals(ctx context.Context, userID uint64) (UsageTotals, error) {
	var t UsageTotals
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(errors_found), 0) FROM analysis_history WHERE user_id=?", userID).
		Scan(&t.Analyses, &t.ErrorsFound)
	if err != nil {
		return t, err
	}
	err = r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN purchased <> 0 THEN 1 ELSE 0 END), 0) FROM dispute_letters WHERE user_id=?", userID).
		Scan(&t.Letters, &t.PurchasedLetter)
	return t, err
}

const letterColumns = "id,user_id,bureau,error_description,status,purchased,created_at"

// CreateLetter saves a draft letter and sets its ID.
func (r *UsageRepo) CreateLetter(ctx context.Context, l *model.DisputeLetter) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO dispute_letters (user_id, bureau, error_description, status, purchased, created_at) VALUES (?,?,?,?,?,?)",
		l.UserID, l.Bureau, l.ErrorDescription, l.Status, l.Purchased, FormatTime(l.CreatedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	return nil
}

// GetLetter returns a letter owned by userID.  A letter owned by someone
// else is reported as ErrNotFound so ids do not leak.
func (r *UsageRepo) GetLetter(ctx context.Context, userID, id uint64) (model.DisputeLetter, error) {
	return scanLetter(r.DB.QueryRowContext(ctx,
		"SELECT "+letterColumns+" FROM dispute_letters WHERE id=? AND user_id=? LIMIT 1", id, userID))
}

// ListLetters returns a user's letters, newest first.
func (r *UsageRepo) ListLetters(ctx context.Context, userID uint64) ([]model.DisputeLetter, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+letterColumns+" FROM dispute_letters WHERE user_id=? ORDER BY id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.DisputeLetter
	for rows.Next() {
		l, err := scanLetter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// MarkPurchasedTx flips an unpurchased letter to purchased/ready.  It
// returns ErrConflict if the letter was already purchased and ErrNotFound
// if the user owns no such letter.
func (r *UsageRepo) MarkPurchasedTx(ctx context.Context, tx *sql.Tx, userID, id uint64) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE dispute_letters SET purchased=?, status=? WHERE id=? AND user_id=? AND purchased=?",
		true, model.LetterReady, id, userID, false)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	var n int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM dispute_letters WHERE id=? AND user_id=?", id, userID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func scanLetter(row rowScanner) (model.DisputeLetter, error) {
	var (
		l         model.DisputeLetter
		createdAt string
	)
	if err := row.Scan(&l.ID, &l.UserID, &l.Bureau, &l.ErrorDescription, &l.Status, &l.Purchased, &createdAt); err != nil {
		return model.DisputeLetter{}, notFound(err)
	}
	var err error
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.DisputeLetter{}, err
	}
	return l, nil
}
