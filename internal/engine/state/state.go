package state

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/utils"
)

// BatchRecord is one submitted batch as kept in the history.
type BatchRecord struct {
	ID         string
	Dir        string
	Total      int
	Status     string
	Reason     string
	Error      string
	CreatedAt  int64
	FinishedAt int64
}

// ItemRecord is the last known outcome of one item.
type ItemRecord struct {
	GID        types.GID
	BatchID    string
	URL        string
	DestPath   string
	Filename   string
	Status     types.ItemState
	TotalSize  int64
	Downloaded int64
	MIME       string
	Error      string
	UpdatedAt  int64
}

// ResumeRecord holds the byte ranges still missing from a partial file.
type ResumeRecord struct {
	URL       string
	DestPath  string
	TotalSize int64
	SavedAt   int64
	Segments  []types.Segment
}

// Remaining returns the number of bytes the segments still cover.
func (r *ResumeRecord) Remaining() int64 {
	var n int64
	for _, s := range r.Segments {
		n += s.Length
	}
	return n
}

// URLHash returns a short hash of the URL used to key resume entries
func URLHash(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:8]) // 16 chars
}

// ================== Batch history ==================

// RecordBatch inserts a batch in the running state.
func RecordBatch(id, dir string, total int) error {
	return withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO batches (id, dir, total, status, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				dir=excluded.dir,
				total=excluded.total,
				status=excluded.status
		`, id, dir, total, string(types.StateRunning), time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}
		return nil
	})
}

// FinishBatch marks a batch stopped with the reason its monitor ended.
func FinishBatch(id string, reason types.EndReason, errMsg string) error {
	return withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE batches SET status = ?, reason = ?, error = ?, finished_at = ?
			WHERE id = ?
		`, string(types.StateStopped), string(reason), errMsg, time.Now().Unix(), id)
		if err != nil {
			return fmt.Errorf("failed to finish batch: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("batch %s: %w", id, os.ErrNotExist)
		}
		return nil
	})
}

// GetBatch returns a single batch by ID.
func GetBatch(id string) (*BatchRecord, error) {
	d := getDBHelper()
	if d == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	row := d.QueryRow(`
		SELECT id, dir, total, status, reason, error, created_at, finished_at
		FROM batches WHERE id = ?
	`, id)
	b, err := scanBatch(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("batch %s: %w", id, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to query batch: %w", err)
	}
	return b, nil
}

// ListBatches returns the most recent batches first. limit <= 0 means all.
func ListBatches(limit int) ([]BatchRecord, error) {
	d := getDBHelper()
	if d == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	q := `SELECT id, dir, total, status, reason, error, created_at, finished_at
		FROM batches ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []BatchRecord
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(s scanner) (*BatchRecord, error) {
	var b BatchRecord
	var reason, errMsg sql.NullString
	var createdAt, finishedAt sql.NullInt64
	if err := s.Scan(&b.ID, &b.Dir, &b.Total, &b.Status, &reason, &errMsg, &createdAt, &finishedAt); err != nil {
		return nil, err
	}
	b.Reason = reason.String
	b.Error = errMsg.String
	b.CreatedAt = createdAt.Int64
	b.FinishedAt = finishedAt.Int64
	return &b, nil
}

// ================== Item journal ==================

// UpsertItem stores the latest known state of an item.
func UpsertItem(rec ItemRecord) error {
	if rec.UpdatedAt == 0 {
		rec.UpdatedAt = time.Now().Unix()
	}
	return withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO items (
				gid, batch_id, url, dest_path, filename, status, total_size, downloaded, mime, error, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(gid) DO UPDATE SET
				dest_path=excluded.dest_path,
				filename=excluded.filename,
				status=excluded.status,
				total_size=excluded.total_size,
				downloaded=excluded.downloaded,
				mime=CASE WHEN excluded.mime != '' THEN excluded.mime ELSE items.mime END,
				error=excluded.error,
				updated_at=excluded.updated_at
		`, string(rec.GID), rec.BatchID, rec.URL, rec.DestPath, rec.Filename, string(rec.Status),
			rec.TotalSize, rec.Downloaded, rec.MIME, rec.Error, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert item: %w", err)
		}
		return nil
	})
}

// ListItems returns the items journaled for a batch in insertion order.
func ListItems(batchID string) ([]ItemRecord, error) {
	d := getDBHelper()
	if d == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := d.Query(`
		SELECT gid, batch_id, url, dest_path, filename, status, total_size, downloaded, mime, error, updated_at
		FROM items WHERE batch_id = ? ORDER BY rowid
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			utils.Debug("Error closing rows: %v", err)
		}
	}()

	var out []ItemRecord
	for rows.Next() {
		var r ItemRecord
		var gid, status string
		var batch, dest, name, mime, errMsg sql.NullString
		var total, downloaded, updated sql.NullInt64
		if err := rows.Scan(&gid, &batch, &r.URL, &dest, &name, &status, &total, &downloaded, &mime, &errMsg, &updated); err != nil {
			return nil, err
		}
		r.GID = types.GID(gid)
		r.Status = types.ItemState(status)
		r.BatchID = batch.String
		r.DestPath = dest.String
		r.Filename = name.String
		r.MIME = mime.String
		r.Error = errMsg.String
		r.TotalSize = total.Int64
		r.Downloaded = downloaded.Int64
		r.UpdatedAt = updated.Int64
		out = append(out, r)
	}
	return out, rows.Err()
}

// ================== Resume journal ==================

// SaveResume replaces the stored missing ranges of a partial file.
func SaveResume(url, destPath string, totalSize int64, segments []types.Segment) error {
	hash := URLHash(url)
	return withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO resume (url_hash, dest_path, url, total_size, saved_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(url_hash, dest_path) DO UPDATE SET
				url=excluded.url,
				total_size=excluded.total_size,
				saved_at=excluded.saved_at
		`, hash, destPath, url, totalSize, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to upsert resume entry: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM segments WHERE url_hash = ? AND dest_path = ?", hash, destPath); err != nil {
			return fmt.Errorf("failed to delete old segments: %w", err)
		}

		// SQLite caps bound parameters; insert in chunks of 50 rows
		const batchSize = 50
		for i := 0; i < len(segments); i += batchSize {
			end := i + batchSize
			if end > len(segments) {
				end = len(segments)
			}
			batch := segments[i:end]

			var q strings.Builder
			q.WriteString("INSERT INTO segments (url_hash, dest_path, offset, length) VALUES ")
			args := make([]any, 0, len(batch)*4)
			for j, s := range batch {
				if j > 0 {
					q.WriteString(",")
				}
				q.WriteString("(?, ?, ?, ?)")
				args = append(args, hash, destPath, s.Offset, s.Length)
			}
			if _, err := tx.Exec(q.String(), args...); err != nil {
				return fmt.Errorf("failed to insert segments: %w", err)
			}
		}
		return nil
	})
}

// LoadResume returns the stored ranges for url written to destPath. The error
// wraps os.ErrNotExist when nothing was saved.
func LoadResume(url, destPath string) (*ResumeRecord, error) {
	d := getDBHelper()
	if d == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	hash := URLHash(url)
	rec := ResumeRecord{DestPath: destPath}
	var total, saved sql.NullInt64
	err := d.QueryRow(`
		SELECT url, total_size, saved_at FROM resume WHERE url_hash = ? AND dest_path = ?
	`, hash, destPath).Scan(&rec.URL, &total, &saved)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("resume state not found: %w", os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to query resume entry: %w", err)
	}
	rec.TotalSize = total.Int64
	rec.SavedAt = saved.Int64

	rows, err := d.Query(`
		SELECT offset, length FROM segments WHERE url_hash = ? AND dest_path = ? ORDER BY offset
	`, hash, destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			utils.Debug("Error closing rows: %v", err)
		}
	}()

	for rows.Next() {
		var s types.Segment
		if err := rows.Scan(&s.Offset, &s.Length); err != nil {
			return nil, err
		}
		rec.Segments = append(rec.Segments, s)
	}
	return &rec, rows.Err()
}

// DeleteResume drops the stored ranges, typically once the file completed.
func DeleteResume(url, destPath string) error {
	hash := URLHash(url)
	return withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM segments WHERE url_hash = ? AND dest_path = ?", hash, destPath); err != nil {
			return fmt.Errorf("failed to delete segments: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM resume WHERE url_hash = ? AND dest_path = ?", hash, destPath); err != nil {
			return fmt.Errorf("failed to delete resume entry: %w", err)
		}
		return nil
	})
}

// ValidateResume removes resume entries whose partial file no longer exists.
// Returns the number of entries removed.
func ValidateResume() (int, error) {
	d := getDBHelper()
	if d == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	rows, err := d.Query("SELECT url, dest_path FROM resume")
	if err != nil {
		return 0, fmt.Errorf("failed to query resume entries: %w", err)
	}
	type entry struct{ url, destPath string }
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.url, &e.destPath); err != nil {
			_ = rows.Close()
			return 0, err
		}
		entries = append(entries, e)
	}
	_ = rows.Close()

	removed := 0
	for _, e := range entries {
		if _, err := os.Stat(e.destPath + types.IncompleteSuffix); os.IsNotExist(err) {
			utils.Debug("Resume: partial file missing for %s, dropping entry", e.destPath)
			if err := DeleteResume(e.url, e.destPath); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
