package mat

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// DiskCOO is a sqlite-backed Matrix, used by Instance.SaveCheckpoint to
// persist an assembled drift matrix. Operations that modify it (Add, Kron)
// load the full matrix into memory and write it back. Grounded in
// mat/disk.go's DiskMatrix.
type DiskCOO struct {
	db   *sql.DB
	rows int
	cols int
}

// NewDiskCOO opens (creating if necessary) a sqlite file at path and
// prepares its schema: the elem table storing (row, col) -> value, the
// shape table, and the meta/terms/term_elem checkpoint tables.
func NewDiskCOO(path string) (*DiskCOO, error) {
	db, err := newDB(path)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	m := &DiskCOO{db: db}
	if rows, cols, ok, err := loadShape(db); err != nil {
		return nil, errors.Wrap(err, "")
	} else if ok {
		m.rows, m.cols = rows, cols
	}
	return m, nil
}

func newDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return db, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS elem (
		i INTEGER NOT NULL,
		j INTEGER NOT NULL,
		re REAL NOT NULL,
		im REAL NOT NULL,
		PRIMARY KEY (i, j)
	)`); err != nil {
		return errors.Wrap(err, "")
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS shape (
		id INTEGER PRIMARY KEY CHECK (id = 0),
		rows INTEGER NOT NULL,
		cols INTEGER NOT NULL
	)`); err != nil {
		return errors.Wrap(err, "")
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (
		id INTEGER PRIMARY KEY CHECK (id = 0),
		hash TEXT NOT NULL
	)`); err != nil {
		return errors.Wrap(err, "")
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS terms (
		term_id INTEGER PRIMARY KEY,
		channel TEXT NOT NULL,
		coeff_re REAL NOT NULL,
		coeff_im REAL NOT NULL,
		rows INTEGER NOT NULL,
		cols INTEGER NOT NULL
	)`); err != nil {
		return errors.Wrap(err, "")
	}
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS term_elem (
		term_id INTEGER NOT NULL,
		i INTEGER NOT NULL,
		j INTEGER NOT NULL,
		re REAL NOT NULL,
		im REAL NOT NULL,
		PRIMARY KEY (term_id, i, j)
	)`)
	return errors.Wrap(err, "")
}

// loadShape recovers a previously-stored (rows, cols), used when a DiskCOO
// is reopened against an existing file rather than freshly zeroed.
func loadShape(db *sql.DB) (int, int, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var rows, cols int
	err := db.QueryRowContext(ctx, `SELECT rows, cols FROM shape WHERE id = 0`).Scan(&rows, &cols)
	switch {
	case err == sql.ErrNoRows:
		return 0, 0, false, nil
	case err != nil:
		return 0, 0, false, errors.Wrap(err, "")
	default:
		return rows, cols, true, nil
	}
}

func storeShape(db *sql.DB, rows, cols int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO shape (id, rows, cols) VALUES (0, ?, ?)`, rows, cols)
	return errors.Wrap(err, "")
}

func (m *DiskCOO) Close() error {
	return errors.Wrap(m.db.Close(), "")
}

func (m *DiskCOO) Rows() int { return m.rows }
func (m *DiskCOO) Cols() int { return m.cols }

func (m *DiskCOO) Zeros(rows, cols int) {
	m.rows, m.cols = rows, cols
	if err := m.deleteAll(); err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	if err := storeShape(m.db, rows, cols); err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
}

func (m *DiskCOO) Scalar(v complex64) {
	m.rows, m.cols = 1, 1
	if err := m.deleteAll(); err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	if err := storeShape(m.db, 1, 1); err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	if err := m.setItem(0, 0, v); err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
}

func (m *DiskCOO) deleteAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := m.db.ExecContext(ctx, `DELETE FROM elem`)
	return errors.Wrap(err, "")
}

func (m *DiskCOO) setItem(i, j int, v complex64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if v == 0 {
		_, err := m.db.ExecContext(ctx, `DELETE FROM elem WHERE i=? AND j=?`, i, j)
		return errors.Wrap(err, "")
	}
	_, err := m.db.ExecContext(ctx, `INSERT OR REPLACE INTO elem (i, j, re, im) VALUES (?, ?, ?, ?)`,
		i, j, float64(real(v)), float64(imag(v)))
	return errors.Wrap(err, "")
}

// Set stores a single (row, col) value, overwriting any previous entry.
func (m *DiskCOO) Set(i, j int, v complex64) error {
	return errors.Wrap(m.setItem(i, j, v), "")
}

// Add computes m += c*b. b is pulled fully into memory as a COO; only m
// stays disk-backed. This mirrors DiskMatrix.Add, which
// likewise materializes the addend.
func (m *DiskCOO) Add(c complex64, b Matrix) {
	bCOO := b.COO()
	cur, err := m.COOLoad()
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	cur.Add(c, bCOO)
	if err := m.store(cur); err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
}

func (m *DiskCOO) Kron(b *COO) {
	cur, err := m.COOLoad()
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	cur.Kron(b)
	m.rows, m.cols = cur.rows, cur.cols
	if err := m.store(cur); err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
}

func (m *DiskCOO) store(c *COO) error {
	if err := m.deleteAll(); err != nil {
		return errors.Wrap(err, "")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO elem (i, j, re, im) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "")
	}
	for _, v := range c.Data {
		if _, err := stmt.ExecContext(ctx, v.row, v.col, float64(real(v.v)), float64(imag(v.v))); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "")
		}
	}
	if err := stmt.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	m.rows, m.cols = c.rows, c.cols
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return errors.Wrap(storeShape(m.db, m.rows, m.cols), "")
}

// COOLoad pulls the full matrix into memory, used by
// Instance.LoadCheckpoint to recover a saved drift matrix.
func (m *DiskCOO) COOLoad() (*COO, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rows, err := m.db.QueryContext(ctx, `SELECT i, j, re, im FROM elem ORDER BY i, j`)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	out := &COO{rows: m.rows, cols: m.cols, Data: make([]vRowCol, 0)}
	for rows.Next() {
		var i, j int
		var re, im float64
		if err := rows.Scan(&i, &j, &re, &im); err != nil {
			return nil, errors.Wrap(err, "")
		}
		out.Data = append(out.Data, vRowCol{v: complex(float32(re), float32(im)), row: i, col: j})
	}
	return out, errors.Wrap(rows.Err(), "")
}

func (m *DiskCOO) COO() *COO {
	c, err := m.COOLoad()
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return c
}

func (m *DiskCOO) WriteCOO(dir string) error {
	c, err := m.COOLoad()
	if err != nil {
		return errors.Wrap(err, "")
	}
	return errors.Wrap(c.WriteCOO(dir), "")
}

// SaveMeta persists the checkpoint's content hash, overwriting any
// previously stored value.
func (m *DiskCOO) SaveMeta(hash string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := m.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta (id, hash) VALUES (0, ?)`, hash)
	return errors.Wrap(err, "")
}

// LoadMeta recovers a previously-stored content hash; ok is false if this
// checkpoint predates meta tracking or was never saved with SaveMeta.
func (m *DiskCOO) LoadMeta() (hash string, ok bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = m.db.QueryRowContext(ctx, `SELECT hash FROM meta WHERE id = 0`).Scan(&hash)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrap(err, "")
	default:
		return hash, true, nil
	}
}

// TermRecord is the on-disk shape of one channel-tagged dependent term: its
// channel name, static scalar coefficient, and lifted unit operator.
type TermRecord struct {
	Channel string
	CoeffRe float64
	CoeffIm float64
	Unit    *COO
}

// SaveTerms replaces the checkpoint's channel-id table with terms,
// persisting each term's unit operator as its own sparse block keyed by
// term_id.
func (m *DiskCOO) SaveTerms(terms []TermRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM terms`); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM term_elem`); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "")
	}
	termStmt, err := tx.PrepareContext(ctx, `INSERT INTO terms (term_id, channel, coeff_re, coeff_im, rows, cols) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "")
	}
	elemStmt, err := tx.PrepareContext(ctx, `INSERT INTO term_elem (term_id, i, j, re, im) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "")
	}
	for id, term := range terms {
		if _, err := termStmt.ExecContext(ctx, id, term.Channel, term.CoeffRe, term.CoeffIm, term.Unit.Rows(), term.Unit.Cols()); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "")
		}
		for _, v := range term.Unit.Data {
			if _, err := elemStmt.ExecContext(ctx, id, v.row, v.col, float64(real(v.v)), float64(imag(v.v))); err != nil {
				_ = tx.Rollback()
				return errors.Wrap(err, "")
			}
		}
	}
	if err := termStmt.Close(); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "")
	}
	if err := elemStmt.Close(); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "")
	}
	return errors.Wrap(tx.Commit(), "")
}

// LoadTerms recovers the channel-id table stored by SaveTerms, in term_id
// order.
func (m *DiskCOO) LoadTerms() ([]TermRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rows, err := m.db.QueryContext(ctx, `SELECT term_id, channel, coeff_re, coeff_im, rows, cols FROM terms ORDER BY term_id`)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	type pending struct {
		id   int
		rec  TermRecord
		r, c int
	}
	var pendings []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.rec.Channel, &p.rec.CoeffRe, &p.rec.CoeffIm, &p.r, &p.c); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "")
		}
		pendings = append(pendings, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "")
	}
	rows.Close()

	out := make([]TermRecord, len(pendings))
	for idx, p := range pendings {
		unit := &COO{rows: p.r, cols: p.c, Data: make([]vRowCol, 0)}
		elemRows, err := m.db.QueryContext(ctx, `SELECT i, j, re, im FROM term_elem WHERE term_id = ? ORDER BY i, j`, p.id)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		for elemRows.Next() {
			var i, j int
			var re, im float64
			if err := elemRows.Scan(&i, &j, &re, &im); err != nil {
				elemRows.Close()
				return nil, errors.Wrap(err, "")
			}
			unit.Data = append(unit.Data, vRowCol{v: complex(float32(re), float32(im)), row: i, col: j})
		}
		if err := elemRows.Err(); err != nil {
			elemRows.Close()
			return nil, errors.Wrap(err, "")
		}
		elemRows.Close()
		p.rec.Unit = unit
		out[idx] = p.rec
	}
	return out, nil
}
