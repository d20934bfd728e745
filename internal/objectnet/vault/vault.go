// Package vault implements the durable local object store described in
// section 4.C: a SQLite-backed relational store of object bodies, their
// type tags, and the pin edge table used to answer structural queries.
//
// All writes and reads are serialized through a single worker goroutine
// draining a command channel, so the embedded database never sees
// concurrent access from more than one connection — matching the
// single-writer discipline the teacher applies to its ledger WAL.
package vault

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
	"github.com/liberum-neto/objectnet/pkg/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS object (
	hash BLOB PRIMARY KEY,
	body BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS type_map (
	hash BLOB PRIMARY KEY,
	type_uuid BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS pin_edge (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	main_hash BLOB NOT NULL,
	from_hash BLOB NOT NULL,
	to_hash BLOB,
	relation BLOB
);
CREATE INDEX IF NOT EXISTS idx_pin_edge_from ON pin_edge(from_hash);
CREATE INDEX IF NOT EXISTS idx_pin_edge_to ON pin_edge(to_hash);
`

// Vault is a single-writer handle onto a node's object database.
type Vault struct {
	db   *sql.DB
	cmds chan func()
	wg   sync.WaitGroup
}

// Open creates or opens the SQLite database at path and starts its
// writer goroutine. Callers must call Close when done.
func Open(path string) (*Vault, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, utils.Wrap(err, "open vault database")
	}
	// A single *sql.DB connection backs the single-writer goroutine; the
	// embedded engine is never asked to arbitrate concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, utils.Wrap(err, "create vault schema")
	}

	v := &Vault{db: db, cmds: make(chan func(), 64)}
	v.wg.Add(1)
	go v.loop()
	return v, nil
}

func (v *Vault) loop() {
	defer v.wg.Done()
	for cmd := range v.cmds {
		cmd()
	}
}

// run submits f to the writer goroutine and blocks for its result.
func (v *Vault) run(f func() error) error {
	done := make(chan error, 1)
	v.cmds <- func() { done <- f() }
	return <-done
}

// Close stops the writer goroutine and closes the underlying database.
func (v *Vault) Close() error {
	close(v.cmds)
	v.wg.Wait()
	return v.db.Close()
}

// StoreObject idempotently persists env's serialized body under hash and
// records its type in type_map. It reports whether this call actually
// added the row (added) or the hash was already present (!added), so a
// caller can distinguish a fresh store from a no-op re-store of content
// it already holds.
func (v *Vault) StoreObject(hash envelope.Hash, env envelope.Envelope) (added bool, err error) {
	err = v.run(func() error {
		body := envelope.Serialize(env)
		res, err := v.db.Exec(
			`INSERT INTO object (hash, body) VALUES (?, ?) ON CONFLICT(hash) DO NOTHING`,
			hash[:], body,
		)
		if err != nil {
			return utils.Wrap(err, "store object")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return utils.Wrap(err, "store object rows affected")
		}
		added = n > 0
		if _, err := v.db.Exec(
			`INSERT INTO type_map (hash, type_uuid) VALUES (?, ?) ON CONFLICT(hash) DO NOTHING`,
			hash[:], env.TypeUUID[:],
		); err != nil {
			return utils.Wrap(err, "store type map entry")
		}
		return nil
	})
	return added, err
}

// LoadObject returns the envelope stored at hash, if any.
func (v *Vault) LoadObject(hash envelope.Hash) (envelope.Envelope, bool, error) {
	var (
		env   envelope.Envelope
		found bool
	)
	err := v.run(func() error {
		row := v.db.QueryRow(`SELECT body FROM object WHERE hash = ?`, hash[:])
		var body []byte
		if err := row.Scan(&body); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return utils.Wrap(err, "load object")
		}
		parsed, rest, err := envelope.Deserialize(body)
		if err != nil {
			return err
		}
		if len(rest) != 0 {
			return fmt.Errorf("load object %s: %w", hash, objerr.ErrDecode)
		}
		env, found = parsed, true
		return nil
	})
	return env, found, err
}

// DeleteObject removes the object at hash, cascading to every pin_edge
// row whose main_hash equals it, and its type_map entry. It reports
// whether an object was actually present.
func (v *Vault) DeleteObject(hash envelope.Hash) (bool, error) {
	var removed bool
	err := v.run(func() error {
		res, err := v.db.Exec(`DELETE FROM object WHERE hash = ?`, hash[:])
		if err != nil {
			return utils.Wrap(err, "delete object")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return utils.Wrap(err, "delete object rows affected")
		}
		removed = n > 0
		if !removed {
			return nil
		}
		if _, err := v.db.Exec(`DELETE FROM type_map WHERE hash = ?`, hash[:]); err != nil {
			return utils.Wrap(err, "delete type map entry")
		}
		if _, err := v.db.Exec(`DELETE FROM pin_edge WHERE main_hash = ?`, hash[:]); err != nil {
			return utils.Wrap(err, "cascade delete pin edges")
		}
		return nil
	})
	return removed, err
}

// StorePin records a directed edge row: mainHash is the pin object's own
// hash, fromHash is pinned_id, toHash is the hash of the pin's inner
// envelope, relation optionally labels the edge.
func (v *Vault) StorePin(mainHash, fromHash, toHash envelope.Hash, relation *envelope.Hash) error {
	return v.run(func() error {
		var relBytes interface{}
		if relation != nil {
			relBytes = relation[:]
		}
		if _, err := v.db.Exec(
			`INSERT INTO pin_edge (main_hash, from_hash, to_hash, relation) VALUES (?, ?, ?, ?)`,
			mainHash[:], fromHash[:], toHash[:], relBytes,
		); err != nil {
			return utils.Wrap(err, "store pin edge")
		}
		return nil
	})
}

// MatchPins applies any combination of the three filters and returns the
// distinct set of main_hash values matching them. mainScope, when
// non-nil, restricts the search to that input set.
func (v *Vault) MatchPins(mainScope []envelope.Hash, from, relation *envelope.Hash) ([]envelope.Hash, error) {
	var out []envelope.Hash
	err := v.run(func() error {
		query := `SELECT DISTINCT main_hash FROM pin_edge WHERE 1=1`
		var args []interface{}
		if from != nil {
			query += ` AND from_hash = ?`
			args = append(args, from[:])
		}
		if relation != nil {
			query += ` AND relation = ?`
			args = append(args, relation[:])
		}
		if mainScope != nil {
			if len(mainScope) == 0 {
				return nil
			}
			placeholders := ""
			for i, h := range mainScope {
				if i > 0 {
					placeholders += ", "
				}
				placeholders += "?"
				args = append(args, h[:])
			}
			query += fmt.Sprintf(` AND main_hash IN (%s)`, placeholders)
		}

		rows, err := v.db.Query(query, args...)
		if err != nil {
			return utils.Wrap(err, "match pins")
		}
		defer rows.Close()
		for rows.Next() {
			var raw []byte
			if err := rows.Scan(&raw); err != nil {
				return utils.Wrap(err, "scan pin match")
			}
			var h envelope.Hash
			copy(h[:], raw)
			out = append(out, h)
		}
		return rows.Err()
	})
	return out, err
}

// TypedObject pairs a stored object's hash with its type_uuid.
type TypedObject struct {
	Hash     envelope.Hash
	TypeUUID envelope.TypeUUID
}

// ListTypedObjects returns every object's hash and registered type.
func (v *Vault) ListTypedObjects() ([]TypedObject, error) {
	var out []TypedObject
	err := v.run(func() error {
		rows, err := v.db.Query(`SELECT hash, type_uuid FROM type_map`)
		if err != nil {
			return utils.Wrap(err, "list typed objects")
		}
		defer rows.Close()
		for rows.Next() {
			var hashRaw, typeRaw []byte
			if err := rows.Scan(&hashRaw, &typeRaw); err != nil {
				return utils.Wrap(err, "scan typed object")
			}
			var t TypedObject
			copy(t.Hash[:], hashRaw)
			copy(t.TypeUUID[:], typeRaw)
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}
