package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var metaBucket = []byte("meta")

const segmentsKey = "segments"

// CatalogSnapshot is the immutable half of a KG's metadata: the
// schema and rule text needed to rebuild the catalog without
// replaying the full WAL. It changes only when DDL runs (rel/rule
// statements), so it is written with a write-temp-file, fsync,
// rename sequence rather than kept in the transactional store.
type CatalogSnapshot struct {
	Relations []byte `json:"relations"` // lang-level source text, re-parsed on load
	Rules     []byte `json:"rules"`
}

// Metadata owns a KG's on-disk bookkeeping: the catalog snapshot file
// and a boltdb database holding the two tables that change on every
// checkpoint or ACL edit — the active segment list and the ACL grant
// table — so those updates get boltdb's transactional atomicity
// instead of a full file rewrite each time.
type Metadata struct {
	dir        string
	catalogPath string
	db         *bolt.DB
}

// OpenMetadata opens (creating if necessary) the metadata store
// rooted at dir.
func OpenMetadata(dir string) (*Metadata, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "storage: create metadata dir")
	}
	db, err := bolt.Open(filepath.Join(dir, "meta.db"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "storage: open metadata db")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "storage: init metadata bucket")
	}
	return &Metadata{dir: dir, catalogPath: filepath.Join(dir, "catalog.json"), db: db}, nil
}

func (m *Metadata) Close() error {
	return m.db.Close()
}

// WriteCatalog durably replaces the catalog snapshot via write-temp,
// fsync, rename, so a reader never observes a partially-written
// version and a crash mid-write leaves the previous snapshot intact.
func (m *Metadata) WriteCatalog(snap CatalogSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "storage: marshal catalog snapshot")
	}
	tmpPath := m.catalogPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "storage: create catalog temp file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "storage: write catalog temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "storage: fsync catalog temp file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "storage: close catalog temp file")
	}
	return os.Rename(tmpPath, m.catalogPath)
}

// ReadCatalog loads the most recently written catalog snapshot, or
// returns os.ErrNotExist if none has ever been written.
func (m *Metadata) ReadCatalog() (CatalogSnapshot, error) {
	data, err := os.ReadFile(m.catalogPath)
	if err != nil {
		return CatalogSnapshot{}, err
	}
	var snap CatalogSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return CatalogSnapshot{}, errors.Wrap(err, "storage: unmarshal catalog snapshot")
	}
	return snap, nil
}

// CommitSegments atomically records the active segment list and the
// checkpoint seq it reflects, replacing whatever was recorded before.
func (m *Metadata) CommitSegments(seq int64, segments []Segment) error {
	record := struct {
		Seq      int64     `json:"seq"`
		Segments []Segment `json:"segments"`
	}{Seq: seq, Segments: segments}
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "storage: marshal segment record")
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put([]byte(segmentsKey), data)
	})
}

// ActiveSegments returns the most recently committed segment list and
// the checkpoint seq it reflects. It returns seq 0 and a nil slice if
// no checkpoint has ever run.
func (m *Metadata) ActiveSegments() (int64, []Segment, error) {
	var record struct {
		Seq      int64     `json:"seq"`
		Segments []Segment `json:"segments"`
	}
	err := m.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(metaBucket).Get([]byte(segmentsKey))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return 0, nil, errors.Wrap(err, "storage: read segment record")
	}
	return record.Seq, record.Segments, nil
}

// Grant is one principal's permission on one relation, persisted
// alongside the segment table so ACL edits share its transactional
// update path.
type Grant struct {
	Principal string `json:"principal"`
	Relation  string `json:"relation"`
	Perm      string `json:"perm"`
}

func grantKey(principal, relation string) []byte {
	return []byte(principal + "\x00" + relation)
}

// PutGrant records or replaces a principal's grant on a relation.
func (m *Metadata) PutGrant(g Grant) error {
	data, err := json.Marshal(g)
	if err != nil {
		return errors.Wrap(err, "storage: marshal grant")
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(grantKey(g.Principal, g.Relation), data)
	})
}

// RevokeGrant removes a principal's grant on a relation, if any.
func (m *Metadata) RevokeGrant(principal, relation string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Delete(grantKey(principal, relation))
	})
}

// Grants returns every grant currently recorded for principal.
func (m *Metadata) Grants(principal string) ([]Grant, error) {
	var out []Grant
	prefix := []byte(principal + "\x00")
	err := m.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(metaBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var g Grant
			if err := json.Unmarshal(v, &g); err != nil {
				return err
			}
			out = append(out, g)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "storage: scan grants")
	}
	return out, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
