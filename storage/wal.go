// Package storage implements InputLayer's on-disk durability: a
// write-ahead log of committed deltas, periodic segment checkpoints
// of relation extensions, and the per-KG metadata file tying the two
// together for crash recovery.
package storage

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/inputlayer/inputlayer/errs"
	"github.com/inputlayer/inputlayer/value"
)

// RecordKind distinguishes an assertion from a retraction in the log;
// the sign is carried again in Delta so a reader never has to trust
// the two agree, but Kind makes the common case greppable in a hex
// dump.
type RecordKind uint8

const (
	RecordAssert RecordKind = iota
	RecordRetract
)

// Record is one committed change to a single relation's extension.
type Record struct {
	Seq      int64
	Kind     RecordKind
	Relation string
	Tuple    value.Tuple
	Delta    int64
}

// DurabilityPolicy controls when Append fsyncs the log file.
type DurabilityPolicy uint8

const (
	// DurabilityImmediate fsyncs after every Append call.
	DurabilityImmediate DurabilityPolicy = iota
	// DurabilityGroup batches fsyncs: a call within GroupWindow of the
	// previous fsync is left unsynced, trading a small durability
	// window for throughput under high commit rates.
	DurabilityGroup
)

// WAL is an append-only, crash-recoverable log of Records. Each
// record is self-framed with a length prefix and trailing CRC32 so
// Replay can distinguish a clean end of file from a torn write left
// by a crash mid-append.
type WAL struct {
	mu          sync.Mutex
	path        string
	file        *os.File
	policy      DurabilityPolicy
	groupWindow time.Duration
	lastFsync   time.Time
	log         *logrus.Entry
}

// OpenWAL opens (creating if necessary) the log file at path for
// appending and replay.
func OpenWAL(path string, policy DurabilityPolicy, groupWindow time.Duration, log *logrus.Entry) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "storage: open wal")
	}
	return &WAL{path: path, file: f, policy: policy, groupWindow: groupWindow, log: log}, nil
}

// Append writes records to the log in order, then fsyncs according
// to the configured DurabilityPolicy. The caller must not consider
// any record durable until Append returns nil.
func (w *WAL) Append(records []Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := &bytes.Buffer{}
	for _, rec := range records {
		if err := encodeRecord(buf, rec); err != nil {
			return errors.Wrap(err, "storage: encode wal record")
		}
	}
	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "storage: wal append")
	}

	switch w.policy {
	case DurabilityGroup:
		if time.Since(w.lastFsync) < w.groupWindow {
			return nil
		}
	}
	return w.fsyncLocked()
}

// Flush forces a fsync regardless of the durability policy's window,
// for use before a checkpoint or at clean shutdown.
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fsyncLocked()
}

func (w *WAL) fsyncLocked() error {
	if err := w.file.Sync(); err != nil {
		return errors.Wrap(err, "storage: wal fsync")
	}
	w.lastFsync = time.Now()
	return nil
}

// Close fsyncs and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fsyncLocked(); err != nil {
		return err
	}
	return w.file.Close()
}

// Replay reads every complete record from the start of the log and
// calls fn with each in order. A torn trailing record — a length
// prefix written but its body or checksum cut short by a crash — ends
// replay silently, on the theory that the corresponding commit never
// reached a durable fsync and is rightly lost. A checksum mismatch
// inside a complete, correctly-framed record is never silent: it
// reports ErrWALCorruption, since that is a record a prior recovery
// or checkpoint may already have believed durable.
func (w *WAL) Replay(fn func(Record) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.replayLocked(fn)
}

func (w *WAL) replayLocked(fn func(Record) error) error {
	f, err := os.Open(w.path)
	if err != nil {
		return errors.Wrap(err, "storage: wal replay open")
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := decodeRecord(r)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			if w.log != nil && err == io.ErrUnexpectedEOF {
				w.log.WithField("path", w.path).Warn("storage: truncated wal tail discarded during replay")
			}
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// TruncateBefore rewrites the log keeping only records with Seq > seq,
// for use once a checkpoint has durably captured everything at or
// before seq. It writes the surviving records to a temp file, fsyncs
// it, then renames it over the original — the same write-temp,
// fsync, rename sequence used for the metadata file, so a crash mid-
// truncate never leaves a file that is neither the old log nor the
// new one.
func (w *WAL) TruncateBefore(seq int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var kept []Record
	if err := w.replayLocked(func(r Record) error {
		if r.Seq > seq {
			kept = append(kept, r)
		}
		return nil
	}); err != nil {
		return err
	}

	tmpPath := w.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "storage: wal truncate create temp")
	}
	buf := &bytes.Buffer{}
	for _, rec := range kept {
		if err := encodeRecord(buf, rec); err != nil {
			tmp.Close()
			return errors.Wrap(err, "storage: wal truncate encode")
		}
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return errors.Wrap(err, "storage: wal truncate write")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "storage: wal truncate fsync")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "storage: wal truncate close temp")
	}
	if err := w.file.Close(); err != nil {
		return errors.Wrap(err, "storage: wal truncate close old")
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return errors.Wrap(err, "storage: wal truncate rename")
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrap(err, "storage: wal reopen after truncate")
	}
	w.file = f
	return nil
}

// encodeRecord frames one record as: varint body length, body, u32
// CRC32(body). The body holds a fixed u64 seq, a kind byte, a
// varint-length-prefixed relation name (rather than a catalog-assigned
// relation id — see DESIGN.md), a varint-length-prefixed encoded
// tuple, and a fixed i64 delta.
func encodeRecord(w byteWriter, rec Record) error {
	body := &bytes.Buffer{}
	if err := writeFixed64(body, uint64(rec.Seq)); err != nil {
		return err
	}
	if err := body.WriteByte(byte(rec.Kind)); err != nil {
		return err
	}
	if err := writeVarint(body, int64(len(rec.Relation))); err != nil {
		return err
	}
	if _, err := body.Write([]byte(rec.Relation)); err != nil {
		return err
	}
	tupleBuf := &bytes.Buffer{}
	if err := encodeTuple(tupleBuf, rec.Tuple); err != nil {
		return err
	}
	if err := writeVarint(body, int64(tupleBuf.Len())); err != nil {
		return err
	}
	if _, err := body.Write(tupleBuf.Bytes()); err != nil {
		return err
	}
	if err := writeFixed64(body, uint64(rec.Delta)); err != nil {
		return err
	}

	if err := writeVarint(w, int64(body.Len())); err != nil {
		return err
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return err
	}
	return writeFixed32(w, crc32.ChecksumIEEE(body.Bytes()))
}

func decodeRecord(r *bufio.Reader) (Record, error) {
	bodyLen, err := binary.ReadVarint(r)
	if err != nil {
		return Record{}, err
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Record{}, io.ErrUnexpectedEOF
	}
	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return Record{}, io.ErrUnexpectedEOF
	}
	wantCRC := binary.LittleEndian.Uint32(crcBuf[:])
	if gotCRC := crc32.ChecksumIEEE(body); gotCRC != wantCRC {
		var seq int64
		if len(body) >= 8 {
			seq = int64(binary.LittleEndian.Uint64(body[:8]))
		}
		return Record{}, errs.ErrWALCorruption.New(seq)
	}

	br := bytes.NewReader(body)
	var seqBuf [8]byte
	if _, err := io.ReadFull(br, seqBuf[:]); err != nil {
		return Record{}, err
	}
	kindByte, err := br.ReadByte()
	if err != nil {
		return Record{}, err
	}
	relLen, err := binary.ReadVarint(br)
	if err != nil {
		return Record{}, err
	}
	relBuf := make([]byte, relLen)
	if _, err := io.ReadFull(br, relBuf); err != nil {
		return Record{}, err
	}
	tupleLen, err := binary.ReadVarint(br)
	if err != nil {
		return Record{}, err
	}
	tupleBuf := make([]byte, tupleLen)
	if _, err := io.ReadFull(br, tupleBuf); err != nil {
		return Record{}, err
	}
	tuple, err := decodeTuple(bytes.NewReader(tupleBuf))
	if err != nil {
		return Record{}, err
	}
	var deltaBuf [8]byte
	if _, err := io.ReadFull(br, deltaBuf[:]); err != nil {
		return Record{}, err
	}

	return Record{
		Seq:      int64(binary.LittleEndian.Uint64(seqBuf[:])),
		Kind:     RecordKind(kindByte),
		Relation: string(relBuf),
		Tuple:    tuple,
		Delta:    int64(binary.LittleEndian.Uint64(deltaBuf[:])),
	}, nil
}
