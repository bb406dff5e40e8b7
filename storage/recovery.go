package storage

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Recover rebuilds a KG's state from its last checkpoint forward: it
// loads whichever segments ActiveSegments names and feeds their rows
// to apply as synthetic assertions at the checkpoint seq, then
// replays every WAL record with a higher seq in order. A KG that has
// never checkpointed recovers from an empty segment set and a full
// WAL replay. Recover returns the seq new commits should continue
// from.
func Recover(meta *Metadata, wal *WAL, log *logrus.Entry, apply func(relation string, row Record) error) (int64, error) {
	checkpointSeq, segments, err := meta.ActiveSegments()
	if err != nil {
		return 0, errors.Wrap(err, "storage: recover read segments")
	}

	for _, seg := range segments {
		rows, err := ReadSegment(seg.Path)
		if err != nil {
			return 0, errors.Wrapf(err, "storage: recover read segment %s", seg.Path)
		}
		for _, row := range rows {
			rec := Record{Seq: seg.Seq, Kind: RecordAssert, Relation: seg.Relation, Tuple: row, Delta: 1}
			if err := apply(seg.Relation, rec); err != nil {
				return 0, errors.Wrapf(err, "storage: recover apply segment row for %s", seg.Relation)
			}
		}
	}
	if log != nil {
		log.WithFields(logrus.Fields{"checkpoint_seq": checkpointSeq, "segments": len(segments)}).Info("storage: loaded checkpoint")
	}

	maxSeq := checkpointSeq
	replayed := 0
	err = wal.Replay(func(rec Record) error {
		if rec.Seq <= checkpointSeq {
			return nil
		}
		if err := apply(rec.Relation, rec); err != nil {
			return err
		}
		if rec.Seq > maxSeq {
			maxSeq = rec.Seq
		}
		replayed++
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "storage: recover replay wal")
	}
	if log != nil {
		log.WithFields(logrus.Fields{"replayed": replayed, "resume_seq": maxSeq}).Info("storage: wal replay complete")
	}
	return maxSeq, nil
}
