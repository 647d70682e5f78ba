// Package history implements the local message log of a peer. Received
// messages are CBOR-encoded under monotonically increasing sequence keys so
// the tail of the log can be read back for the /history command.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	log "github.com/sirupsen/logrus"

	"peerchat/datamodel/message"
)

const keyPrefixSeq = "SEQ" // Entries indexed by a 16-digit hexadecimal sequence number (64 bit)

var ErrCorrupted = fmt.Errorf("corrupted")

// Entry is one logged message plus the local time it arrived.
type Entry struct {
	Type       string    `cbor:"1,keyasint,omitempty"`
	From       string    `cbor:"2,keyasint,omitempty"`
	Content    string    `cbor:"3,keyasint,omitempty"`
	ReceivedAt time.Time `cbor:"4,keyasint,omitempty"`
}

type Store struct {
	path string
	mu   sync.Mutex
	db   *leveldb.DB
	seq  uint64
}

func keyFromSeq(seq uint64) []byte {
	return append([]byte(keyPrefixSeq), []byte(fmt.Sprintf("%016x", seq))...)
}

func seqFromKey(key []byte) (uint64, error) {
	if len(key) != len(keyPrefixSeq)+16 {
		return 0, fmt.Errorf("seqFromKey: invalid key length: %d", len(key))
	}
	if string(key[:len(keyPrefixSeq)]) != keyPrefixSeq {
		return 0, fmt.Errorf("seqFromKey: invalid key prefix: %s", string(key[:len(keyPrefixSeq)]))
	}
	var seq uint64
	if _, err := fmt.Sscanf(string(key[len(keyPrefixSeq):]), "%016x", &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// Open opens (or creates) the history log at path and recovers the last
// used sequence number by scanning to the final key.
func Open(path string) (*Store, error) {
	opts := &opt.Options{
		Compression: opt.NoCompression,
	}

	db, err := leveldb.OpenFile(path, opts)
	if errors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}

	var maxSeq uint64
	iter := db.NewIterator(util.BytesPrefix([]byte(keyPrefixSeq)), nil)
	if iter.Last() {
		seq, err := seqFromKey(iter.Key())
		if err != nil {
			iter.Release()
			db.Close()
			return nil, err
		}
		maxSeq = seq
	}
	iter.Release()

	log.Infof("history: opened log at %s, %d entries seen", path, maxSeq)

	return &Store{
		path: path,
		db:   db,
		seq:  maxSeq,
	}, nil
}

// Append logs one received message.
func (s *Store) Append(msg message.Message, receivedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &Entry{
		Type:       string(msg.Type),
		From:       msg.From,
		Content:    msg.Content,
		ReceivedAt: receivedAt,
	}

	raw, err := cbor.Marshal(entry)
	if err != nil {
		return err
	}

	newSeq := s.seq + 1
	if err := s.db.Put(keyFromSeq(newSeq), raw, nil); err != nil {
		return err
	}

	s.seq = newSeq
	return nil
}

// Recent returns up to n of the newest entries, oldest first.
func (s *Store) Recent(n int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		return nil, nil
	}

	var start uint64 = 1
	if s.seq > uint64(n) {
		start = s.seq - uint64(n) + 1
	}

	var results []*Entry

	iter := s.db.NewIterator(&util.Range{Start: keyFromSeq(start), Limit: keyFromSeq(s.seq + 1)}, nil)
	defer iter.Release()

	for iter.Next() {
		entry := &Entry{}
		if err := cbor.Unmarshal(iter.Value(), entry); err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	return results, nil
}

// Len returns the number of logged entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.seq)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
