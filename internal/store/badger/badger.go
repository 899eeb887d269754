package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

const keyspace = "msg:"

// BadgerStore implements store.HistoryStore on top of BadgerDB.
//
// Keys are "msg:{len(room)}:{room}:{seq:019d}:{ts:019d}". The length prefix
// keeps room prefixes disjoint, and the zero padding makes lexicographic key
// order match seq order. Timestamps never decrease as seq grows, so a prefix
// scan returns a room's log in both append and timestamp order.
type BadgerStore struct {
	db *badger.DB
}

type record struct {
	Author    string `json:"author"`
	Body      string `json:"body"`
	Timestamp int64  `json:"ts"`
	Seq       uint64 `json:"seq"`
}

// New opens (or creates) a Badger database at dir.
func New(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewInMemory opens a Badger database that lives only in memory.
func NewInMemory() (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func roomPrefix(room string) []byte {
	return []byte(keyspace + strconv.Itoa(len(room)) + ":" + room + ":")
}

func messageKey(msg *store.Message) []byte {
	return fmt.Appendf(roomPrefix(msg.Room), "%019d:%019d", msg.Seq, msg.Timestamp)
}

// Append persists msg. The seq is checked against the partition head inside
// the same transaction so a reused seq is rejected.
func (b *BadgerStore) Append(ctx context.Context, msg *store.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(record{
		Author:    msg.Author,
		Body:      msg.Body,
		Timestamp: msg.Timestamp,
		Seq:       msg.Seq,
	})
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		head, err := headInTxn(txn, msg.Room)
		if err != nil {
			return err
		}
		if msg.Seq <= head.Seq {
			return store.ErrConflict
		}
		return txn.Set(messageKey(msg), value)
	})
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// Scan walks the room prefix in key order and returns one page.
func (b *BadgerStore) Scan(ctx context.Context, room string, after, upTo uint64, limit int) ([]*store.Message, error) {
	if after == math.MaxUint64 {
		return nil, nil
	}

	var messages []*store.Message
	prefix := roomPrefix(room)

	err := b.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		seek := fmt.Appendf(append([]byte{}, prefix...), "%019d", after+1)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(messages) == limit {
				break
			}
			var rec record
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %q: %w", it.Item().Key(), err)
			}
			if upTo > 0 && rec.Seq > upTo {
				break
			}
			messages = append(messages, &store.Message{
				Room:      room,
				Seq:       rec.Seq,
				Author:    rec.Author,
				Body:      rec.Body,
				Timestamp: rec.Timestamp,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	return messages, nil
}

// Head returns the last entry of the room prefix.
func (b *BadgerStore) Head(_ context.Context, room string) (store.Head, error) {
	var head store.Head
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		head, err = headInTxn(txn, room)
		return err
	})
	if err != nil {
		return store.Head{}, fmt.Errorf("query head: %w", err)
	}
	return head, nil
}

func headInTxn(txn *badger.Txn, room string) (store.Head, error) {
	prefix := roomPrefix(room)
	options := badger.DefaultIteratorOptions
	options.Reverse = true
	options.PrefetchValues = false
	options.Prefix = prefix
	it := txn.NewIterator(options)
	defer it.Close()

	// Seek past every possible key of the room, then step back.
	it.Seek(append(append([]byte{}, prefix...), 0xff))
	if !it.ValidForPrefix(prefix) {
		return store.Head{}, nil
	}
	return parseHead(it.Item().Key()[len(prefix):])
}

// parseHead decodes the "{seq}:{ts}" suffix of a key.
func parseHead(suffix []byte) (store.Head, error) {
	seqPart, tsPart, ok := strings.Cut(string(suffix), ":")
	if !ok {
		return store.Head{}, errors.New("malformed history key")
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return store.Head{}, fmt.Errorf("parse key timestamp: %w", err)
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return store.Head{}, fmt.Errorf("parse key seq: %w", err)
	}
	return store.Head{Seq: seq, Timestamp: ts}, nil
}

// Rooms walks every key once, without fetching values.
func (b *BadgerStore) Rooms(ctx context.Context) ([]store.RoomSummary, error) {
	var rooms []store.RoomSummary
	err := b.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = []byte(keyspace)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			room, suffix, err := splitKey(it.Item().Key())
			if err != nil {
				return err
			}
			head, err := parseHead(suffix)
			if err != nil {
				return err
			}
			if n := len(rooms); n == 0 || rooms[n-1].Room != room {
				rooms = append(rooms, store.RoomSummary{Room: room})
			}
			last := &rooms[len(rooms)-1]
			last.Messages++
			last.Head = head
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	slices.SortFunc(rooms, func(a, b store.RoomSummary) int {
		return strings.Compare(a.Room, b.Room)
	})
	return rooms, nil
}

// splitKey returns the room and the "{seq}:{ts}" suffix of a history key.
func splitKey(key []byte) (string, []byte, error) {
	rest := strings.TrimPrefix(string(key), keyspace)
	lenPart, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return "", nil, fmt.Errorf("malformed history key %q", key)
	}
	n, err := strconv.Atoi(lenPart)
	if err != nil || n < 0 || len(rest) < n+1 {
		return "", nil, fmt.Errorf("malformed history key %q", key)
	}
	return rest[:n], []byte(rest[n+1:]), nil
}
