package slots

import (
	"context"
	"fmt"
	"strconv"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// Key namespace:
//
//	"h:<n>"   host slot n    URL prefix (raw string)
//	"d:<n>"   disk slot n    Disk (CBOR)
const (
	prefixHost = "h:"
	prefixDisk = "d:"
)

func keyHost(i int) []byte { return []byte(prefixHost + strconv.Itoa(i)) }
func keyDisk(i int) []byte { return []byte(prefixDisk + strconv.Itoa(i)) }

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("slots: cbor encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyQuiet}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("slots: cbor decoder: %v", err))
	}
}

// BadgerStore keeps the slot table in a BadgerDB database.
type BadgerStore struct {
	db *badgerdb.DB
}

// Open opens (creating if needed) the database at dir. inMemory keeps it
// in memory and ignores dir.
func Open(dir string, inMemory bool) (*BadgerStore, error) {
	opts := badgerdb.DefaultOptions(dir)
	if inMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open slot store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Load reads the slot table. It returns ErrEmpty when nothing was saved.
func (s *BadgerStore) Load(ctx context.Context) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := NewState()
	found := false
	err := s.db.View(func(txn *badgerdb.Txn) error {
		for i := 0; i < Count; i++ {
			item, err := txn.Get(keyHost(i))
			switch {
			case err == badgerdb.ErrKeyNotFound:
			case err != nil:
				return err
			default:
				found = true
				if err := item.Value(func(val []byte) error {
					st.Hosts[i] = string(val)
					return nil
				}); err != nil {
					return err
				}
			}

			item, err = txn.Get(keyDisk(i))
			switch {
			case err == badgerdb.ErrKeyNotFound:
			case err != nil:
				return err
			default:
				found = true
				if err := item.Value(func(val []byte) error {
					return decMode.Unmarshal(val, &st.Disks[i])
				}); err != nil {
					return fmt.Errorf("decode disk slot %d: %w", i, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrEmpty
	}
	return st, nil
}

// Save replaces the stored table in one transaction.
func (s *BadgerStore) Save(ctx context.Context, st *State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		for i := 0; i < Count; i++ {
			if err := txn.Set(keyHost(i), []byte(st.Hosts[i])); err != nil {
				return err
			}
			val, err := encMode.Marshal(st.Disks[i])
			if err != nil {
				return fmt.Errorf("encode disk slot %d: %w", i, err)
			}
			if err := txn.Set(keyDisk(i), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
