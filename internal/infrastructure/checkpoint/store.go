package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/alexisbeaulieu97/opgraph/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/opgraph/internal/network"
	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/ports"
	"github.com/alexisbeaulieu97/opgraph/internal/scheduler"
	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

// ErrNotFound is returned by Load when no record exists for the node.
var ErrNotFound = errors.New("checkpoint not found")

// ErrNetworkMismatch is returned by Resume when stored records do not fit the
// network being resumed.
var ErrNetworkMismatch = errors.New("checkpoint does not match network")

const runPrefix = "run/"

// Options configures a Store.
type Options struct {
	// Dir is the badger directory. Required unless InMemory is set.
	Dir         string
	InMemory    bool
	SyncWrites  bool
	Compression Compression
	Logger      ports.Logger
}

// Store keeps checkpoint records in badger under run/<run_id>/node/<index>.
// Run IDs are checked with ValidateRunID before they reach a key.
type Store struct {
	db         *badger.DB
	serializer *Serializer
	logger     ports.Logger
}

// Open opens or creates a store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, opgrapherrors.NewStorageError("open", "", errors.New("directory is required for a persistent store"))
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	logger = logger.With("component", "checkpoint")

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, opgrapherrors.NewStorageError("open", opts.Dir, err)
		}
		bopts = badger.DefaultOptions(opts.Dir).WithSyncWrites(opts.SyncWrites)
	}
	bopts = bopts.WithLogger(&badgerLogger{logger: logger})

	serializer, err := NewSerializer(opts.Compression)
	if err != nil {
		return nil, opgrapherrors.NewStorageError("open", opts.Dir, err)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		serializer.Close()
		return nil, opgrapherrors.NewStorageError("open", opts.Dir, err)
	}
	return &Store{db: db, serializer: serializer, logger: logger}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	defer s.serializer.Close()
	if err := s.db.Close(); err != nil {
		return opgrapherrors.NewStorageError("close", "", err)
	}
	return nil
}

func nodeKey(runID string, node int) string {
	return runPrefix + runID + "/node/" + strconv.Itoa(node)
}

func runKeyPrefix(runID string) string {
	return runPrefix + runID + "/node/"
}

// Save writes one completed node.
func (s *Store) Save(ctx context.Context, cp scheduler.Checkpoint) error {
	if err := ValidateRunID(cp.RunID); err != nil {
		return opgrapherrors.NewStorageError("save", "", err)
	}
	key := nodeKey(cp.RunID, cp.Node)
	rec, err := FromCheckpoint(cp)
	if err != nil {
		return opgrapherrors.NewStorageError("save", key, err)
	}
	data, err := s.serializer.Marshal(rec)
	if err != nil {
		return opgrapherrors.NewStorageError("save", key, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	}); err != nil {
		return opgrapherrors.NewStorageError("save", key, err)
	}
	s.logger.Debug(ctx, "checkpoint saved", "key", key, "bytes", len(data))
	return nil
}

// Load reads and verifies one record.
func (s *Store) Load(_ context.Context, runID string, node int) (Record, error) {
	if err := ValidateRunID(runID); err != nil {
		return Record{}, opgrapherrors.NewStorageError("load", "", err)
	}
	key := nodeKey(runID, node)
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return s.serializer.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, opgrapherrors.NewStorageError("load", key, ErrNotFound)
	}
	if err != nil {
		return Record{}, opgrapherrors.NewStorageError("load", key, err)
	}
	if err := rec.Verify(); err != nil {
		return Record{}, opgrapherrors.NewStorageError("load", key, err)
	}
	return rec, nil
}

// List returns every record of a run ordered by node index.
func (s *Store) List(_ context.Context, runID string) ([]Record, error) {
	if err := ValidateRunID(runID); err != nil {
		return nil, opgrapherrors.NewStorageError("list", "", err)
	}
	prefix := []byte(runKeyPrefix(runID))
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 16})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var rec Record
			if err := item.Value(func(val []byte) error {
				return s.serializer.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("%s: %w", item.Key(), err)
			}
			if err := rec.Verify(); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, opgrapherrors.NewStorageError("list", string(prefix), err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Node < records[j].Node })
	return records, nil
}

// Runs returns the distinct run identifiers in the store, sorted.
func (s *Store) Runs(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(runPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), runPrefix)
			if i := strings.Index(rest, "/node/"); i > 0 {
				seen[rest[:i]] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, opgrapherrors.NewStorageError("runs", runPrefix, err)
	}
	runs := make([]string, 0, len(seen))
	for id := range seen {
		runs = append(runs, id)
	}
	sort.Strings(runs)
	return runs, nil
}

// Resume decodes a run's records into the form scheduler.WithResume takes.
// Every record must still describe the node at its index in net: same opcode
// and, when recorded, same label. Otherwise the definition changed since the
// run and ErrNetworkMismatch is returned.
func (s *Store) Resume(ctx context.Context, runID string, net *network.Network) (map[int]operator.Outputs, error) {
	if net == nil {
		return nil, opgrapherrors.NewStorageError("resume", runKeyPrefix(runID), errors.New("network is nil"))
	}
	records, err := s.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	outputs := make(map[int]operator.Outputs, len(records))
	for _, rec := range records {
		if err := matchNode(rec, net.Node(rec.Node)); err != nil {
			return nil, opgrapherrors.NewStorageError("resume", nodeKey(runID, rec.Node), err)
		}
		out, err := rec.DecodeOutputs()
		if err != nil {
			return nil, opgrapherrors.NewStorageError("resume", nodeKey(runID, rec.Node), err)
		}
		outputs[rec.Node] = out
	}
	s.logger.Info(ctx, "checkpoints loaded", "run_id", runID, "nodes", len(outputs))
	return outputs, nil
}

func matchNode(rec Record, node *network.Node) error {
	if node == nil || node.Op == nil {
		return fmt.Errorf("%w: node %d no longer exists", ErrNetworkMismatch, rec.Node)
	}
	if op := string(node.Op.Opcode()); op != rec.Opcode {
		return fmt.Errorf("%w: node %d was %s, now %s", ErrNetworkMismatch, rec.Node, rec.Opcode, op)
	}
	if rec.Label != "" && rec.Label != node.Name() {
		return fmt.Errorf("%w: node %d was labeled %q, now %q", ErrNetworkMismatch, rec.Node, rec.Label, node.Name())
	}
	return nil
}

// DeleteRun removes every record of a run.
func (s *Store) DeleteRun(ctx context.Context, runID string) (int, error) {
	if err := ValidateRunID(runID); err != nil {
		return 0, opgrapherrors.NewStorageError("delete", "", err)
	}
	prefix := runKeyPrefix(runID)
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, opgrapherrors.NewStorageError("delete", prefix, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, opgrapherrors.NewStorageError("delete", string(k), err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, opgrapherrors.NewStorageError("delete", prefix, err)
	}
	s.logger.Info(ctx, "checkpoints deleted", "run_id", runID, "records", len(keys))
	return len(keys), nil
}

// Hook returns a scheduler checkpoint function backed by the store.
func Hook(s *Store) scheduler.CheckpointFunc {
	return func(ctx context.Context, cp scheduler.Checkpoint) error {
		return s.Save(ctx, cp)
	}
}

// badgerLogger routes badger's own log output through ports.Logger. Badger
// is chatty at info level, so that is demoted to debug.
type badgerLogger struct {
	logger ports.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}
