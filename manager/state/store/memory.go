package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	events "github.com/docker/go-events"
	metrics "github.com/docker/go-metrics"
	memdb "github.com/hashicorp/go-memdb"
	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/watch"
	"github.com/pkg/errors"
)

const (
	indexID       = "id"
	indexName     = "name"
	indexNetwork  = "network"
	indexNodeID   = "nodeid"
	indexHostname = "hostname"
	indexDigest   = "digest"
)

var (
	// ErrExist is returned by create operations if the provided ID is already
	// taken.
	ErrExist = errors.New("object already exists")

	// ErrNotExist is returned by altering operations (update, delete) if the
	// provided ID is not found.
	ErrNotExist = errors.New("object does not exist")

	// ErrNameConflict is returned by create/update if the object name is
	// already in use by another object.
	ErrNameConflict = errors.New("name conflicts with an existing object")

	// ErrInvalidFindBy is returned if an unrecognized type is passed to Find.
	ErrInvalidFindBy = errors.New("invalid find argument type")

	// ErrSequenceConflict is returned when trying to update an object
	// whose sequence information does not match the object in the store's.
	ErrSequenceConflict = errors.New("update out of sequence")

	objectStorers []ObjectStoreConfig
	schema        = &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{},
	}

	updateLatencyTimer metrics.Timer
	viewLatencyTimer   metrics.Timer
)

func init() {
	ns := metrics.NewNamespace("meshkit", "store", nil)
	updateLatencyTimer = ns.NewTimer("write_tx_latency",
		"Store write transaction latency.")
	viewLatencyTimer = ns.NewTimer("read_tx_latency",
		"Store read transaction latency.")
	metrics.Register(ns)
}

func register(os ObjectStoreConfig) {
	objectStorers = append(objectStorers, os)
	schema.Tables[os.Table.Name] = os.Table
}

// StoreActionKind is the kind of change carried by a StoreAction.
type StoreActionKind int

const (
	StoreActionKindCreate StoreActionKind = iota + 1
	StoreActionKindUpdate
	StoreActionKindRemove
)

// StoreAction describes one change made by a transaction. Proposers receive
// the full list of actions of a transaction before it commits.
type StoreAction struct {
	Kind   StoreActionKind
	Target api.StoreObject
}

// Proposer is something that must durably accept a transaction's changes
// before the store commits them. If ProposeValue returns an error the
// transaction is aborted. cb must be called once the changes are durable.
type Proposer interface {
	ProposeValue(ctx context.Context, actions []StoreAction, cb func()) error
}

// MemoryStore is a concurrency-safe, in-memory implementation of the Store
// interface.
type MemoryStore struct {
	// updateLock must be held during an update transaction.
	updateLock sync.Mutex

	memDB *memdb.MemDB
	queue *watch.Queue

	// version is the index of the last committed write transaction. It is
	// only touched with updateLock held.
	version uint64

	proposer Proposer
}

// NewMemoryStore returns an in-memory store. The argument is an optional
// Proposer which will be used to persist changes before they are committed.
func NewMemoryStore(proposer Proposer) *MemoryStore {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		// This shouldn't fail
		panic(err)
	}

	return &MemoryStore{
		memDB:    memDB,
		queue:    watch.NewQueue(),
		proposer: proposer,
	}
}

// Close closes the memory store and frees its associated resources.
func (s *MemoryStore) Close() error {
	return s.queue.Close()
}

func fromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("must provide only a single argument")
	}
	arg, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("argument must be a string: %#v", args[0])
	}
	// Add the null character as a terminator
	arg += "\x00"
	return []byte(arg), nil
}

// ReadTx is a read transaction. Note that transaction does not imply
// any internal batching. It only means that the transaction presents a
// consistent view of the data that cannot be affected by other
// transactions.
type ReadTx interface {
	lookup(table, index string, args ...interface{}) api.StoreObject
	get(table, id string) api.StoreObject
	find(table string, by By, checkType func(By) error, appendResult func(api.StoreObject)) error
}

type readTx struct {
	memDBTx *memdb.Txn
}

// View executes a read transaction.
func (s *MemoryStore) View(cb func(ReadTx) error) error {
	defer metrics.StartTimer(viewLatencyTimer)()
	memDBTx := s.memDB.Txn(false)

	readTx := readTx{
		memDBTx: memDBTx,
	}
	err := cb(readTx)
	memDBTx.Commit()
	return err
}

// Tx is a read/write transaction. Note that transaction does not imply
// any internal batching. The purpose of this transaction is to give the
// user a guarantee that its changes won't be visible to other transactions
// until the transaction is over.
type Tx interface {
	ReadTx
	create(table string, o api.StoreObject) error
	update(table string, o api.StoreObject) error
	delete(table, id string) error
}

type tx struct {
	readTx
	curVersion *api.Version
	now        time.Time
	changelist []Event
	actions    []StoreAction
}

func (s *MemoryStore) update(proposer Proposer, cb func(Tx) error) error {
	defer metrics.StartTimer(updateLatencyTimer)()
	s.updateLock.Lock()
	defer s.updateLock.Unlock()

	memDBTx := s.memDB.Txn(true)

	curVersion := &api.Version{Index: s.version + 1}

	var tx tx
	tx.init(memDBTx, curVersion)

	err := cb(&tx)

	if err == nil {
		if proposer == nil || len(tx.actions) == 0 {
			memDBTx.Commit()
		} else {
			err = proposer.ProposeValue(context.Background(), tx.actions, func() {
				memDBTx.Commit()
			})
		}
	}

	if err != nil {
		memDBTx.Abort()
		return err
	}

	if len(tx.changelist) != 0 {
		s.version = curVersion.Index
		for _, c := range tx.changelist {
			s.queue.Publish(c)
		}
		s.queue.Publish(EventCommit{Version: *curVersion})
	}
	return nil
}

// Update executes a read/write transaction. If cb returns an error, or the
// proposer rejects the changes, none of the changes made by cb are applied.
func (s *MemoryStore) Update(cb func(Tx) error) error {
	return s.update(s.proposer, cb)
}

func (tx *tx) init(memDBTx *memdb.Txn, curVersion *api.Version) {
	tx.memDBTx = memDBTx
	tx.curVersion = curVersion
	tx.now = time.Now().UTC()
	tx.changelist = nil
	tx.actions = nil
}

// lookup is an internal typed wrapper around memdb.
func (tx readTx) lookup(table, index string, args ...interface{}) api.StoreObject {
	j, err := tx.memDBTx.First(table, index, args...)
	if err != nil {
		return nil
	}
	if j != nil {
		return j.(api.StoreObject)
	}
	return nil
}

func (tx *tx) checkConflict(table string, o api.StoreObject) error {
	for _, os := range objectStorers {
		if os.Table.Name == table && os.CheckConflict != nil {
			return os.CheckConflict(tx, o)
		}
	}
	return nil
}

// create adds a new object to the store.
// Returns ErrExist if the ID is already taken.
func (tx *tx) create(table string, o api.StoreObject) error {
	if tx.lookup(table, indexID, o.GetID()) != nil {
		return ErrExist
	}
	if err := tx.checkConflict(table, o); err != nil {
		return err
	}

	meta := o.GetMeta()
	meta.Version = *tx.curVersion
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = tx.now
	}
	meta.UpdatedAt = tx.now
	o.SetMeta(meta)

	copy := o.CopyStoreObject()
	err := tx.memDBTx.Insert(table, copy)
	if err == nil {
		tx.changelist = append(tx.changelist, EventCreate{Object: copy})
		tx.actions = append(tx.actions, StoreAction{Kind: StoreActionKindCreate, Target: copy})
	}
	return err
}

// update updates an existing object in the store.
// Returns ErrNotExist if the object doesn't exist.
func (tx *tx) update(table string, o api.StoreObject) error {
	oldN := tx.lookup(table, indexID, o.GetID())
	if oldN == nil {
		return ErrNotExist
	}

	if oldN.GetMeta().Version != o.GetMeta().Version {
		return ErrSequenceConflict
	}
	if err := tx.checkConflict(table, o); err != nil {
		return err
	}

	meta := o.GetMeta()
	meta.Version = *tx.curVersion
	meta.CreatedAt = oldN.GetMeta().CreatedAt
	meta.UpdatedAt = tx.now
	o.SetMeta(meta)

	copy := o.CopyStoreObject()
	err := tx.memDBTx.Insert(table, copy)
	if err == nil {
		tx.changelist = append(tx.changelist, EventUpdate{Object: copy, OldObject: oldN})
		tx.actions = append(tx.actions, StoreAction{Kind: StoreActionKindUpdate, Target: copy})
	}
	return err
}

// delete removes an object from the store.
// Returns ErrNotExist if the object doesn't exist.
func (tx *tx) delete(table, id string) error {
	n := tx.lookup(table, indexID, id)
	if n == nil {
		return ErrNotExist
	}

	err := tx.memDBTx.Delete(table, n)
	if err == nil {
		tx.changelist = append(tx.changelist, EventDelete{Object: n})
		tx.actions = append(tx.actions, StoreAction{Kind: StoreActionKindRemove, Target: n})
	}
	return err
}

// get looks up an object by ID.
// Returns nil if the object doesn't exist.
func (tx readTx) get(table, id string) api.StoreObject {
	o := tx.lookup(table, indexID, id)
	if o == nil {
		return nil
	}
	return o.CopyStoreObject()
}

// find selects a set of objects calls a callback for each matching object.
func (tx readTx) find(table string, by By, checkType func(By) error, appendResult func(api.StoreObject)) error {
	fromResultIterator := func(it memdb.ResultIterator) {
		for {
			obj := it.Next()
			if obj == nil {
				break
			}
			appendResult(obj.(api.StoreObject).CopyStoreObject())
		}
	}

	if err := checkType(by); err != nil {
		return err
	}

	var (
		it  memdb.ResultIterator
		err error
	)
	switch v := by.(type) {
	case byAll:
		it, err = tx.memDBTx.Get(table, indexID)
	case byName:
		it, err = tx.memDBTx.Get(table, indexName, string(v))
	case byNetwork:
		it, err = tx.memDBTx.Get(table, indexNetwork, string(v))
	case byNode:
		it, err = tx.memDBTx.Get(table, indexNodeID, string(v))
	case byHostname:
		it, err = tx.memDBTx.Get(table, indexHostname, v.networkID, v.hostname)
	case byDigest:
		it, err = tx.memDBTx.Get(table, indexDigest, string(v))
	default:
		return ErrInvalidFindBy
	}
	if err != nil {
		return err
	}
	fromResultIterator(it)
	return nil
}

// Snapshot is the full content of the store, as written to and read from
// durable storage.
type Snapshot struct {
	Networks        []*api.Network        `json:"network"`
	Nodes           []*api.Node           `json:"node"`
	Certificates    []*api.Certificate    `json:"certificate"`
	EnrollmentCodes []*api.EnrollmentCode `json:"enrollment_code"`
	DeviceTokens    []*api.DeviceToken    `json:"device_token"`
	Allocations     []*api.Allocation     `json:"allocation"`
}

// Save serializes the data in the store.
func (s *MemoryStore) Save(tx ReadTx) (*Snapshot, error) {
	var snapshot Snapshot
	for _, os := range objectStorers {
		if err := os.Save(tx, &snapshot); err != nil {
			return nil, err
		}
	}

	return &snapshot, nil
}

// Restore sets the contents of the store to the serialized data in the
// argument. The restored objects keep their metadata and are not sent to
// the proposer.
func (s *MemoryStore) Restore(snapshot *Snapshot) error {
	s.updateLock.Lock()
	defer s.updateLock.Unlock()

	memDBTx := s.memDB.Txn(true)
	var maxVersion uint64
	for _, os := range objectStorers {
		objs := os.Restore(snapshot)
		it, err := memDBTx.Get(os.Table.Name, indexID)
		if err != nil {
			memDBTx.Abort()
			return err
		}
		var existing []interface{}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			existing = append(existing, obj)
		}
		for _, obj := range existing {
			if err := memDBTx.Delete(os.Table.Name, obj); err != nil {
				memDBTx.Abort()
				return err
			}
		}
		for _, o := range objs {
			if err := memDBTx.Insert(os.Table.Name, o.CopyStoreObject()); err != nil {
				memDBTx.Abort()
				return errors.Wrapf(err, "restoring %s %s", os.Table.Name, o.GetID())
			}
			if v := o.GetMeta().Version.Index; v > maxVersion {
				maxVersion = v
			}
		}
	}
	memDBTx.Commit()
	s.version = maxVersion
	return nil
}

// WatchQueue returns the publish/subscribe queue.
func (s *MemoryStore) WatchQueue() *watch.Queue {
	return s.queue
}

// ViewAndWatch calls a callback which can observe the state of this
// MemoryStore. It also returns a channel that will return further events from
// this point so the snapshot can be kept up to date. The watch channel must be
// released with the returned cancel function.
func (s *MemoryStore) ViewAndWatch(cb func(ReadTx) error) (watch chan events.Event, cancel func(), err error) {
	// Using the update lock to prevent concurrent updates while the
	// callback runs. This guarantees no event is lost.
	s.updateLock.Lock()
	defer s.updateLock.Unlock()

	if err := s.View(cb); err != nil {
		return nil, nil, err
	}
	watch, cancel = s.queue.Watch()
	return watch, cancel, nil
}
