package store

import (
	"fmt"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/meshkit/meshkit/api"
)

// ObjectStoreConfig provides the necessary methods to store a particular object
// type inside MemoryStore.
type ObjectStoreConfig struct {
	Table   *memdb.TableSchema
	Save    func(ReadTx, *Snapshot) error
	Restore func(*Snapshot) []api.StoreObject
	// CheckConflict rejects an object that collides with another object on
	// a unique secondary index. memdb itself does not enforce uniqueness
	// beyond the id index.
	CheckConflict func(ReadTx, api.StoreObject) error
}

// stringIndexer indexes objects by a single string value. The zero value of
// the string means the object is not indexed.
type stringIndexer func(obj interface{}) string

func (si stringIndexer) FromArgs(args ...interface{}) ([]byte, error) {
	return fromArgs(args...)
}

func (si stringIndexer) FromObject(obj interface{}) (bool, []byte, error) {
	val := si(obj)
	if val == "" {
		return false, nil, nil
	}
	// Add the null character as a terminator
	return true, []byte(val + "\x00"), nil
}

// pairIndexer indexes objects by two strings, such as network ID and
// hostname.
type pairIndexer func(obj interface{}) (string, string)

func (pi pairIndexer) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("must provide exactly two arguments")
	}
	a, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("argument must be a string: %#v", args[0])
	}
	b, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("argument must be a string: %#v", args[1])
	}
	return []byte(a + "\x00" + b + "\x00"), nil
}

func (pi pairIndexer) FromObject(obj interface{}) (bool, []byte, error) {
	a, b := pi(obj)
	if a == "" || b == "" {
		return false, nil, nil
	}
	return true, []byte(a + "\x00" + b + "\x00"), nil
}

func idIndex() *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:   indexID,
		Unique: true,
		Indexer: stringIndexer(func(obj interface{}) string {
			return obj.(api.StoreObject).GetID()
		}),
	}
}

// conflictOn returns an ErrNameConflict if an object other than o is found
// on index.
func conflictOn(tx ReadTx, table, index string, o api.StoreObject, args ...interface{}) error {
	existing := tx.lookup(table, index, args...)
	if existing != nil && existing.GetID() != o.GetID() {
		return ErrNameConflict
	}
	return nil
}
