package store

import (
	memdb "github.com/hashicorp/go-memdb"
	"github.com/meshkit/meshkit/api"
)

const tableAllocation = api.KindAllocation

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: tableAllocation,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: idIndex(),
				indexNetwork: {
					Name:         indexNetwork,
					AllowMissing: true,
					Indexer: stringIndexer(func(obj interface{}) string {
						return obj.(*api.Allocation).NetworkID
					}),
				},
				indexNodeID: {
					Name:         indexNodeID,
					AllowMissing: true,
					Indexer: stringIndexer(func(obj interface{}) string {
						return obj.(*api.Allocation).NodeID
					}),
				},
			},
		},
		Save: func(tx ReadTx, snapshot *Snapshot) error {
			var err error
			snapshot.Allocations, err = FindAllocations(tx, All)
			return err
		},
		Restore: func(snapshot *Snapshot) []api.StoreObject {
			objs := make([]api.StoreObject, 0, len(snapshot.Allocations))
			for _, a := range snapshot.Allocations {
				objs = append(objs, a)
			}
			return objs
		},
	})
}

// CreateAllocation records that an address is held. The allocation ID is
// derived from the network and the address, so a second allocation of the
// same address fails with ErrExist.
func CreateAllocation(tx Tx, a *api.Allocation) error {
	return tx.create(tableAllocation, a)
}

// DeleteAllocation removes an allocation from the store.
// Returns ErrNotExist if the allocation doesn't exist.
func DeleteAllocation(tx Tx, id string) error {
	return tx.delete(tableAllocation, id)
}

// GetAllocation looks up an allocation by ID.
// Returns nil if the allocation doesn't exist.
func GetAllocation(tx ReadTx, id string) *api.Allocation {
	a := tx.get(tableAllocation, id)
	if a == nil {
		return nil
	}
	return a.(*api.Allocation)
}

// FindAllocations selects a set of allocations and returns them.
func FindAllocations(tx ReadTx, by By) ([]*api.Allocation, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byAll, byNetwork, byNode:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	allocList := []*api.Allocation{}
	appendResult := func(o api.StoreObject) {
		allocList = append(allocList, o.(*api.Allocation))
	}

	err := tx.find(tableAllocation, by, checkType, appendResult)
	return allocList, err
}
