package store

import (
	memdb "github.com/hashicorp/go-memdb"
	"github.com/meshkit/meshkit/api"
)

const tableNetwork = api.KindNetwork

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: tableNetwork,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: idIndex(),
				indexName: {
					Name:         indexName,
					AllowMissing: true,
					Unique:       true,
					Indexer: stringIndexer(func(obj interface{}) string {
						return obj.(*api.Network).Name
					}),
				},
			},
		},
		Save: func(tx ReadTx, snapshot *Snapshot) error {
			var err error
			snapshot.Networks, err = FindNetworks(tx, All)
			return err
		},
		Restore: func(snapshot *Snapshot) []api.StoreObject {
			objs := make([]api.StoreObject, 0, len(snapshot.Networks))
			for _, n := range snapshot.Networks {
				objs = append(objs, n)
			}
			return objs
		},
		CheckConflict: func(tx ReadTx, o api.StoreObject) error {
			return conflictOn(tx, tableNetwork, indexName, o, o.(*api.Network).Name)
		},
	})
}

// CreateNetwork adds a new network to the store.
// Returns ErrExist if the ID is already taken, ErrNameConflict if the name is.
func CreateNetwork(tx Tx, n *api.Network) error {
	return tx.create(tableNetwork, n)
}

// UpdateNetwork updates an existing network in the store.
// Returns ErrNotExist if the network doesn't exist.
func UpdateNetwork(tx Tx, n *api.Network) error {
	return tx.update(tableNetwork, n)
}

// DeleteNetwork removes a network from the store.
// Returns ErrNotExist if the network doesn't exist.
func DeleteNetwork(tx Tx, id string) error {
	return tx.delete(tableNetwork, id)
}

// GetNetwork looks up a network by ID.
// Returns nil if the network doesn't exist.
func GetNetwork(tx ReadTx, id string) *api.Network {
	n := tx.get(tableNetwork, id)
	if n == nil {
		return nil
	}
	return n.(*api.Network)
}

// FindNetworks selects a set of networks and returns them.
func FindNetworks(tx ReadTx, by By) ([]*api.Network, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byAll, byName:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	networkList := []*api.Network{}
	appendResult := func(o api.StoreObject) {
		networkList = append(networkList, o.(*api.Network))
	}

	err := tx.find(tableNetwork, by, checkType, appendResult)
	return networkList, err
}
