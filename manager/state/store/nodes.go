package store

import (
	memdb "github.com/hashicorp/go-memdb"
	"github.com/meshkit/meshkit/api"
)

const tableNode = api.KindNode

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: tableNode,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: idIndex(),
				indexNetwork: {
					Name:         indexNetwork,
					AllowMissing: true,
					Indexer: stringIndexer(func(obj interface{}) string {
						return obj.(*api.Node).NetworkID
					}),
				},
				indexHostname: {
					Name:         indexHostname,
					AllowMissing: true,
					Unique:       true,
					Indexer: pairIndexer(func(obj interface{}) (string, string) {
						n := obj.(*api.Node)
						return n.NetworkID, n.Spec.Hostname
					}),
				},
			},
		},
		Save: func(tx ReadTx, snapshot *Snapshot) error {
			var err error
			snapshot.Nodes, err = FindNodes(tx, All)
			return err
		},
		Restore: func(snapshot *Snapshot) []api.StoreObject {
			objs := make([]api.StoreObject, 0, len(snapshot.Nodes))
			for _, n := range snapshot.Nodes {
				objs = append(objs, n)
			}
			return objs
		},
		CheckConflict: func(tx ReadTx, o api.StoreObject) error {
			n := o.(*api.Node)
			return conflictOn(tx, tableNode, indexHostname, o, n.NetworkID, n.Spec.Hostname)
		},
	})
}

// CreateNode adds a new node to the store.
// Returns ErrExist if the ID is already taken, ErrNameConflict if the
// hostname is already used in the same network.
func CreateNode(tx Tx, n *api.Node) error {
	return tx.create(tableNode, n)
}

// UpdateNode updates an existing node in the store.
// Returns ErrNotExist if the node doesn't exist.
func UpdateNode(tx Tx, n *api.Node) error {
	return tx.update(tableNode, n)
}

// DeleteNode removes a node from the store.
// Returns ErrNotExist if the node doesn't exist.
func DeleteNode(tx Tx, id string) error {
	return tx.delete(tableNode, id)
}

// GetNode looks up a node by ID.
// Returns nil if the node doesn't exist.
func GetNode(tx ReadTx, id string) *api.Node {
	n := tx.get(tableNode, id)
	if n == nil {
		return nil
	}
	return n.(*api.Node)
}

// FindNodes selects a set of nodes and returns them.
func FindNodes(tx ReadTx, by By) ([]*api.Node, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byAll, byNetwork, byHostname:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	nodeList := []*api.Node{}
	appendResult := func(o api.StoreObject) {
		nodeList = append(nodeList, o.(*api.Node))
	}

	err := tx.find(tableNode, by, checkType, appendResult)
	return nodeList, err
}
