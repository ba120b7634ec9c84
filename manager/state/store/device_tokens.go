package store

import (
	memdb "github.com/hashicorp/go-memdb"
	"github.com/meshkit/meshkit/api"
)

const tableDeviceToken = api.KindDeviceToken

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: tableDeviceToken,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: idIndex(),
				indexNodeID: {
					Name:         indexNodeID,
					AllowMissing: true,
					Indexer: stringIndexer(func(obj interface{}) string {
						return obj.(*api.DeviceToken).NodeID
					}),
				},
				indexNetwork: {
					Name:         indexNetwork,
					AllowMissing: true,
					Indexer: stringIndexer(func(obj interface{}) string {
						return obj.(*api.DeviceToken).NetworkID
					}),
				},
				indexDigest: {
					Name:         indexDigest,
					AllowMissing: true,
					Unique:       true,
					Indexer: stringIndexer(func(obj interface{}) string {
						return obj.(*api.DeviceToken).TokenDigest.String()
					}),
				},
			},
		},
		Save: func(tx ReadTx, snapshot *Snapshot) error {
			var err error
			snapshot.DeviceTokens, err = FindDeviceTokens(tx, All)
			return err
		},
		Restore: func(snapshot *Snapshot) []api.StoreObject {
			objs := make([]api.StoreObject, 0, len(snapshot.DeviceTokens))
			for _, t := range snapshot.DeviceTokens {
				objs = append(objs, t)
			}
			return objs
		},
		CheckConflict: func(tx ReadTx, o api.StoreObject) error {
			return conflictOn(tx, tableDeviceToken, indexDigest, o, o.(*api.DeviceToken).TokenDigest.String())
		},
	})
}

// CreateDeviceToken adds a new device token to the store.
// Returns ErrExist if the ID is already taken.
func CreateDeviceToken(tx Tx, t *api.DeviceToken) error {
	return tx.create(tableDeviceToken, t)
}

// DeleteDeviceToken removes a device token from the store.
// Returns ErrNotExist if the token doesn't exist.
func DeleteDeviceToken(tx Tx, id string) error {
	return tx.delete(tableDeviceToken, id)
}

// GetDeviceToken looks up a device token by ID.
// Returns nil if the token doesn't exist.
func GetDeviceToken(tx ReadTx, id string) *api.DeviceToken {
	t := tx.get(tableDeviceToken, id)
	if t == nil {
		return nil
	}
	return t.(*api.DeviceToken)
}

// FindDeviceTokens selects a set of device tokens and returns them.
func FindDeviceTokens(tx ReadTx, by By) ([]*api.DeviceToken, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byAll, byNode, byNetwork, byDigest:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	tokenList := []*api.DeviceToken{}
	appendResult := func(o api.StoreObject) {
		tokenList = append(tokenList, o.(*api.DeviceToken))
	}

	err := tx.find(tableDeviceToken, by, checkType, appendResult)
	return tokenList, err
}
