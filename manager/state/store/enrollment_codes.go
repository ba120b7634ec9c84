package store

import (
	memdb "github.com/hashicorp/go-memdb"
	"github.com/meshkit/meshkit/api"
)

const tableEnrollmentCode = api.KindEnrollmentCode

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: tableEnrollmentCode,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: idIndex(),
				indexNodeID: {
					Name:         indexNodeID,
					AllowMissing: true,
					Indexer: stringIndexer(func(obj interface{}) string {
						return obj.(*api.EnrollmentCode).NodeID
					}),
				},
				indexNetwork: {
					Name:         indexNetwork,
					AllowMissing: true,
					Indexer: stringIndexer(func(obj interface{}) string {
						return obj.(*api.EnrollmentCode).NetworkID
					}),
				},
				indexDigest: {
					Name:         indexDigest,
					AllowMissing: true,
					Unique:       true,
					Indexer: stringIndexer(func(obj interface{}) string {
						return obj.(*api.EnrollmentCode).CodeDigest.String()
					}),
				},
			},
		},
		Save: func(tx ReadTx, snapshot *Snapshot) error {
			var err error
			snapshot.EnrollmentCodes, err = FindEnrollmentCodes(tx, All)
			return err
		},
		Restore: func(snapshot *Snapshot) []api.StoreObject {
			objs := make([]api.StoreObject, 0, len(snapshot.EnrollmentCodes))
			for _, c := range snapshot.EnrollmentCodes {
				objs = append(objs, c)
			}
			return objs
		},
		CheckConflict: func(tx ReadTx, o api.StoreObject) error {
			return conflictOn(tx, tableEnrollmentCode, indexDigest, o, o.(*api.EnrollmentCode).CodeDigest.String())
		},
	})
}

// CreateEnrollmentCode adds a new enrollment code to the store.
// Returns ErrExist if the ID is already taken.
func CreateEnrollmentCode(tx Tx, c *api.EnrollmentCode) error {
	return tx.create(tableEnrollmentCode, c)
}

// UpdateEnrollmentCode updates an existing enrollment code in the store.
// Returns ErrNotExist if the code doesn't exist.
func UpdateEnrollmentCode(tx Tx, c *api.EnrollmentCode) error {
	return tx.update(tableEnrollmentCode, c)
}

// DeleteEnrollmentCode removes an enrollment code from the store.
// Returns ErrNotExist if the code doesn't exist.
func DeleteEnrollmentCode(tx Tx, id string) error {
	return tx.delete(tableEnrollmentCode, id)
}

// GetEnrollmentCode looks up an enrollment code by ID.
// Returns nil if the code doesn't exist.
func GetEnrollmentCode(tx ReadTx, id string) *api.EnrollmentCode {
	c := tx.get(tableEnrollmentCode, id)
	if c == nil {
		return nil
	}
	return c.(*api.EnrollmentCode)
}

// FindEnrollmentCodes selects a set of enrollment codes and returns them.
func FindEnrollmentCodes(tx ReadTx, by By) ([]*api.EnrollmentCode, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byAll, byNode, byNetwork, byDigest:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	codeList := []*api.EnrollmentCode{}
	appendResult := func(o api.StoreObject) {
		codeList = append(codeList, o.(*api.EnrollmentCode))
	}

	err := tx.find(tableEnrollmentCode, by, checkType, appendResult)
	return codeList, err
}
