package store

import (
	memdb "github.com/hashicorp/go-memdb"
	"github.com/meshkit/meshkit/api"
)

const tableCertificate = api.KindCertificate

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: tableCertificate,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: idIndex(),
				indexNetwork: {
					Name:         indexNetwork,
					AllowMissing: true,
					Indexer: stringIndexer(func(obj interface{}) string {
						return obj.(*api.Certificate).NetworkID
					}),
				},
				indexNodeID: {
					Name:         indexNodeID,
					AllowMissing: true,
					Indexer: stringIndexer(func(obj interface{}) string {
						return obj.(*api.Certificate).NodeID
					}),
				},
			},
		},
		Save: func(tx ReadTx, snapshot *Snapshot) error {
			var err error
			snapshot.Certificates, err = FindCertificates(tx, All)
			return err
		},
		Restore: func(snapshot *Snapshot) []api.StoreObject {
			objs := make([]api.StoreObject, 0, len(snapshot.Certificates))
			for _, c := range snapshot.Certificates {
				objs = append(objs, c)
			}
			return objs
		},
	})
}

// CreateCertificate adds a new certificate to the store.
// Returns ErrExist if the ID is already taken.
func CreateCertificate(tx Tx, c *api.Certificate) error {
	return tx.create(tableCertificate, c)
}

// UpdateCertificate updates an existing certificate in the store.
// Returns ErrNotExist if the certificate doesn't exist.
func UpdateCertificate(tx Tx, c *api.Certificate) error {
	return tx.update(tableCertificate, c)
}

// DeleteCertificate removes a certificate from the store.
// Returns ErrNotExist if the certificate doesn't exist.
func DeleteCertificate(tx Tx, id string) error {
	return tx.delete(tableCertificate, id)
}

// GetCertificate looks up a certificate by ID.
// Returns nil if the certificate doesn't exist.
func GetCertificate(tx ReadTx, id string) *api.Certificate {
	c := tx.get(tableCertificate, id)
	if c == nil {
		return nil
	}
	return c.(*api.Certificate)
}

// FindCertificates selects a set of certificates and returns them.
func FindCertificates(tx ReadTx, by By) ([]*api.Certificate, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byAll, byNetwork, byNode:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	certList := []*api.Certificate{}
	appendResult := func(o api.StoreObject) {
		certList = append(certList, o.(*api.Certificate))
	}

	err := tx.find(tableCertificate, by, checkType, appendResult)
	return certList, err
}
