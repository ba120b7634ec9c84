package api

import "time"

// Object kinds, also used as store table and bucket names.
const (
	KindNetwork        = "network"
	KindNode           = "node"
	KindCertificate    = "certificate"
	KindEnrollmentCode = "enrollment_code"
	KindDeviceToken    = "device_token"
	KindAllocation     = "allocation"
)

// StoreObject is an object that can be kept in the store.
type StoreObject interface {
	GetID() string
	GetMeta() Meta
	SetMeta(Meta)
	Kind() string
	CopyStoreObject() StoreObject
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// Copy returns a deep copy of the network.
func (m *Network) Copy() *Network {
	if m == nil {
		return nil
	}
	o := *m
	o.CACert = copyBytes(m.CACert)
	o.CAKey = copyBytes(m.CAKey)
	return &o
}

func (m *Network) GetID() string { return m.ID }
func (m *Network) GetMeta() Meta { return m.Meta }
func (m *Network) SetMeta(meta Meta) { m.Meta = meta }
func (m *Network) Kind() string { return KindNetwork }
func (m *Network) CopyStoreObject() StoreObject { return m.Copy() }

// Copy returns a deep copy of the node spec.
func (m NodeSpec) Copy() NodeSpec {
	m.Groups = copyStrings(m.Groups)
	return m
}

// Copy returns a deep copy of the node.
func (m *Node) Copy() *Node {
	if m == nil {
		return nil
	}
	o := *m
	o.Spec = m.Spec.Copy()
	o.LastSeen = copyTime(m.LastSeen)
	o.FirstPolledAt = copyTime(m.FirstPolledAt)
	return &o
}

func (m *Node) GetID() string { return m.ID }
func (m *Node) GetMeta() Meta { return m.Meta }
func (m *Node) SetMeta(meta Meta) { m.Meta = meta }
func (m *Node) Kind() string { return KindNode }
func (m *Node) CopyStoreObject() StoreObject { return m.Copy() }

// Copy returns a deep copy of the certificate.
func (m *Certificate) Copy() *Certificate {
	if m == nil {
		return nil
	}
	o := *m
	o.Groups = copyStrings(m.Groups)
	o.CertPEM = copyBytes(m.CertPEM)
	o.PrivateKey = copyBytes(m.PrivateKey)
	o.RevokedAt = copyTime(m.RevokedAt)
	return &o
}

func (m *Certificate) GetID() string { return m.ID }
func (m *Certificate) GetMeta() Meta { return m.Meta }
func (m *Certificate) SetMeta(meta Meta) { m.Meta = meta }
func (m *Certificate) Kind() string { return KindCertificate }
func (m *Certificate) CopyStoreObject() StoreObject { return m.Copy() }

// Copy returns a deep copy of the enrollment code.
func (m *EnrollmentCode) Copy() *EnrollmentCode {
	if m == nil {
		return nil
	}
	o := *m
	o.ConsumedAt = copyTime(m.ConsumedAt)
	return &o
}

func (m *EnrollmentCode) GetID() string { return m.ID }
func (m *EnrollmentCode) GetMeta() Meta { return m.Meta }
func (m *EnrollmentCode) SetMeta(meta Meta) { m.Meta = meta }
func (m *EnrollmentCode) Kind() string { return KindEnrollmentCode }
func (m *EnrollmentCode) CopyStoreObject() StoreObject { return m.Copy() }

// Copy returns a copy of the device token.
func (m *DeviceToken) Copy() *DeviceToken {
	if m == nil {
		return nil
	}
	o := *m
	return &o
}

func (m *DeviceToken) GetID() string { return m.ID }
func (m *DeviceToken) GetMeta() Meta { return m.Meta }
func (m *DeviceToken) SetMeta(meta Meta) { m.Meta = meta }
func (m *DeviceToken) Kind() string { return KindDeviceToken }
func (m *DeviceToken) CopyStoreObject() StoreObject { return m.Copy() }

// Copy returns a copy of the allocation.
func (m *Allocation) Copy() *Allocation {
	if m == nil {
		return nil
	}
	o := *m
	return &o
}

func (m *Allocation) GetID() string { return m.ID }
func (m *Allocation) GetMeta() Meta { return m.Meta }
func (m *Allocation) SetMeta(meta Meta) { m.Meta = meta }
func (m *Allocation) Kind() string { return KindAllocation }
func (m *Allocation) CopyStoreObject() StoreObject { return m.Copy() }
