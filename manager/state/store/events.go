package store

import "github.com/meshkit/meshkit/api"

// Event is the type used for events passed over the store's watch queue.
type Event interface {
	isEvent()
}

// EventCreate is published when an object is created.
type EventCreate struct {
	Object api.StoreObject
}

// EventUpdate is published when an object is updated. OldObject is the
// version it replaced.
type EventUpdate struct {
	Object    api.StoreObject
	OldObject api.StoreObject
}

// EventDelete is published when an object is deleted.
type EventDelete struct {
	Object api.StoreObject
}

// EventCommit delineates a transaction boundary.
type EventCommit struct {
	Version api.Version
}

func (EventCreate) isEvent() {}
func (EventUpdate) isEvent() {}
func (EventDelete) isEvent() {}
func (EventCommit) isEvent() {}
