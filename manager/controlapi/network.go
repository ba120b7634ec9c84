package controlapi

import (
	"context"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/identity"
	"github.com/meshkit/meshkit/log"
	"github.com/meshkit/meshkit/manager/allocator/ipam"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/sirupsen/logrus"
)

// CreateNetwork creates and returns a network together with its certificate
// authority.
// - Returns `InvalidArgument` if the name or CIDR is malformed.
// - Returns `AlreadyExists` if the name is taken.
func (s *Server) CreateNetwork(ctx context.Context, request *api.CreateNetworkRequest) (*api.Network, error) {
	if err := validateNetworkName(request.Name); err != nil {
		return nil, err
	}
	prefix, err := ipam.ParseCIDR(request.CIDR)
	if err != nil {
		return nil, api.Errorf(api.CodeInvalidArgument, "%v", err)
	}

	// key generation happens outside the store lock
	caCert, caKey, err := s.authority.NewNetworkCA(request.Name)
	if err != nil {
		return nil, err
	}

	network := &api.Network{
		ID:     identity.NewID(),
		Name:   request.Name,
		CIDR:   prefix.String(),
		CACert: caCert,
		CAKey:  caKey,
	}
	err = s.store.Update(func(tx store.Tx) error {
		return store.CreateNetwork(tx, network)
	})
	if err != nil {
		return nil, storeError(err, "network %s already exists", request.Name)
	}

	log.G(ctx).WithFields(logrus.Fields{
		"network.id": network.ID,
		"cidr":       network.CIDR,
	}).Info("network created")
	return network.Public(), nil
}

// GetNetwork returns a network without its CA key.
// - Returns `NotFound` if the network is not found.
func (s *Server) GetNetwork(ctx context.Context, networkID string) (*api.Network, error) {
	if networkID == "" {
		return nil, api.Errorf(api.CodeInvalidArgument, "network ID must be provided")
	}
	var network *api.Network
	s.store.View(func(tx store.ReadTx) error {
		network = store.GetNetwork(tx, networkID)
		return nil
	})
	if network == nil {
		return nil, api.Errorf(api.CodeNotFound, "network %s not found", networkID)
	}
	return network.Public(), nil
}

// ListNetworks returns every network, without CA keys.
func (s *Server) ListNetworks(ctx context.Context) ([]*api.Network, error) {
	var networks []*api.Network
	err := s.store.View(func(tx store.ReadTx) error {
		var err error
		networks, err = store.FindNetworks(tx, store.All)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i, n := range networks {
		networks[i] = n.Public()
	}
	return networks, nil
}

// RemoveNetwork removes a network. The certificate history, enrollment codes
// and address allocations left behind by removed nodes go with it.
// - Returns `NotFound` if the network is not found.
// - Returns `FailedPrecondition` if the network still has nodes.
func (s *Server) RemoveNetwork(ctx context.Context, networkID string) error {
	if networkID == "" {
		return api.Errorf(api.CodeInvalidArgument, "network ID must be provided")
	}

	err := s.store.Update(func(tx store.Tx) error {
		network := store.GetNetwork(tx, networkID)
		if network == nil {
			return api.Errorf(api.CodeNotFound, "network %s not found", networkID)
		}
		nodes, err := store.FindNodes(tx, store.ByNetworkID(networkID))
		if err != nil {
			return err
		}
		if len(nodes) > 0 {
			return api.Errorf(api.CodeFailedPrecondition,
				"network %s still has %d nodes; remove them first", network.Name, len(nodes))
		}

		certs, err := store.FindCertificates(tx, store.ByNetworkID(networkID))
		if err != nil {
			return err
		}
		for _, c := range certs {
			if err := store.DeleteCertificate(tx, c.ID); err != nil {
				return err
			}
		}
		codes, err := store.FindEnrollmentCodes(tx, store.ByNetworkID(networkID))
		if err != nil {
			return err
		}
		for _, c := range codes {
			if err := store.DeleteEnrollmentCode(tx, c.ID); err != nil {
				return err
			}
		}
		tokens, err := store.FindDeviceTokens(tx, store.ByNetworkID(networkID))
		if err != nil {
			return err
		}
		for _, t := range tokens {
			if err := store.DeleteDeviceToken(tx, t.ID); err != nil {
				return err
			}
		}
		allocs, err := store.FindAllocations(tx, store.ByNetworkID(networkID))
		if err != nil {
			return err
		}
		for _, a := range allocs {
			if err := store.DeleteAllocation(tx, a.ID); err != nil {
				return err
			}
		}
		return store.DeleteNetwork(tx, networkID)
	})
	if err != nil {
		return storeError(err, "network %s not found", networkID)
	}
	log.G(ctx).WithField("network.id", networkID).Info("network removed")
	return nil
}
