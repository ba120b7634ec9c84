package controlapi

import (
	"context"
	"time"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/identity"
	"github.com/meshkit/meshkit/log"
	"github.com/meshkit/meshkit/manager/allocator/ipam"
	"github.com/meshkit/meshkit/manager/enrollment"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/sirupsen/logrus"
)

// CreateNode registers a node and issues its first certificate in the same
// transaction. The first node of a network always becomes a lighthouse.
// - Returns `InvalidArgument` if the node spec, the CSR or the preferred address
//   is malformed.
// - Returns `NotFound` if the network is not found.
// - Returns `AlreadyExists` if the hostname or the preferred address is
//   taken.
// - Returns `ResourceExhausted` if the network has no free address.
func (s *Server) CreateNode(ctx context.Context, request *api.CreateNodeRequest) (*api.CreateNodeResponse, error) {
	if request.NetworkID == "" {
		return nil, api.Errorf(api.CodeInvalidArgument, "network ID must be provided")
	}
	spec := request.Spec.Copy()
	if err := validateSpec(&spec); err != nil {
		return nil, err
	}

	node := &api.Node{
		ID:        identity.NewID(),
		NetworkID: request.NetworkID,
		Spec:      spec,
	}
	resp := &api.CreateNodeResponse{}
	err := s.store.Update(func(tx store.Tx) error {
		if store.GetNetwork(tx, request.NetworkID) == nil {
			return api.Errorf(api.CodeNotFound, "network %s not found", request.NetworkID)
		}
		existing, err := store.FindNodes(tx, store.ByNetworkID(request.NetworkID))
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			node.Spec.IsLighthouse = true
		}
		if err := store.CreateNode(tx, node); err != nil {
			return storeError(err, "hostname %s is already used in this network", spec.Hostname)
		}

		issued, err := s.issue(tx, node, request.CSR, request.PreferredAddress, time.Duration(request.CertificateDuration))
		if err != nil {
			return err
		}
		resp.Certificate = issued.Certificate.Public()

		if request.EnrollmentCodeTTL > 0 {
			code, ec, err := s.exchange.IssueCode(tx, node, time.Duration(request.EnrollmentCodeTTL))
			if err != nil {
				return err
			}
			resp.EnrollmentCode = code
			resp.EnrollmentCodeExpiresAt = &ec.ExpiresAt
		}
		resp.Node = node
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.G(ctx).WithFields(logrus.Fields{
		"node.id":    node.ID,
		"network.id": node.NetworkID,
		"address":    node.Address,
		"lighthouse": node.Spec.IsLighthouse,
	}).Info("node created")
	return resp, nil
}

// GetNode returns a node with its current status.
// - Returns `NotFound` if the node is not found.
func (s *Server) GetNode(ctx context.Context, nodeID string) (*api.NodeView, error) {
	if nodeID == "" {
		return nil, api.Errorf(api.CodeInvalidArgument, "node ID must be provided")
	}
	var node *api.Node
	s.store.View(func(tx store.ReadTx) error {
		node = store.GetNode(tx, nodeID)
		return nil
	})
	if node == nil {
		return nil, api.Errorf(api.CodeNotFound, "node %s not found", nodeID)
	}
	return &api.NodeView{Node: node, Status: api.DeriveStatus(node, s.clock.Now())}, nil
}

// ListNodes returns the nodes of a network with their status.
// - Returns `NotFound` if the network is not found.
func (s *Server) ListNodes(ctx context.Context, networkID string) ([]*api.NodeView, error) {
	if networkID == "" {
		return nil, api.Errorf(api.CodeInvalidArgument, "network ID must be provided")
	}
	var nodes []*api.Node
	err := s.store.View(func(tx store.ReadTx) error {
		if store.GetNetwork(tx, networkID) == nil {
			return api.Errorf(api.CodeNotFound, "network %s not found", networkID)
		}
		var err error
		nodes, err = store.FindNodes(tx, store.ByNetworkID(networkID))
		return err
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	views := make([]*api.NodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, &api.NodeView{Node: n, Status: api.DeriveStatus(n, now)})
	}
	return views, nil
}

// UpdateNode changes the operator controlled fields of a node. Changes to
// the hostname or groups take effect in the node certificate at the next
// issuance.
// - Returns `NotFound` if the node is not found.
// - Returns `InvalidArgument` if the resulting spec is malformed.
// - Returns `AlreadyExists` if the new hostname is taken.
// - Returns `FailedPrecondition` if the node is the only lighthouse and the
//   request demotes it.
func (s *Server) UpdateNode(ctx context.Context, request *api.UpdateNodeRequest) (*api.NodeView, error) {
	if request.NodeID == "" {
		return nil, api.Errorf(api.CodeInvalidArgument, "node ID must be provided")
	}

	var node *api.Node
	err := s.store.Update(func(tx store.Tx) error {
		node = store.GetNode(tx, request.NodeID)
		if node == nil {
			return api.Errorf(api.CodeNotFound, "node %s not found", request.NodeID)
		}

		if request.IsLighthouse != nil && !*request.IsLighthouse {
			if err := checkLighthouseRemoval(tx, node, false); err != nil {
				return err
			}
		}

		spec := node.Spec.Copy()
		applyUpdate(&spec, request)
		if err := validateSpec(&spec); err != nil {
			return err
		}
		node.Spec = spec
		return storeError(store.UpdateNode(tx, node), "hostname %s is already used in this network", spec.Hostname)
	})
	if err != nil {
		return nil, err
	}

	log.G(ctx).WithField("node.id", node.ID).Info("node updated")
	return &api.NodeView{Node: node, Status: api.DeriveStatus(node, s.clock.Now())}, nil
}

func applyUpdate(spec *api.NodeSpec, request *api.UpdateNodeRequest) {
	if request.Hostname != nil {
		spec.Hostname = *request.Hostname
	}
	if request.IsLighthouse != nil {
		spec.IsLighthouse = *request.IsLighthouse
	}
	if request.IsRelay != nil {
		spec.IsRelay = *request.IsRelay
	}
	if request.PublicEndpoint != nil {
		spec.PublicEndpoint = *request.PublicEndpoint
	}
	if request.Groups != nil {
		spec.Groups = append([]string(nil), (*request.Groups)...)
	}
	if request.Lighthouse != nil {
		spec.Lighthouse = *request.Lighthouse
	}
	if request.Logging != nil {
		spec.Logging = *request.Logging
	}
	if request.Punchy != nil {
		spec.Punchy = *request.Punchy
	}
}

// RemoveNode revokes the node's certificate, releases its address,
// invalidates its enrollment codes and device token and deletes it, all in
// one transaction. Removing the last node of a network is allowed even if
// it is the lighthouse.
// - Returns `NotFound` if the node is not found.
// - Returns `FailedPrecondition` if the node is the only lighthouse of a
//   network that has other nodes.
func (s *Server) RemoveNode(ctx context.Context, nodeID string) error {
	if nodeID == "" {
		return api.Errorf(api.CodeInvalidArgument, "node ID must be provided")
	}

	var node *api.Node
	err := s.store.Update(func(tx store.Tx) error {
		node = store.GetNode(tx, nodeID)
		if node == nil {
			return api.Errorf(api.CodeNotFound, "node %s not found", nodeID)
		}
		if err := checkLighthouseRemoval(tx, node, true); err != nil {
			return err
		}

		if node.CertificateID != "" {
			if err := s.authority.Revoke(tx, node); err != nil {
				return err
			}
		}
		if node.Address != "" {
			if err := ipam.Release(tx, node.NetworkID, node.Address); err != nil {
				return err
			}
		}
		if err := enrollment.InvalidateNode(tx, node.ID); err != nil {
			return err
		}
		return store.DeleteNode(tx, node.ID)
	})
	if err != nil {
		return storeError(err, "node %s not found", nodeID)
	}

	log.G(ctx).WithFields(logrus.Fields{
		"node.id":    node.ID,
		"network.id": node.NetworkID,
		"address":    node.Address,
	}).Info("node removed")
	return nil
}
