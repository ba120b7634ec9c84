package controlapi

import (
	"context"
	"sort"
	"time"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/ca"
	"github.com/meshkit/meshkit/log"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/sirupsen/logrus"
)

// issue picks the create or the sign path depending on whether the caller
// brought a CSR.
func (s *Server) issue(tx store.Tx, node *api.Node, csr, preferred string, duration time.Duration) (*ca.Issued, error) {
	if duration < 0 {
		return nil, api.Errorf(api.CodeInvalidArgument, "certificate duration must not be negative")
	}
	if csr != "" {
		return s.authority.Sign(tx, node, []byte(csr), preferred, duration)
	}
	return s.authority.Create(tx, node, preferred, duration)
}

func issueResponse(issued *ca.Issued) api.IssueCertificateResponse {
	return api.IssueCertificateResponse{
		Address:     issued.Address,
		Certificate: issued.Certificate.Public(),
		PrivateKey:  string(issued.PrivateKey),
		CACert:      string(issued.CACert),
	}
}

// CreateEnrollmentCode issues a new single-use enrollment code for a node.
// Earlier codes stay valid until they expire or are used.
// - Returns `NotFound` if the node is not found.
func (s *Server) CreateEnrollmentCode(ctx context.Context, request *api.CreateEnrollmentCodeRequest) (*api.CreateEnrollmentCodeResponse, error) {
	if request.NodeID == "" {
		return nil, api.Errorf(api.CodeInvalidArgument, "node ID must be provided")
	}
	if request.TTL < 0 {
		return nil, api.Errorf(api.CodeInvalidArgument, "enrollment code TTL must not be negative")
	}
	ttl := time.Duration(request.TTL)
	if ttl == 0 {
		ttl = s.defaultCodeTTL
	}

	var resp *api.CreateEnrollmentCodeResponse
	err := s.store.Update(func(tx store.Tx) error {
		node := store.GetNode(tx, request.NodeID)
		if node == nil {
			return api.Errorf(api.CodeNotFound, "node %s not found", request.NodeID)
		}
		code, ec, err := s.exchange.IssueCode(tx, node, ttl)
		if err != nil {
			return err
		}
		resp = &api.CreateEnrollmentCodeResponse{NodeID: node.ID, Code: code, ExpiresAt: ec.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.G(ctx).WithFields(logrus.Fields{
		"node.id":    request.NodeID,
		"expires_at": resp.ExpiresAt,
	}).Info("enrollment code issued")
	return resp, nil
}

// IssueCertificate issues a new certificate for an existing node, revoking
// its current one. With a CSR only the public key in it is signed.
// - Returns `NotFound` if the node is not found.
// - Returns `InvalidArgument` if the CSR or the preferred address is
//   malformed, or the preferred address differs from the one the node
//   holds.
func (s *Server) IssueCertificate(ctx context.Context, request *api.IssueCertificateRequest) (*api.IssueCertificateResponse, error) {
	if request.NodeID == "" {
		return nil, api.Errorf(api.CodeInvalidArgument, "node ID must be provided")
	}

	var resp api.IssueCertificateResponse
	err := s.store.Update(func(tx store.Tx) error {
		node := store.GetNode(tx, request.NodeID)
		if node == nil {
			return api.Errorf(api.CodeNotFound, "node %s not found", request.NodeID)
		}
		issued, err := s.issue(tx, node, request.CSR, request.PreferredAddress, time.Duration(request.Duration))
		if err != nil {
			return err
		}
		resp = issueResponse(issued)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.G(ctx).WithFields(logrus.Fields{
		"node.id":     request.NodeID,
		"certificate": resp.Certificate.ID,
		"mode":        resp.Certificate.Mode,
	}).Info("certificate issued")
	return &resp, nil
}

// RevokeCertificate revokes the current certificate of a node. The node
// keeps its address.
// - Returns `NotFound` if the node is not found.
// - Returns `FailedPrecondition` if the node has no active certificate.
func (s *Server) RevokeCertificate(ctx context.Context, nodeID string) error {
	if nodeID == "" {
		return api.Errorf(api.CodeInvalidArgument, "node ID must be provided")
	}
	err := s.store.Update(func(tx store.Tx) error {
		node := store.GetNode(tx, nodeID)
		if node == nil {
			return api.Errorf(api.CodeNotFound, "node %s not found", nodeID)
		}
		return s.authority.Revoke(tx, node)
	})
	if err != nil {
		return err
	}
	log.G(ctx).WithField("node.id", nodeID).Info("certificate revoked")
	return nil
}

// ReEnroll replaces the node's certificate with a new server generated one
// and drops its device token, optionally demoting it from lighthouse and
// issuing a fresh enrollment code in the same step.
// - Returns `NotFound` if the node is not found.
// - Returns `FailedPrecondition` if demoting would leave the network without
//   a lighthouse.
func (s *Server) ReEnroll(ctx context.Context, request *api.ReEnrollRequest) (*api.ReEnrollResponse, error) {
	if request.NodeID == "" {
		return nil, api.Errorf(api.CodeInvalidArgument, "node ID must be provided")
	}
	if request.Duration < 0 || request.EnrollmentCodeTTL < 0 {
		return nil, api.Errorf(api.CodeInvalidArgument, "durations must not be negative")
	}

	var resp api.ReEnrollResponse
	err := s.store.Update(func(tx store.Tx) error {
		node := store.GetNode(tx, request.NodeID)
		if node == nil {
			return api.Errorf(api.CodeNotFound, "node %s not found", request.NodeID)
		}
		if request.DemoteLighthouse && node.Spec.IsLighthouse {
			if err := checkLighthouseRemoval(tx, node, false); err != nil {
				return err
			}
			node.Spec.IsLighthouse = false
		}

		issued, err := s.authority.ReEnroll(tx, node, time.Duration(request.Duration))
		if err != nil {
			return err
		}
		resp.IssueCertificateResponse = issueResponse(issued)

		if request.EnrollmentCodeTTL > 0 {
			code, ec, err := s.exchange.IssueCode(tx, node, time.Duration(request.EnrollmentCodeTTL))
			if err != nil {
				return err
			}
			resp.EnrollmentCode = code
			resp.EnrollmentCodeExpiresAt = &ec.ExpiresAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.G(ctx).WithFields(logrus.Fields{
		"node.id":     request.NodeID,
		"certificate": resp.Certificate.ID,
	}).Info("node re-enrolled")
	return &resp, nil
}

// ListCertificates returns certificates, newest first, filtered by node or
// network. Private keys are never included.
func (s *Server) ListCertificates(ctx context.Context, request *api.ListCertificatesRequest) ([]*api.Certificate, error) {
	var by store.By = store.All
	switch {
	case request.NodeID != "":
		by = store.ByNodeID(request.NodeID)
	case request.NetworkID != "":
		by = store.ByNetworkID(request.NetworkID)
	}

	var certs []*api.Certificate
	err := s.store.View(func(tx store.ReadTx) error {
		var err error
		certs, err = store.FindCertificates(tx, by)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]*api.Certificate, 0, len(certs))
	for _, c := range certs {
		if request.NetworkID != "" && c.NetworkID != request.NetworkID {
			continue
		}
		out = append(out, c.Public())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Meta.CreatedAt.After(out[j].Meta.CreatedAt)
	})
	return out, nil
}
