package httpapi

import (
	"net/http"

	metrics "github.com/docker/go-metrics"
	"github.com/meshkit/meshkit/api"
)

// ControlHandler serves the operator API. It has no authentication of its
// own and must only be exposed on the local control socket.
func (s *Server) ControlHandler() http.Handler {
	mux := http.NewServeMux()

	handle(mux, "POST /v1/networks", "create_network", s.createNetwork)
	handle(mux, "GET /v1/networks", "list_networks", s.listNetworks)
	handle(mux, "GET /v1/networks/{id}", "get_network", s.getNetwork)
	handle(mux, "DELETE /v1/networks/{id}", "remove_network", s.removeNetwork)
	handle(mux, "POST /v1/networks/{id}/nodes", "create_node", s.createNode)
	handle(mux, "GET /v1/networks/{id}/nodes", "list_nodes", s.listNodes)
	handle(mux, "GET /v1/nodes/{id}", "get_node", s.getNode)
	handle(mux, "PATCH /v1/nodes/{id}", "update_node", s.updateNode)
	handle(mux, "DELETE /v1/nodes/{id}", "remove_node", s.removeNode)
	handle(mux, "POST /v1/nodes/{id}/enrollment-codes", "create_enrollment_code", s.createEnrollmentCode)
	handle(mux, "POST /v1/nodes/{id}/certificates", "issue_certificate", s.issueCertificate)
	handle(mux, "POST /v1/nodes/{id}/revoke", "revoke_certificate", s.revokeCertificate)
	handle(mux, "POST /v1/nodes/{id}/reenroll", "reenroll", s.reEnroll)
	handle(mux, "GET /v1/certificates", "list_certificates", s.listCertificates)
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

func (s *Server) createNetwork(w http.ResponseWriter, r *http.Request) error {
	var req api.CreateNetworkRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	network, err := s.control.CreateNetwork(r.Context(), &req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, network)
	return nil
}

func (s *Server) listNetworks(w http.ResponseWriter, r *http.Request) error {
	networks, err := s.control.ListNetworks(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, networks)
	return nil
}

func (s *Server) getNetwork(w http.ResponseWriter, r *http.Request) error {
	network, err := s.control.GetNetwork(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, network)
	return nil
}

func (s *Server) removeNetwork(w http.ResponseWriter, r *http.Request) error {
	if err := s.control.RemoveNetwork(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) createNode(w http.ResponseWriter, r *http.Request) error {
	var req api.CreateNodeRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	req.NetworkID = r.PathValue("id")
	resp, err := s.control.CreateNode(r.Context(), &req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, resp)
	return nil
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) error {
	nodes, err := s.control.ListNodes(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nodes)
	return nil
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) error {
	node, err := s.control.GetNode(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, node)
	return nil
}

func (s *Server) updateNode(w http.ResponseWriter, r *http.Request) error {
	var req api.UpdateNodeRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	req.NodeID = r.PathValue("id")
	node, err := s.control.UpdateNode(r.Context(), &req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, node)
	return nil
}

func (s *Server) removeNode(w http.ResponseWriter, r *http.Request) error {
	if err := s.control.RemoveNode(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) createEnrollmentCode(w http.ResponseWriter, r *http.Request) error {
	var req api.CreateEnrollmentCodeRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	req.NodeID = r.PathValue("id")
	resp, err := s.control.CreateEnrollmentCode(r.Context(), &req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, resp)
	return nil
}

func (s *Server) issueCertificate(w http.ResponseWriter, r *http.Request) error {
	var req api.IssueCertificateRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	req.NodeID = r.PathValue("id")
	resp, err := s.control.IssueCertificate(r.Context(), &req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, resp)
	return nil
}

func (s *Server) revokeCertificate(w http.ResponseWriter, r *http.Request) error {
	if err := s.control.RevokeCertificate(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) reEnroll(w http.ResponseWriter, r *http.Request) error {
	var req api.ReEnrollRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	req.NodeID = r.PathValue("id")
	resp, err := s.control.ReEnroll(r.Context(), &req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (s *Server) listCertificates(w http.ResponseWriter, r *http.Request) error {
	req := api.ListCertificatesRequest{
		NetworkID: r.URL.Query().Get("network"),
		NodeID:    r.URL.Query().Get("node"),
	}
	certs, err := s.control.ListCertificates(r.Context(), &req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, certs)
	return nil
}
