package httpapi

import (
	"net/http"

	"github.com/meshkit/meshkit/api"
)

// DeviceHandler serves the device API. The whole surface shares one
// budget; on top of it enrollment is limited per client address and the
// authenticated routes per node.
func (s *Server) DeviceHandler() http.Handler {
	mux := http.NewServeMux()

	handle(mux, "POST /v1/device/enroll", "device_enroll", s.limitDevice("device_enroll", s.enroll))
	handle(mux, "GET /v1/device/config", "device_config", s.limitDevice("device_config", s.deviceConfig))
	handle(mux, "GET /v1/device/bundle", "device_bundle", s.limitDevice("device_bundle", s.deviceBundle))

	return mux
}

func (s *Server) limitDevice(route string, h handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		if !s.deviceLimiter.Allow() {
			return rateLimited(route)
		}
		return h(w, r)
	}
}

// authenticate checks the bearer token, then charges the request to the
// token's node in l. Unknown tokens never reach l.
func (s *Server) authenticate(r *http.Request, l *keyedLimiter, route string) (string, error) {
	token, err := bearerToken(r)
	if err != nil {
		return "", err
	}
	node, err := s.dispatcher.Authenticate(r.Context(), token)
	if err != nil {
		return "", err
	}
	if !l.Allow(node.ID) {
		return "", rateLimited(route)
	}
	return token, nil
}

func (s *Server) enroll(w http.ResponseWriter, r *http.Request) error {
	if !s.enrollLimiter.Allow(remoteHost(r)) {
		return rateLimited("device_enroll")
	}
	var req api.EnrollRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	resp, err := s.dispatcher.Enroll(r.Context(), &req, r.RemoteAddr)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (s *Server) deviceConfig(w http.ResponseWriter, r *http.Request) error {
	token, err := s.authenticate(r, s.configLimiter, "device_config")
	if err != nil {
		return err
	}
	config, err := s.dispatcher.Config(r.Context(), token, r.URL.Query().Get("pki_dir"))
	if err != nil {
		return err
	}
	writeCached(w, r, "application/yaml", config)
	return nil
}

func (s *Server) deviceBundle(w http.ResponseWriter, r *http.Request) error {
	token, err := s.authenticate(r, s.bundleLimiter, "device_bundle")
	if err != nil {
		return err
	}
	bundle, err := s.dispatcher.Bundle(r.Context(), token)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, bundle)
	return nil
}
