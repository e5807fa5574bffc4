package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	endpoints := []endpointInfo{
		{"/api/v1/processes", []string{"GET"}, "List available processes"},
		{"/api/v1/processes/{id}", []string{"GET"}, "Process description with inputs and outputs"},
		{"/api/v1/processes/{id}/execution", []string{"POST"}, "Execute a process. Send 'Prefer: respond-async' to run in the background"},
		{"/api/v1/jobs", []string{"GET"}, "List jobs. Filters: state, process, limit, offset"},
		{"/api/v1/jobs/{id}", []string{"GET", "DELETE"}, "Job status; DELETE dismisses a running job or removes a finished one"},
		{"/api/v1/jobs/{id}/results", []string{"GET"}, "Output links of a successful job"},
		{"/api/v1/jobs/{id}/logs", []string{"GET"}, "Container stdout/stderr and exit code"},
		{"/api/v1/health", []string{"GET"}, "Server health and version"},
	}
	if s.metrics != nil {
		endpoints = append(endpoints, endpointInfo{"/metrics", []string{"GET"}, "Prometheus metrics"})
	}
	if s.downloadDir != "" {
		endpoints = append(endpoints, endpointInfo{"/download/*", []string{"GET"}, "Job output files"})
	}
	respondOK(w, reqID, discoveryResponse{
		Name:        "aquaproc API",
		Version:     "v1",
		Description: "Containerized R geoprocessing for the AquaINFRA Elbe use case",
		Endpoints:   endpoints,
	})
}
