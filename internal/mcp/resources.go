package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	jobsURI         = "docmodel://jobs"
	jobTablesPrefix = "docmodel://jobs/"
	jobTablesSuffix = "/tables"
)

func (s *Server) registerResources() {
	// ── docmodel://jobs ────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		jobsURI,
		"Model Jobs",
		mcp.WithMIMEType("application/json"),
	), s.handleJobsResource)

	// ── docmodel://jobs/{jobId}/tables ─────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			jobTablesPrefix+"{jobId}"+jobTablesSuffix,
			"Tables Produced by a Model Job",
		),
		s.handleJobTablesResource,
	)
}

type jobSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SourceType string `json:"sourceType"`
	Trigger    string `json:"trigger"`
	LastStatus string `json:"lastStatus"`
}

func (s *Server) handleJobsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jobs, err := s.models.ListJobs()
	if err != nil {
		return nil, err
	}
	summaries := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		summaries = append(summaries, jobSummary{
			ID:         j.ID,
			Name:       j.Name,
			SourceType: j.SourceType,
			Trigger:    j.TriggerType,
			LastStatus: j.LastStatus,
		})
	}
	return jsonResource(jobsURI, summaries)
}

func (s *Server) handleJobTablesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	jobID := jobIDFromURI(uri)
	if jobID == "" {
		return nil, fmt.Errorf("could not extract jobId from URI: %s", uri)
	}
	tables, err := s.models.ListTables(jobID)
	if err != nil {
		return nil, err
	}
	return jsonResource(uri, tables)
}

// jobIDFromURI extracts the job ID from "docmodel://jobs/{id}/tables".
func jobIDFromURI(uri string) string {
	if !strings.HasPrefix(uri, jobTablesPrefix) || !strings.HasSuffix(uri, jobTablesSuffix) {
		return ""
	}
	id := strings.TrimSuffix(strings.TrimPrefix(uri, jobTablesPrefix), jobTablesSuffix)
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
