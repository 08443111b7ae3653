package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("model_documents",
		mcp.WithPromptDescription("Guide through turning a document source into relational tables"),
		mcp.WithArgument("sourceType",
			mcp.ArgumentDescription("Source type (json_file, csv_file, http, database)"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("description",
			mcp.ArgumentDescription("What the documents contain"),
			mcp.RequiredArgument(),
		),
	), s.handleModelDocumentsPrompt)
}

func (s *Server) handleModelDocumentsPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sourceType := req.Params.Arguments["sourceType"]
	description := req.Params.Arguments["description"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Model %s documents", sourceType),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Turn these documents into relational tables: %s. Follow these steps:

1. Use list_sources to find the configuration fields of the "%s" source
2. Call preview_model with a small maxRecords to see the tables the documents decompose into
3. If preview fails with an ambiguous type error, add a filter or type_cast transform for that field and preview again
4. Pick a destination (list_db_connections, or a directory) and save the job with create_model_job
5. Run it with run_model_job and check list_model_runs for the produced tables

Nested objects become field__key columns; every array becomes its own table joined on <field>_SHA256.`, description, sourceType),
				},
			},
		},
	}, nil
}
