package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"docmodel/internal/etl"
	"docmodel/internal/service"
)

const transformsHelp = `Optional JSON array of record transforms applied before decomposition. Each transform has {type, config}. Available types:
- filter: {field, op (eq|neq|gt|lt|contains|exists), value}
- rename: {mapping: {oldName: newName}}
- select: {fields: ["a","b"]}
- drop: {fields: ["a"]}
- limit: {count}
- type_cast: {field, castType (number|string|bool)}
- parse_json: {fields: ["payload"]}
- sort: {field, direction (asc|desc)}
Example: [{"type":"filter","config":{"field":"status","op":"eq","value":"paid"}}]`

// modelOptions are the arguments shared by preview_model and create_model_job.
func modelOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("sourceType", mcp.Description("Source type (use list_sources to see available types)"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
		mcp.WithString("transformsJSON", mcp.Description(transformsHelp)),
		mcp.WithString("dedupeKey", mcp.Description("Drop records repeating this field's value (optional)")),
		mcp.WithString("tablePrefix", mcp.Description("Prefix of every produced table name")),
		mcp.WithString("tableSuffix", mcp.Description("Suffix of every produced table name")),
		mcp.WithNumber("maxDepth", mcp.Description("Recursion cap (default 100)")),
		mcp.WithNumber("sampleSize", mcp.Description("Distinct values sampled per field to classify it (default 50)")),
		mcp.WithString("lineage", mcp.Description("Child table naming: flat (ITEMS) or cumulative (ORDERS__ITEMS)")),
	}
}

func (s *Server) registerModelTools() {
	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List available document source types with their configuration schemas"),
	), s.handleListSources)

	preview := append([]mcp.ToolOption{
		mcp.WithDescription("Decompose documents from a source into relational tables without writing anything. Returns each table's columns, row count and sample rows."),
		mcp.WithNumber("maxRecords", mcp.Description("Read at most this many records (default 100)")),
		mcp.WithNumber("sampleRows", mcp.Description("Sample rows per table (default 5)")),
	}, modelOptions()...)
	s.mcp.AddTool(mcp.NewTool("preview_model", preview...), s.handlePreviewModel)

	create := append([]mcp.ToolOption{
		mcp.WithDescription("Save a model job: source → transforms → decomposition → destination"),
		mcp.WithString("name", mcp.Description("Job name"), mcp.Required()),
		mcp.WithString("destinationJSON", mcp.Description(`Destination as JSON: {"type":"connection","connectionId":"..."}, {"type":"dir","path":"/out"} or {"type":"object_store","bucket":"b","prefix":"p/"}`), mcp.Required()),
		mcp.WithString("writeMode", mcp.Description("overwrite (default) or append")),
		mcp.WithString("triggerType", mcp.Description("manual (default), schedule or file_watch")),
		mcp.WithString("triggerConfig", mcp.Description("Cron expression for schedule, file path for file_watch")),
		mcp.WithBoolean("enabled", mcp.Description("Whether triggers are active (default true)")),
	}, modelOptions()...)
	s.mcp.AddTool(mcp.NewTool("create_model_job", create...), s.handleCreateModelJob)

	s.mcp.AddTool(mcp.NewTool("list_model_jobs",
		mcp.WithDescription("List saved model jobs with their last status"),
	), s.handleListModelJobs)

	s.mcp.AddTool(mcp.NewTool("run_model_job",
		mcp.WithDescription("🛑 DESTRUCTIVE: Run a model job. Overwrites destination tables of the same name. Requires user approval."),
		mcp.WithString("jobId", mcp.Description("Model job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunModelJob)

	s.mcp.AddTool(mcp.NewTool("delete_model_job",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a model job and its run history. Requires user approval."),
		mcp.WithString("jobId", mcp.Description("Model job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteModelJob)

	s.mcp.AddTool(mcp.NewTool("list_model_runs",
		mcp.WithDescription("List the most recent runs of a model job with the tables each run produced"),
		mcp.WithString("jobId", mcp.Description("Model job ID"), mcp.Required()),
	), s.handleListModelRuns)

	s.mcp.AddTool(mcp.NewTool("list_model_tables",
		mcp.WithDescription("List the catalog of produced tables, latest write per table"),
		mcp.WithString("jobId", mcp.Description("Restrict to one job (optional)")),
	), s.handleListModelTables)
}

// modelInput reads the shared model arguments.
func modelInput(args map[string]any) (service.CreateModelJobInput, error) {
	in := service.CreateModelJobInput{Enabled: true}
	in.Name, _ = args["name"].(string)
	in.SourceType, _ = args["sourceType"].(string)
	in.DedupeKey, _ = args["dedupeKey"].(string)
	in.TablePrefix, _ = args["tablePrefix"].(string)
	in.TableSuffix, _ = args["tableSuffix"].(string)
	in.Lineage, _ = args["lineage"].(string)
	in.WriteMode, _ = args["writeMode"].(string)
	in.TriggerType, _ = args["triggerType"].(string)
	in.TriggerConfig, _ = args["triggerConfig"].(string)
	in.MaxDepth = int(getFloat(args, "maxDepth", 0))
	in.SampleSize = int(getFloat(args, "sampleSize", 0))
	if enabled, ok := args["enabled"].(bool); ok {
		in.Enabled = enabled
	}

	if err := jsonArg(args, "sourceConfigJSON", &in.SourceConfig); err != nil {
		return in, err
	}
	if err := jsonArg(args, "transformsJSON", &in.Transforms); err != nil {
		return in, err
	}
	if err := jsonArg(args, "destinationJSON", &in.Destination); err != nil {
		return in, err
	}
	return in, nil
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.models.ListSources())
}

func (s *Server) handlePreviewModel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	in, err := modelInput(args)
	if err != nil {
		return nil, err
	}
	maxRecords := int(getFloat(args, "maxRecords", 100))
	sampleRows := int(getFloat(args, "sampleRows", etl.DefaultPreviewRows))

	preview, err := s.models.Preview(ctx, in, maxRecords, sampleRows)
	if err != nil {
		return nil, fmt.Errorf("preview model: %w", err)
	}
	return jsonResult(preview)
}

func (s *Server) handleCreateModelJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := modelInput(req.GetArguments())
	if err != nil {
		return nil, err
	}
	job, err := s.models.CreateJob(in)
	if err != nil {
		return nil, fmt.Errorf("create model job: %w", err)
	}
	return jsonResult(job)
}

func (s *Server) handleListModelJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := s.models.ListJobs()
	if err != nil {
		return nil, fmt.Errorf("list model jobs: %w", err)
	}
	return jsonResult(jobs)
}

func (s *Server) handleRunModelJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	job, err := s.models.GetJob(jobID)
	if err != nil {
		return nil, err
	}

	approved, err := s.approval.Request(ctx, "run_model_job",
		fmt.Sprintf("Run model job %q (%s tables in %s destination)", job.Name, job.WriteMode, job.Destination.Type))
	if err != nil || !approved {
		return textResult("Action rejected by user"), nil
	}

	result, err := s.models.RunJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("run model job: %w", err)
	}
	return jsonResult(result)
}

func (s *Server) handleDeleteModelJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	approved, err := s.approval.Request(ctx, "delete_model_job", fmt.Sprintf("Delete model job %s", jobID))
	if err != nil || !approved {
		return textResult("Action rejected by user"), nil
	}
	if err := s.models.DeleteJob(jobID); err != nil {
		return nil, fmt.Errorf("delete model job: %w", err)
	}
	return textResult("Deleted model job " + jobID), nil
}

func (s *Server) handleListModelRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	runs, err := s.models.ListRuns(jobID)
	if err != nil {
		return nil, fmt.Errorf("list model runs: %w", err)
	}
	return jsonResult(runs)
}

func (s *Server) handleListModelTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tables, err := s.models.ListTables(req.GetString("jobId", ""))
	if err != nil {
		return nil, fmt.Errorf("list model tables: %w", err)
	}
	return jsonResult(tables)
}
