package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"docmodel/internal/service"
)

func (s *Server) registerDatabaseTools() {
	s.mcp.AddTool(mcp.NewTool("list_db_connections",
		mcp.WithDescription("List all saved database connections (sources and destinations of model jobs)"),
	), s.handleListDBConnections)

	s.mcp.AddTool(mcp.NewTool("create_db_connection",
		mcp.WithDescription("Save a database connection. The password is kept in the secret store."),
		mcp.WithString("name", mcp.Description("Connection name"), mcp.Required()),
		mcp.WithString("driver", mcp.Description("postgres, mysql, sqlite or mongodb"), mcp.Required()),
		mcp.WithString("host", mcp.Description("Hostname, MongoDB URI, or SQLite file path"), mcp.Required()),
		mcp.WithNumber("port", mcp.Description("Port (default for the driver when omitted)")),
		mcp.WithString("database", mcp.Description("Database name")),
		mcp.WithString("username", mcp.Description("User name")),
		mcp.WithString("password", mcp.Description("Password")),
		mcp.WithString("sslMode", mcp.Description("SSL mode (postgres: disable|require|verify-full; mysql: require)")),
	), s.handleCreateDBConnection)

	s.mcp.AddTool(mcp.NewTool("introspect_database",
		mcp.WithDescription("Get schema information (tables and columns) of a database connection"),
		mcp.WithString("connectionId", mcp.Description("Database connection ID"), mcp.Required()),
	), s.handleIntrospectDatabase)

	s.mcp.AddTool(mcp.NewTool("execute_query",
		mcp.WithDescription("Run a query against a database connection, e.g. to inspect produced tables. 🛑 Write queries (UPDATE/DELETE/DROP/INSERT) require user approval."),
		mcp.WithString("connectionId", mcp.Description("Database connection ID"), mcp.Required()),
		mcp.WithString("query", mcp.Description("SQL query, or a JSON query for MongoDB"), mcp.Required()),
		mcp.WithNumber("fetchSize", mcp.Description("Number of rows to fetch (default 100)")),
	), s.handleExecuteQuery)
}

func (s *Server) handleListDBConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conns, err := s.connections.ListConnections()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return jsonResult(conns)
}

func (s *Server) handleCreateDBConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	in := service.CreateConnectionInput{Port: int(getFloat(args, "port", 0))}
	in.Name, _ = args["name"].(string)
	in.Driver, _ = args["driver"].(string)
	in.Host, _ = args["host"].(string)
	in.Database, _ = args["database"].(string)
	in.Username, _ = args["username"].(string)
	in.Password, _ = args["password"].(string)
	in.SSLMode, _ = args["sslMode"].(string)

	conn, err := s.connections.CreateConnection(in)
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	return jsonResult(conn)
}

func (s *Server) handleIntrospectDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	connID := req.GetString("connectionId", "")
	if connID == "" {
		return nil, fmt.Errorf("connectionId is required")
	}
	schema, err := s.connections.Introspect(ctx, connID)
	if err != nil {
		return nil, fmt.Errorf("introspect: %w", err)
	}
	return jsonResult(schema)
}

func (s *Server) handleExecuteQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	connID, _ := args["connectionId"].(string)
	query, _ := args["query"].(string)
	fetchSize := int(getFloat(args, "fetchSize", 100))

	if connID == "" || query == "" {
		return nil, fmt.Errorf("connectionId and query are required")
	}

	if isWriteQuery(query) {
		approved, err := s.approval.Request(ctx, "execute_query",
			fmt.Sprintf("Execute write query: %s", truncate(query, 100)))
		if err != nil || !approved {
			return textResult("Write query rejected by user"), nil
		}
	}

	result, err := s.connections.ExecuteQuery(ctx, connID, query, fetchSize)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return jsonResult(result)
}

func isWriteQuery(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range []string{"UPDATE", "DELETE", "DROP", "INSERT", "ALTER", "TRUNCATE", "CREATE"} {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	// MongoDB write operations
	for _, op := range []string{`"INSERTONE"`, `"UPDATEMANY"`, `"DELETEMANY"`} {
		if strings.Contains(q, op) {
			return true
		}
	}
	return false
}
