package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"tablexport/internal/etl"
	"tablexport/internal/service"
)

func (s *Server) registerSchemaTools() {
	s.mcp.AddTool(mcp.NewTool("list_tables",
		mcp.WithDescription("List the tables visible through a configured connection"),
		mcp.WithString("connection", mcp.Description("Connection name from the config file"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), handler(s.handleListTables))

	s.mcp.AddTool(mcp.NewTool("read_schema",
		mcp.WithDescription("Read the ordered columns and declared types of a table"),
		mcp.WithString("connection", mcp.Description("Connection name"), mcp.Required()),
		mcp.WithString("table", mcp.Description("Table name"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), handler(s.handleReadSchema))

	s.mcp.AddTool(mcp.NewTool("preview_table",
		mcp.WithDescription("Encode the first rows of a table as CSV lines without writing files"),
		mcp.WithString("connection", mcp.Description("Connection name"), mcp.Required()),
		mcp.WithString("table", mcp.Description("Table name"), mcp.Required()),
		mcp.WithNumber("rows", mcp.Description("Number of rows (default 10)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), handler(s.handlePreviewTable))
}

func (s *Server) registerExportTools() {
	s.mcp.AddTool(mcp.NewTool("export_table",
		mcp.WithDescription("Export a table to a schema file plus sharded CSV files under an output prefix. Overwrites existing files."),
		mcp.WithString("connection", mcp.Description("Connection name"), mcp.Required()),
		mcp.WithString("table", mcp.Description("Table name"), mcp.Required()),
		mcp.WithString("outputPrefix", mcp.Description("Path prefix, e.g. /data/users/"), mcp.Required()),
		mcp.WithNumber("workers", mcp.Description("Encoder workers and CSV shards (default 4)")),
		mcp.WithString("onError", mcp.Description("abort (default) or skip records that fail to encode")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), handler(s.handleExportTable))
}

func (s *Server) handleListTables(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	conn, err := requireString(req, "connection")
	if err != nil {
		return nil, err
	}
	return s.exports.ListTables(ctx, conn)
}

func (s *Server) handleReadSchema(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	conn, err := requireString(req, "connection")
	if err != nil {
		return nil, err
	}
	table, err := requireString(req, "table")
	if err != nil {
		return nil, err
	}
	schema, err := s.exports.ReadSchema(ctx, conn, table)
	if err != nil {
		return nil, err
	}
	artifact, err := etl.SchemaArtifact(schema)
	if err != nil {
		return nil, err
	}
	return string(artifact), nil
}

func (s *Server) handlePreviewTable(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	conn, err := requireString(req, "connection")
	if err != nil {
		return nil, err
	}
	table, err := requireString(req, "table")
	if err != nil {
		return nil, err
	}
	return s.exports.Preview(ctx, conn, table, req.GetInt("rows", 10))
}

func (s *Server) handleExportTable(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	in := service.ExportInput{
		Connection:   req.GetString("connection", ""),
		Table:        req.GetString("table", ""),
		OutputPrefix: req.GetString("outputPrefix", ""),
		Workers:      req.GetInt("workers", 0),
		OnError:      etl.ErrorPolicy(req.GetString("onError", "")),
	}
	if in.Connection == "" {
		return nil, errRequired("connection")
	}
	return s.exports.Export(ctx, in)
}
