// Package mcp exposes the retrieval pipeline over the Model Context
// Protocol: a search_notes tool and an index_status diagnostic.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/notescout/notescout/internal/chunkindex"
	"github.com/notescout/notescout/internal/config"
	"github.com/notescout/notescout/internal/search"
)

// Version is stamped at build time.
var Version = "dev"

// Server serves notescout tools over MCP.
type Server struct {
	pipeline *search.Pipeline
	index    *chunkindex.Manager
	config   *config.Config
	vaultDir string
	embedder string
	mcp      *mcp.Server
	logger   *slog.Logger
}

// NewServer wires the pipeline and index manager into an MCP server.
// The index manager may be nil when semantic search is disabled.
func NewServer(pipeline *search.Pipeline, index *chunkindex.Manager, cfg *config.Config, vaultDir, embedderName string) (*Server, error) {
	if pipeline == nil {
		return nil, errors.New("search pipeline is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		pipeline: pipeline,
		index:    index,
		config:   cfg,
		vaultDir: vaultDir,
		embedder: embedderName,
		logger:   slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "notescout",
			Version: Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_notes",
		Description: "Hybrid note retrieval over the vault: lexical, link-graph and semantic signals fused into one ranking. Supports [[Note Title]] references, #tags and date ranges; referenced notes are always included.",
	}, s.searchNotesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report the persistent chunk-embedding index: partition count, record count and size. Use to check whether semantic search has an index to consult.",
	}, s.indexStatusHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 2))
}

func (s *Server) searchNotesHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchNotesInput) (
	*mcp.CallToolResult,
	SearchNotesOutput,
	error,
) {
	rng, err := parseTimeRange(input.StartDate, input.EndDate)
	if err != nil {
		return nil, SearchNotesOutput{}, fmt.Errorf("invalid date bound: %w", err)
	}
	if input.Query == "" && rng == nil {
		return nil, SearchNotesOutput{}, errors.New("query or a date range is required")
	}

	opts := search.Options{
		MaxResults:     s.config.Search.MaxResults,
		EnableSemantic: s.config.Search.EnableSemantic,
		SemanticWeight: s.config.Search.SemanticWeight,
		CandidateLimit: s.config.Search.CandidateLimit,
		GraphHops:      s.config.Search.GraphHops,
		RRFK:           s.config.Search.RRFConstant,
	}
	if input.Limit > 0 {
		opts.MaxResults = input.Limit
	}

	results, err := s.pipeline.Search(ctx, search.Request{
		Query:        input.Query,
		SalientTerms: input.SalientTerms,
		TimeRange:    rng,
		ReturnAll:    input.ReturnAll,
	}, opts)
	if err != nil {
		return nil, SearchNotesOutput{}, err
	}

	out := SearchNotesOutput{Results: make([]NoteOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, toNoteOutput(r))
	}
	return nil, out, nil
}

func (s *Server) indexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	out := IndexStatusOutput{
		VaultPath: s.vaultDir,
		Embedder:  s.embedder,
	}
	if s.index == nil {
		return nil, out, nil
	}
	stats, err := s.index.Stats()
	if err != nil {
		return nil, IndexStatusOutput{}, fmt.Errorf("read index stats: %w", err)
	}
	out.Partitions = stats.Partitions
	out.Records = stats.Records
	out.SizeBytes = stats.Bytes
	out.Legacy = stats.Legacy
	return nil, out, nil
}

// Serve runs the server until the context is cancelled. Only the stdio
// transport is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	switch transport {
	case "stdio":
		s.logger.Info("mcp_server_started", slog.String("transport", transport))
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
