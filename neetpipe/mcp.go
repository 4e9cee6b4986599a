package neetpipe

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/neetextract/horosafe"
	"github.com/hazyhaar/neetextract/kit"
	"github.com/hazyhaar/neetextract/neetpipe/internal/store"
)

// RegisterMCP registers the pipeline tools on an MCP server.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	resolve := func(path string) (string, error) { return horosafe.PDFPath("", path) }
	p.registerProcessTool(srv, resolve, func(ctx context.Context, path string) (any, error) {
		res := p.ProcessFile(ctx, path)
		return struct {
			*Result
			QualityScore float64 `json:"qualityScore"`
		}{res, res.QualityScore()}, nil
	})
	p.registerAnalyzeTool(srv, resolve)
	p.registerParseTextTool(srv)
}

// toolEndpoint logs calls of the tool and contains its panics.
func toolEndpoint(logger *slog.Logger, name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(logger, name), kit.Recover(logger))(ep)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- process ---

type processReq struct {
	Path string `json:"path"`
}

func (p *Pipeline) registerProcessTool(srv *mcp.Server, resolve func(string) (string, error), process func(context.Context, string) (any, error)) {
	tool := &mcp.Tool{
		Name:        "neet_process",
		Description: "Extract the multiple-choice questions of a NEET exam PDF. Returns questions, metadata, errors and warnings.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "PDF file path"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*processReq)
		if r.Path == "" {
			return nil, errors.New("path is required")
		}
		path, err := resolve(r.Path)
		if err != nil {
			return nil, err
		}
		return process(ctx, path)
	}

	kit.RegisterMCPTool(srv, tool, toolEndpoint(p.logger, tool.Name, endpoint), kit.DecodeJSON[processReq]())
}

// --- analyze ---

type analyzeReq struct {
	Path string `json:"path"`
}

func (p *Pipeline) registerAnalyzeTool(srv *mcp.Server, resolve func(string) (string, error)) {
	tool := &mcp.Tool{
		Name:        "neet_analyze",
		Description: "Classify a PDF: NEET format, instructions, solutions, estimated question count, content quality.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "PDF file path"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*analyzeReq)
		if r.Path == "" {
			return nil, errors.New("path is required")
		}
		path, err := resolve(r.Path)
		if err != nil {
			return nil, err
		}
		return p.Analyze(ctx, path)
	}

	kit.RegisterMCPTool(srv, tool, toolEndpoint(p.logger, tool.Name, endpoint), kit.DecodeJSON[analyzeReq]())
}

// --- parse_text ---

type parseTextReq struct {
	Text string `json:"text"`
	Page int    `json:"page"`
}

func (p *Pipeline) registerParseTextTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "neet_parse_text",
		Description: "Parse the text of one exam page into questions.",
		InputSchema: inputSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Page text"},
			"page": map[string]any{"type": "integer", "description": "1-based page number (default 1)"},
		}, []string{"text"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*parseTextReq)
		if r.Page <= 0 {
			r.Page = 1
		}
		qs := p.ParseText(r.Text, r.Page)
		return map[string]any{"questions": qs, "count": len(qs)}, nil
	}

	kit.RegisterMCPTool(srv, tool, toolEndpoint(p.logger, tool.Name, endpoint), kit.DecodeJSON[parseTextReq]())
}

// --- service tools ---

// RegisterMCP registers the pipeline tools, with neet_process storing its
// result, plus the run, job and question review tools.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	p := s.pipe
	p.registerProcessTool(srv, s.resolve, func(ctx context.Context, path string) (any, error) {
		return s.Process(ctx, path)
	})
	p.registerAnalyzeTool(srv, s.resolve)
	p.registerParseTextTool(srv)
	s.registerRunTool(srv)
	s.registerSubmitTool(srv)
	s.registerJobTool(srv)
	s.registerQuestionsTool(srv)
}

type idReq struct {
	ID string `json:"id"`
}

func (s *Service) registerRunTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "neet_run",
		Description: "Return a stored extraction run with its current questions.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Run id (run_...)"},
		}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Run(ctx, req.(*idReq).ID)
	}
	kit.RegisterMCPTool(srv, tool, toolEndpoint(s.logger, tool.Name, endpoint), kit.DecodeJSON[idReq]())
}

func (s *Service) registerSubmitTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "neet_job_submit",
		Description: "Queue a PDF for background extraction. Returns the job; poll it with neet_job_status.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "PDF file path"},
		}, []string{"path"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*processReq)
		if r.Path == "" {
			return nil, errors.New("path is required")
		}
		path, err := s.resolve(r.Path)
		if err != nil {
			return nil, err
		}
		return s.Submit(ctx, path)
	}
	kit.RegisterMCPTool(srv, tool, toolEndpoint(s.logger, tool.Name, endpoint), kit.DecodeJSON[processReq]())
}

func (s *Service) registerJobTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "neet_job_status",
		Description: "Return the state of a queued extraction job (queued, running, done, failed) and its run id once done.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Job id (job_...)"},
		}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Job(ctx, req.(*idReq).ID)
	}
	kit.RegisterMCPTool(srv, tool, toolEndpoint(s.logger, tool.Name, endpoint), kit.DecodeJSON[idReq]())
}

type questionsReq struct {
	RunID         string  `json:"run_id"`
	Subject       string  `json:"subject"`
	Page          int     `json:"page"`
	MinConfidence float64 `json:"min_confidence"`
	Limit         int     `json:"limit"`
}

func (s *Service) registerQuestionsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "neet_questions",
		Description: "List stored questions, filtered by run, subject, page and minimum confidence.",
		InputSchema: inputSchema(map[string]any{
			"run_id":         map[string]any{"type": "string"},
			"subject":        map[string]any{"type": "string", "enum": []string{"Physics", "Chemistry", "Biology"}},
			"page":           map[string]any{"type": "integer"},
			"min_confidence": map[string]any{"type": "number"},
			"limit":          map[string]any{"type": "integer", "description": "Max results (default 100)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*questionsReq)
		if r.Limit <= 0 {
			r.Limit = 100
		}
		recs, err := s.store.GetQuestions(ctx, store.Filter{
			RunID:         r.RunID,
			Subject:       Subject(r.Subject),
			Page:          r.Page,
			MinConfidence: r.MinConfidence,
			Limit:         r.Limit,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"questions": recs, "count": len(recs)}, nil
	}
	kit.RegisterMCPTool(srv, tool, toolEndpoint(s.logger, tool.Name, endpoint), kit.DecodeJSON[questionsReq]())
}
