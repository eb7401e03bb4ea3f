package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/bidsify/bidsify/internal/bids"
	"github.com/bidsify/bidsify/internal/database"
	"github.com/bidsify/bidsify/internal/discovery"
	"github.com/bidsify/bidsify/internal/heuristic"
	"github.com/bidsify/bidsify/internal/pipeline"
	"github.com/bidsify/bidsify/internal/services"
)

// Options configure the MCP server.
type Options struct {
	StudyDir string
	ZeroPad  int
	Version  string
	Logger   *zap.Logger
}

// Server exposes study classification, BIDS naming and the file registry
// as MCP tools.
type Server struct {
	server   *mcp.Server
	dbCtx    *database.Context
	cfg      *heuristic.Config
	proc     *pipeline.Processor
	registry *services.RegistryService
	opts     Options
}

// NewServer creates a new MCP server instance. The server takes ownership of
// dbCtx and closes it when Run returns.
func NewServer(cfg *heuristic.Config, dbCtx *database.Context, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ZeroPad < 1 {
		opts.ZeroPad = 2
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    pipeline.ToolName,
		Version: opts.Version,
	}, nil)

	s := &Server{
		server:   mcpServer,
		dbCtx:    dbCtx,
		cfg:      cfg,
		proc:     pipeline.NewProcessor(cfg, nil, nil, pipeline.Options{StudyDir: opts.StudyDir, ZeroPad: opts.ZeroPad}, opts.Logger),
		registry: services.NewRegistryService(dbCtx, opts.Logger),
		opts:     opts,
	}

	s.registerTools()

	return s
}

// Run starts the MCP server with stdio transport
func (s *Server) Run(ctx context.Context) error {
	defer database.CloseDatabase(s.dbCtx)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "bids_discover",
		Description: "List the source files of the study with their subject and session",
	}, s.handleDiscover)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "bids_classify",
		Description: "Classify a source file against the study search dictionary",
	}, s.handleClassify)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "bids_name",
		Description: "Render the BIDS file names for a subject, session, modality and naming components",
	}, s.handleName)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "registry_list",
		Description: "List registered source files",
	}, s.handleRegistryList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "registry_get",
		Description: "Get the registry record of a source file by file ID",
	}, s.handleRegistryGet)
}

// Input/Output types for each tool

type DiscoverInput struct {
	Exclude []string `json:"exclude,omitempty" jsonschema:"Extra exclusion terms on top of the study configuration"`
}

type DiscoverOutput struct {
	Files []SourceFile `json:"files"`
}

type SourceFile struct {
	SubjectID string `json:"subjectId"`
	SessionID string `json:"sessionId,omitempty"`
	Path      string `json:"path"`
	RelPath   string `json:"relPath"`
}

type ClassifyInput struct {
	Path string `json:"path" jsonschema:"Path of the source file, absolute or relative to the study directory"`
}

type ClassifyOutput struct {
	ModalityType  string            `json:"modalityType,omitempty"`
	ModalityLabel string            `json:"modalityLabel,omitempty"`
	Task          string            `json:"task,omitempty"`
	Format        string            `json:"format"`
	Components    map[string]string `json:"components,omitempty"`
	Matched       bool              `json:"matched"`
}

type NameInput struct {
	Subject        string            `json:"subject" jsonschema:"Subject ID without the sub- prefix"`
	Session        string            `json:"session,omitempty" jsonschema:"Session ID without the ses- prefix"`
	ModalityType   string            `json:"modalityType" jsonschema:"Modality type such as anat, func, dwi or fmap"`
	ModalityLabel  string            `json:"modalityLabel,omitempty" jsonschema:"Modality label used as the name suffix"`
	Task           string            `json:"task,omitempty" jsonschema:"Task name for functional scans"`
	Components     map[string]string `json:"components,omitempty" jsonschema:"Naming components keyed by BIDS entity (acq, ce, dir, rec, echo)"`
	Run            int               `json:"run,omitempty" jsonschema:"Run index (1 if not specified)"`
	FieldmapImages []string          `json:"fieldmapImages,omitempty" jsonschema:"Converted fieldmap image names, used to pick the fieldmap case"`
}

type NameOutput struct {
	Directory string   `json:"directory"`
	Names     []string `json:"names"`
}

type RegistryListInput struct {
	Subject string `json:"subject,omitempty" jsonschema:"Only list files of this subject"`
	Session string `json:"session,omitempty" jsonschema:"Only list files of this session"`
}

type RegistryListOutput struct {
	Files []RegistryEntry `json:"files"`
}

type RegistryEntry struct {
	FileID       string `json:"fileId"`
	RelPath      string `json:"relPath"`
	SubjectID    string `json:"subjectId"`
	SessionID    string `json:"sessionId,omitempty"`
	ModalityType string `json:"modalityType,omitempty"`
	BIDSName     string `json:"bidsName,omitempty"`
	FileDate     string `json:"fileDate,omitempty"`
	AcqDate      string `json:"acqDate,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

type RegistryGetInput struct {
	FileID string `json:"fileId" jsonschema:"Seven digit file ID assigned at registration"`
}

// Tool handlers

func (s *Server) handleDiscover(ctx context.Context, req *mcp.CallToolRequest, input DiscoverInput) (*mcp.CallToolResult, DiscoverOutput, error) {
	exclude := append(append([]string{}, s.cfg.Exclude...), input.Exclude...)
	records, err := discovery.Discover(s.opts.StudyDir, discovery.Options{Exclude: exclude, Logger: s.opts.Logger})
	if err != nil {
		return nil, DiscoverOutput{}, fmt.Errorf("failed to discover source files: %w", err)
	}

	files := make([]SourceFile, 0, len(records))
	for _, r := range records {
		files = append(files, SourceFile{
			SubjectID: r.SubjectID,
			SessionID: r.SessionID,
			Path:      r.Path,
			RelPath:   r.RelPath,
		})
	}
	return nil, DiscoverOutput{Files: files}, nil
}

func (s *Server) handleClassify(ctx context.Context, req *mcp.CallToolRequest, input ClassifyInput) (*mcp.CallToolResult, ClassifyOutput, error) {
	if input.Path == "" {
		return nil, ClassifyOutput{}, fmt.Errorf("path is required")
	}
	path := input.Path
	if !filepath.IsAbs(path) && s.opts.StudyDir != "" {
		path = filepath.Join(s.opts.StudyDir, path)
	}

	plan := s.proc.Plan(discovery.SourceRecord{Path: path})
	return nil, ClassifyOutput{
		ModalityType:  plan.Result.ModalityType,
		ModalityLabel: plan.Result.ModalityLabel,
		Task:          plan.Result.Task,
		Format:        plan.Format.String(),
		Components:    plan.Components,
		Matched:       plan.Result.Matched(),
	}, nil
}

func (s *Server) handleName(ctx context.Context, req *mcp.CallToolRequest, input NameInput) (*mcp.CallToolResult, NameOutput, error) {
	c := bids.Components{Label: input.ModalityLabel, Task: input.Task}
	for k, v := range input.Components {
		c.Set(k, v)
	}
	switch {
	case input.Run > 0:
		c.Run = bids.ZeroPad(input.Run, s.opts.ZeroPad)
	case c.Run != "":
		c.Run = bids.PadRun(c.Run, s.opts.ZeroPad)
	default:
		c.Run = bids.ZeroPad(1, s.opts.ZeroPad)
	}

	var fm bids.FieldmapCase
	if input.ModalityType == bids.TypeFmap {
		var err error
		fm, err = bids.ResolveFieldmapCase(len(input.FieldmapImages), input.FieldmapImages)
		if err != nil {
			return nil, NameOutput{}, err
		}
	}

	d, err := bids.NewDescriptor(input.Subject, input.Session, input.ModalityType, c, fm)
	if err != nil {
		return nil, NameOutput{}, err
	}
	names, err := bids.Render(d)
	if err != nil {
		return nil, NameOutput{}, err
	}
	return nil, NameOutput{
		Directory: bids.OutputDir("", d),
		Names:     names,
	}, nil
}

func (s *Server) handleRegistryList(ctx context.Context, req *mcp.CallToolRequest, input RegistryListInput) (*mcp.CallToolResult, RegistryListOutput, error) {
	records, err := s.registry.List(ctx, database.SourceFileFilter{
		SubjectID: input.Subject,
		SessionID: input.Session,
	})
	if err != nil {
		return nil, RegistryListOutput{}, fmt.Errorf("failed to list source files: %w", err)
	}

	files := make([]RegistryEntry, 0, len(records))
	for _, r := range records {
		files = append(files, toEntry(r))
	}
	return nil, RegistryListOutput{Files: files}, nil
}

func (s *Server) handleRegistryGet(ctx context.Context, req *mcp.CallToolRequest, input RegistryGetInput) (*mcp.CallToolResult, RegistryEntry, error) {
	rec, err := s.registry.Get(ctx, input.FileID)
	if err != nil {
		return nil, RegistryEntry{}, fmt.Errorf("failed to get source file: %w", err)
	}
	return nil, toEntry(*rec), nil
}

func toEntry(r database.SourceFileRecord) RegistryEntry {
	return RegistryEntry{
		FileID:       r.FileID,
		RelPath:      r.RelPath,
		SubjectID:    r.SubjectID,
		SessionID:    r.SessionID,
		ModalityType: r.ModalityType,
		BIDSName:     r.BIDSName,
		FileDate:     formatTime(r.FileDate),
		AcqDate:      formatTime(r.AcqDate),
		CreatedAt:    formatTime(r.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
