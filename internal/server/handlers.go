package server

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ironsheep/coin-counter/internal/config"
	"github.com/ironsheep/coin-counter/internal/dataset"
	"github.com/ironsheep/coin-counter/internal/detection"
	"github.com/ironsheep/coin-counter/internal/imaging"
	"github.com/ironsheep/coin-counter/internal/metrics"
	"github.com/ironsheep/coin-counter/internal/pipeline"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "coins_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.log.Warn("tool failed", zap.String("tool", params.Name), zap.Error(err))
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "coins_load":
		return s.handleCoinsLoad(args)
	case "coins_detect":
		return s.handleCoinsDetect(args)
	case "coins_annotate":
		return s.handleCoinsAnnotate(args)
	case "coins_crop":
		return s.handleCoinsCrop(args)
	case "coins_list_images":
		return s.handleCoinsListImages(args)
	case "coins_evaluate_folder":
		return s.handleCoinsEvaluateFolder(args)
	case "coins_relative_error":
		return s.handleCoinsRelativeError(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// detectionOverrides are optional per-call parameter overrides.
// Nil fields keep the server's configured value.
type detectionOverrides struct {
	KernelSize *int     `json:"kernel_size"`
	BlockSize  *int     `json:"block_size"`
	C          *float64 `json:"c"`
	DP         *float64 `json:"dp"`
	MinDist    *float64 `json:"min_dist"`
	Param1     *float64 `json:"param1"`
	Param2     *float64 `json:"param2"`
	MinRadius  *int     `json:"min_radius"`
	MaxRadius  *int     `json:"max_radius"`
}

// apply returns a copy of cfg with the overrides set and validated.
func (o detectionOverrides) apply(cfg config.Config) (config.Config, error) {
	if o.KernelSize != nil {
		cfg.Blur.KernelSize = *o.KernelSize
	}
	if o.BlockSize != nil {
		cfg.Threshold.BlockSize = *o.BlockSize
	}
	if o.C != nil {
		cfg.Threshold.C = *o.C
	}
	if o.DP != nil {
		cfg.Hough.DP = *o.DP
	}
	if o.MinDist != nil {
		cfg.Hough.MinDist = *o.MinDist
	}
	if o.Param1 != nil {
		cfg.Hough.Param1 = *o.Param1
	}
	if o.Param2 != nil {
		cfg.Hough.Param2 = *o.Param2
	}
	if o.MinRadius != nil {
		cfg.Hough.MinRadius = *o.MinRadius
	}
	if o.MaxRadius != nil {
		cfg.Hough.MaxRadius = *o.MaxRadius
	}
	return cfg, cfg.Validate()
}

// === Image Information ===

type coinsLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleCoinsLoad(args json.RawMessage) (interface{}, error) {
	var a coinsLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

// === Detection ===

type coinsDetectArgs struct {
	Path           string `json:"path"`
	IncludeRegions bool   `json:"include_regions"`
	detectionOverrides
}

// coinsDetectResult adds the filename label, when present, to a detection.
type coinsDetectResult struct {
	Path           string                    `json:"path"`
	PredictedCount int                       `json:"predicted_count"`
	Detection      *pipeline.DetectionResult `json:"detection"`
	GroundTruth    *int                      `json:"ground_truth,omitempty"`
	RelativeError  *float64                  `json:"relative_error,omitempty"`
}

func (s *Server) detect(path string, o detectionOverrides) (*pipeline.DetectionResult, config.Config, error) {
	cfg, err := o.apply(s.cfg)
	if err != nil {
		return nil, cfg, err
	}
	detector, err := pipeline.NewDetector(cfg)
	if err != nil {
		return nil, cfg, err
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, cfg, err
	}
	result, err := detector.Detect(img)
	return result, cfg, err
}

func (s *Server) handleCoinsDetect(args json.RawMessage) (interface{}, error) {
	var a coinsDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	result, _, err := s.detect(a.Path, a.detectionOverrides)
	if err != nil {
		return nil, err
	}
	if !a.IncludeRegions {
		result.Regions = result.ListedRegions()
	}

	out := coinsDetectResult{
		Path:           a.Path,
		PredictedCount: result.PredictedCount,
		Detection:      result,
	}
	if truth, ok := dataset.ParseCount(filepath.Base(a.Path)); ok {
		out.GroundTruth = &truth
		if rel, err := metrics.RelativeError(truth, result.PredictedCount); err == nil {
			out.RelativeError = &rel
		}
	}
	return out, nil
}

type coinsAnnotateArgs struct {
	Path       string `json:"path"`
	OutputPath string `json:"output_path"`
	SaveMask   bool   `json:"save_mask"`
	detectionOverrides
}

type coinsAnnotateResult struct {
	AnnotatedPath  string `json:"annotated_path"`
	MaskPath       string `json:"mask_path,omitempty"`
	PredictedCount int    `json:"predicted_count"`
}

func (s *Server) handleCoinsAnnotate(args json.RawMessage) (interface{}, error) {
	var a coinsAnnotateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.OutputPath == "" {
		return nil, fmt.Errorf("output_path is required")
	}

	result, cfg, err := s.detect(a.Path, a.detectionOverrides)
	if err != nil {
		return nil, err
	}
	style, err := cfg.OverlayStyle()
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	out := coinsAnnotateResult{AnnotatedPath: a.OutputPath, PredictedCount: result.PredictedCount}
	if err := imaging.SavePNG(a.OutputPath, imaging.Annotate(img, result.Outlines(), style)); err != nil {
		return nil, err
	}
	if a.SaveMask {
		ext := filepath.Ext(a.OutputPath)
		out.MaskPath = a.OutputPath[:len(a.OutputPath)-len(ext)] + ".mask.png"
		if err := imaging.SavePNG(out.MaskPath, result.Mask.Image()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type coinsCropArgs struct {
	Path    string  `json:"path"`
	Index   int     `json:"index"`
	Padding *int    `json:"padding"`
	Scale   float64 `json:"scale"`
	detectionOverrides
}

type coinsCropResult struct {
	Index  int               `json:"index"`
	Circle detection.Circle  `json:"circle"`
	Crop   *imaging.CoinCrop `json:"crop"`
}

func (s *Server) handleCoinsCrop(args json.RawMessage) (interface{}, error) {
	var a coinsCropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Index == 0 {
		a.Index = 1
	}
	padding := 4
	if a.Padding != nil {
		padding = *a.Padding
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}

	result, _, err := s.detect(a.Path, a.detectionOverrides)
	if err != nil {
		return nil, err
	}
	if a.Index < 1 || a.Index > result.PredictedCount {
		return nil, fmt.Errorf("coin %d not found: %d coins detected", a.Index, result.PredictedCount)
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	c := result.Circles[a.Index-1]
	crop, err := imaging.CropCircle(img, c.Center.X, c.Center.Y, c.Radius, padding, a.Scale)
	if err != nil {
		return nil, err
	}
	return coinsCropResult{Index: a.Index, Circle: c, Crop: crop}, nil
}

// === Dataset and Evaluation ===

type coinsFolderArgs struct {
	Folder string `json:"folder"`
}

type coinsListResult struct {
	Folder string                `json:"folder"`
	Images []dataset.ImageRecord `json:"images"`
	Count  int                   `json:"count"`
}

func (s *Server) handleCoinsListImages(args json.RawMessage) (interface{}, error) {
	var a coinsFolderArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	records, err := dataset.Discover(a.Folder)
	if err != nil {
		return nil, err
	}
	return coinsListResult{Folder: a.Folder, Images: records, Count: len(records)}, nil
}

type coinsEvaluateArgs struct {
	Folder string `json:"folder"`
	detectionOverrides
}

func (s *Server) handleCoinsEvaluateFolder(args json.RawMessage) (interface{}, error) {
	var a coinsEvaluateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg, err := a.detectionOverrides.apply(s.cfg)
	if err != nil {
		return nil, err
	}
	// Tool calls never write images or metrics files as a side effect.
	cfg.Output.ShowImages = false
	cfg.Output.SaveMasks = false
	cfg.Output.MetricsFile = ""

	records, err := dataset.Discover(a.Folder)
	if err != nil {
		return nil, err
	}
	runner, err := pipeline.NewRunner(cfg, pipeline.WithLogger(s.log), pipeline.WithCache(s.cache))
	if err != nil {
		return nil, err
	}
	return runner.Run(context.Background(), records)
}

type coinsRelativeErrorArgs struct {
	TrueValue      int `json:"true_value"`
	EstimatedValue int `json:"estimated_value"`
}

func (s *Server) handleCoinsRelativeError(args json.RawMessage) (interface{}, error) {
	var a coinsRelativeErrorArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	rel, err := metrics.RelativeError(a.TrueValue, a.EstimatedValue)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"true_value":      a.TrueValue,
		"estimated_value": a.EstimatedValue,
		"relative_error":  rel,
	}, nil
}
