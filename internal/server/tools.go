package server

import (
	"fmt"

	"github.com/ironsheep/coin-counter/internal/config"
)

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// overrideProperties are the optional detection parameters shared by every
// tool that runs the pipeline. Defaults advertise the values cfg runs with.
func overrideProperties(cfg config.Config) map[string]interface{} {
	return map[string]interface{}{
		"kernel_size": map[string]interface{}{
			"type":        "integer",
			"description": fmt.Sprintf("Gaussian blur kernel size (odd). Default %d", cfg.Blur.KernelSize),
			"default":     cfg.Blur.KernelSize,
		},
		"block_size": map[string]interface{}{
			"type":        "integer",
			"description": fmt.Sprintf("Adaptive threshold neighborhood size (odd, >= 3). Default %d", cfg.Threshold.BlockSize),
			"default":     cfg.Threshold.BlockSize,
		},
		"c": map[string]interface{}{
			"type":        "number",
			"description": fmt.Sprintf("Constant subtracted from the neighborhood mean. Default %g", cfg.Threshold.C),
			"default":     cfg.Threshold.C,
		},
		"dp": map[string]interface{}{
			"type":        "number",
			"description": fmt.Sprintf("Inverse accumulator resolution (>= 1). Default %g", cfg.Hough.DP),
			"default":     cfg.Hough.DP,
		},
		"min_dist": map[string]interface{}{
			"type":        "number",
			"description": fmt.Sprintf("Minimum distance between coin centers in pixels. Default %g", cfg.Hough.MinDist),
			"default":     cfg.Hough.MinDist,
		},
		"param1": map[string]interface{}{
			"type":        "number",
			"description": fmt.Sprintf("Edge gradient threshold. Default %g", cfg.Hough.Param1),
			"default":     cfg.Hough.Param1,
		},
		"param2": map[string]interface{}{
			"type":        "number",
			"description": fmt.Sprintf("Vote and edge support threshold; lower finds more circles. Default %g", cfg.Hough.Param2),
			"default":     cfg.Hough.Param2,
		},
		"min_radius": map[string]interface{}{
			"type":        "integer",
			"description": fmt.Sprintf("Minimum coin radius in pixels. Default %d", cfg.Hough.MinRadius),
			"default":     cfg.Hough.MinRadius,
		},
		"max_radius": map[string]interface{}{
			"type":        "integer",
			"description": fmt.Sprintf("Maximum coin radius in pixels. Default %d", cfg.Hough.MaxRadius),
			"default":     cfg.Hough.MaxRadius,
		},
	}
}

// GetToolDefinitions returns all available tools, advertising the detection
// defaults of cfg.
func GetToolDefinitions(cfg config.Config) []Tool {
	withOverrides := func(props map[string]interface{}) map[string]interface{} {
		for k, v := range overrideProperties(cfg) {
			props[k] = v
		}
		return props
	}

	return []Tool{
		{
			Name:        "coins_load",
			Description: "Load an image file and return its dimensions, format and size.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "coins_detect",
			Description: "Count the coins in a photograph. Returns the detected circles (center, radius, votes) and the connected coin regions of the binary mask. If the filename encodes a count (e.g. coins_5.jpg) the relative error is included.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withOverrides(map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"include_regions": map[string]interface{}{
						"type":        "boolean",
						"description": "Return every mask region instead of one per detected coin. Default false",
						"default":     false,
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "coins_annotate",
			Description: "Detect coins and write a PNG copy of the image with each detected coin outlined.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withOverrides(map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Where to write the annotated PNG",
					},
					"save_mask": map[string]interface{}{
						"type":        "boolean",
						"description": "Also write the binary mask next to the output as <name>.mask.png. Default false",
						"default":     false,
					},
				}),
				"required": []string{"path", "output_path"},
			},
		},
		{
			Name:        "coins_crop",
			Description: "Detect coins and return one of them as a base64-encoded PNG cut-out with its mean color. Use this to examine an individual coin.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withOverrides(map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"index": map[string]interface{}{
						"type":        "integer",
						"description": "1-based coin index in detection order (strongest first). Default 1",
						"default":     1,
					},
					"padding": map[string]interface{}{
						"type":        "integer",
						"description": "Extra pixels around the coin. Default 4",
						"default":     4,
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor (e.g., 2.0 to double size). Default 1.0",
						"default":     1.0,
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "coins_list_images",
			Description: "List the labeled images of a folder. The true coin count of each image is parsed from its filename.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"folder": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image folder",
					},
				},
				"required": []string{"folder"},
			},
		},
		{
			Name:        "coins_evaluate_folder",
			Description: "Run the coin counter over every labeled image of a folder and return per-image results with the mean squared error and average relative error.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withOverrides(map[string]interface{}{
					"folder": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image folder",
					},
				}),
				"required": []string{"folder"},
			},
		},
		{
			Name:        "coins_relative_error",
			Description: "Compute |true - estimated| / true as a percentage.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"true_value": map[string]interface{}{
						"type":        "integer",
						"description": "True coin count (must be non-zero)",
					},
					"estimated_value": map[string]interface{}{
						"type":        "integer",
						"description": "Predicted coin count",
					},
				},
				"required": []string{"true_value", "estimated_value"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(s.cfg),
		},
	}
}
