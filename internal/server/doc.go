// Package server implements the MCP (Model Context Protocol) server for the
// coin counter.
//
// This package provides a JSON-RPC 2.0 server that exposes coin detection and
// dataset evaluation as MCP tools, so an assistant can count coins in a photo,
// inspect individual detections, and score a labeled folder.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Single image:
//   - coins_load: Image dimensions and format
//   - coins_detect: Circles, regions, and the relative error when the filename is labeled
//   - coins_annotate: Write the image with detected coins outlined
//   - coins_crop: Cut out one detected coin with its mean color
//
// Dataset:
//   - coins_list_images: Labeled images of a folder
//   - coins_evaluate_folder: Batch run with mean squared and average relative error
//   - coins_relative_error: Relative error of one prediction
//
// Tools that run the pipeline accept optional overrides of the blur,
// threshold and Hough parameters; omitted values come from the server's
// configuration.
//
// # Image Caching
//
// Decoded images are cached by path and reused across tool calls. A folder
// evaluation evicts each image once it has been scored.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	srv := server.New(config.Default(), logger.Log())
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
