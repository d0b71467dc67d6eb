// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/synthflat/internal/ops"
)

func Serve() {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/flat", postFlat)
		}
	}
	r.Run() // listen and serve on 0.0.0.0:8080
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

type postFlatArgs struct {
	FilePatterns []string          `json:"filePatterns"`
	Options      *ops.BatchOptions `json:"options"`
}

// Runs the flat derivation batch over the given filename patterns, streaming
// the processing log as the response body
func postFlat(c *gin.Context) {
	logWriter := c.Writer
	var args postFlatArgs
	if err := c.ShouldBind(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.Options == nil {
		args.Options = ops.NewBatchOptionsDefault()
	}

	fileNames, err := globAllowed(args.FilePatterns)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	oc := ops.NewContext(c.Request.Context(), logWriter)
	if err := ops.RunBatch(fileNames, args.Options, oc); err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	}
	logWriter.(http.Flusher).Flush()
}

// Expands filename patterns, rejecting any pattern that could escape the
// current directory tree the server was sandboxed into
func globAllowed(patterns []string) (fileNames []string, err error) {
	for _, pattern := range patterns {
		if filepath.IsAbs(pattern) || strings.Contains(pattern, "..") {
			return nil, fmt.Errorf("pattern %s outside current directory tree", pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		fileNames = append(fileNames, matches...)
	}
	if len(fileNames) == 0 {
		return nil, fmt.Errorf("no files match patterns %v", patterns)
	}
	return fileNames, nil
}
