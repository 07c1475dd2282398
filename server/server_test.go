// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func requestWithArgs(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestRAGArgs_FullContentByDefault(t *testing.T) {
	args := ragArgs("how to connect", requestWithArgs(map[string]any{}))

	if !args.IncludeFullContent {
		t.Error("omitting include_full_content must yield full content")
	}
	if args.Query != "how to connect" {
		t.Errorf("query = %q", args.Query)
	}
	if args.MatchCount != 0 || args.Offset != 0 || args.MaxContentLength != 0 {
		t.Errorf("unset numeric args must stay zero for downstream defaults: %+v", args)
	}
}

func TestRAGArgs_ExplicitValues(t *testing.T) {
	args := ragArgs("q", requestWithArgs(map[string]any{
		"include_full_content": false,
		"source":               "example.com",
		"match_count":          float64(3),
		"max_content_length":   float64(200),
	}))

	if args.IncludeFullContent {
		t.Error("explicit include_full_content=false must win over the default")
	}
	if args.Source != "example.com" {
		t.Errorf("source = %q", args.Source)
	}
	if args.MatchCount != 3 || args.MaxContentLength != 200 {
		t.Errorf("args = %+v", args)
	}
}
