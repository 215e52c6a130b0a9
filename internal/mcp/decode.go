package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/aura/internal/errors"
)

// decode converts tool arguments into T. Arguments of the wrong shape come
// back as INVALID_REQUEST naming the tool; no arguments leave T zero.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var out T
	args := req.GetArguments()
	if len(args) == 0 {
		return out, nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return out, errors.NewInvalidRequest(fmt.Sprintf("%s: unreadable arguments: %v", req.Params.Name, err))
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, errors.NewInvalidRequest(fmt.Sprintf("%s: %v", req.Params.Name, err))
	}
	return out, nil
}
