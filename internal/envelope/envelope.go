// Package envelope writes the single JSON line each adapter invocation
// prints on stdout.
package envelope

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cozy-creator/audio-adapters/internal/types"
)

const (
	keyRequestID = "request_id"
	keyError     = "error"
	keyErrorType = "error_type"
)

// Write prints result with request_id set. If the result cannot be encoded
// an ExecutionError envelope is written instead and its error returned.
func Write(w io.Writer, requestID string, result types.Result) error {
	doc := make(map[string]any, len(result)+1)
	for k, v := range result {
		doc[k] = v
	}
	doc[keyRequestID] = requestID

	line, err := json.Marshal(doc)
	if err != nil {
		encErr := types.Errorf(types.ExecutionError, "failed to encode result: %v", err)
		if werr := WriteError(w, requestID, encErr); werr != nil {
			return werr
		}
		return encErr
	}

	return writeLine(w, line)
}

// WriteError prints {error, error_type, request_id}.
func WriteError(w io.Writer, requestID string, err error) error {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}

	line, merr := json.Marshal(map[string]string{
		keyError:     msg,
		keyErrorType: string(types.KindOf(err)),
		keyRequestID: requestID,
	})
	if merr != nil {
		return merr
	}

	return writeLine(w, line)
}

func writeLine(w io.Writer, line []byte) error {
	if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	return nil
}
