package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// Archiver uploads the durable artifacts of a completed run: the closed
// trade log as JSONL and the final checkpoint as JSON, both under
// runs/<run_id>/. The primary store keeps its copy; archival is additive.
type Archiver struct {
	writer domain.BlobWriter
	trades domain.TradeStore
}

// NewArchiver creates an Archiver reading trades from the given store.
func NewArchiver(writer domain.BlobWriter, trades domain.TradeStore) *Archiver {
	return &Archiver{writer: writer, trades: trades}
}

// ArchiveRun uploads the run's trade log and final checkpoint. The count of
// archived trades is returned.
func (a *Archiver) ArchiveRun(ctx context.Context, cp domain.Checkpoint) (int64, error) {
	trades, err := a.trades.ListByRun(ctx, cp.RunID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive run query: %w", err)
	}

	if len(trades) > 0 {
		buf, err := marshalJSONL(trades)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
		}
		path := runPath(cp.RunID, "trades.jsonl")
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
		}
	}

	cpJSON, err := json.Marshal(cp)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive checkpoint marshal: %w", err)
	}
	path := runPath(cp.RunID, "checkpoint.json")
	if err := a.writer.Put(ctx, path, bytes.NewReader(cpJSON), "application/json"); err != nil {
		return 0, fmt.Errorf("s3blob: archive checkpoint upload: %w", err)
	}

	return int64(len(trades)), nil
}

// runPath builds the S3 key for a run artifact.
//
//	runs/a2f9c1/trades.jsonl
//	runs/a2f9c1/checkpoint.json
func runPath(runID, name string) string {
	return fmt.Sprintf("runs/%s/%s", runID, name)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
