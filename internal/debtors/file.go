package debtors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"kasbon/internal/reminder"
	"kasbon/pkg/yamljson"
)

// FileSource re-reads a snapshot document on every call so edits are picked
// up without a restart. The document is either a bare list of debtors or an
// object with a "debtors" list. Dates are RFC 3339.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource { return &FileSource{path: path} }

func (s *FileSource) Snapshot(ctx context.Context) ([]reminder.Debtor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read debtors file: %w", err)
	}
	data, err = yamljson.ConvertFile(s.path, data)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

// decodeSnapshot accepts `[...]` or `{"debtors": [...]}`.
func decodeSnapshot(data []byte) ([]reminder.Debtor, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var out []reminder.Debtor
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode debtors: %w", err)
		}
		return out, nil
	}
	var doc struct {
		Debtors []reminder.Debtor `json:"debtors"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode debtors: %w", err)
	}
	return doc.Debtors, nil
}
