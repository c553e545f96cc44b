package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spiffcs/devexport/internal/fileutil"
	"github.com/spiffcs/devexport/internal/model"
)

// Encode writes snap as indented JSON.
func Encode(w io.Writer, snap *model.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(snap)
}

// Write writes snap to path atomically. Path "-" writes to stdout.
func Write(path string, snap *model.Snapshot, stdout io.Writer) error {
	if path == "-" {
		return Encode(stdout, snap)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	if err := fileutil.WriteAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
