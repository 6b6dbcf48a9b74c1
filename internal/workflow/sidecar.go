package workflow

import (
	"encoding/json"
	"os"

	"github.com/kermitt2/article-dataset-builder/internal/model"
)

// writeJSONSidecar writes the entry's metadata JSON file into scratch,
// required unconditionally by the publish step regardless of which other
// artifacts exist.
func writeJSONSidecar(e *model.Entry, path string) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
