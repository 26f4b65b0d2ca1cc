package scraper

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/Noxie-dev/workwise-sa/internal/model"
)

const manualSourceTag = "manual"

// FileCollector reads manually curated jobs from a JSON array of records.
type FileCollector struct {
	path string
}

// NewFileCollector returns a collector reading path.
func NewFileCollector(path string) *FileCollector { return &FileCollector{path: path} }

func (c *FileCollector) Collect(ctx context.Context) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", c.path)
	}

	var records []model.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, eris.Wrapf(err, "decode %s", c.path)
	}
	for i := range records {
		if records[i].SourceSite == "" {
			records[i].SourceSite = manualSourceTag
		}
		if records[i].SourceURL == "" && records[i].ExternalID != "" {
			records[i].SourceURL = "manual:" + records[i].ExternalID
		}
	}
	return records, nil
}
