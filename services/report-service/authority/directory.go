package authority

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"seva-platform/pkg/apperrors"
	"seva-platform/services/report-service/models"
)

// Directory is the read-mostly list of responsible organizations, loaded once
// from seed data. An external administrative process owns the seed file; this
// service only reads it.
type Directory struct {
	authorities []models.Authority
}

// Load reads the seed file. A missing file yields an empty directory, which
// in turn means new reports stay unassigned.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Directory{}, nil
		}
		return nil, fmt.Errorf("failed to read authority seed: %w", err)
	}

	var authorities []models.Authority
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &authorities); err != nil {
			return nil, fmt.Errorf("failed to parse authority seed: %w", err)
		}
	}
	return &Directory{authorities: authorities}, nil
}

// NewDirectory builds a directory from an in-memory list.
func NewDirectory(authorities []models.Authority) *Directory {
	return &Directory{authorities: authorities}
}

// List returns all authorities in directory order.
func (d *Directory) List() []models.Authority {
	out := make([]models.Authority, len(d.authorities))
	copy(out, d.authorities)
	return out
}

func (d *Directory) Get(id string) (models.Authority, error) {
	for _, a := range d.authorities {
		if a.ID == id {
			return a, nil
		}
	}
	return models.Authority{}, fmt.Errorf("authority %s: %w", id, apperrors.ErrNotFound)
}
