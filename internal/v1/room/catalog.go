package room

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed rooms.json
var embeddedCatalog embed.FS

// LoadCatalog reads the room catalog from overridePath if non-empty,
// otherwise from the binary's embedded default (24 rooms in the reference
// configuration). The document is a flat JSON array of {"name",
// "description"} pairs; room name uniqueness is enforced later by
// NewDirectory, not here.
func LoadCatalog(overridePath string) ([]Metadata, error) {
	var data []byte
	var err error
	if overridePath != "" {
		data, err = os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("room: read catalog override %q: %w", overridePath, err)
		}
	} else {
		data, err = embeddedCatalog.ReadFile("rooms.json")
		if err != nil {
			return nil, fmt.Errorf("room: read embedded catalog: %w", err)
		}
	}

	var entries []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("room: parse catalog: %w", err)
	}

	catalog := make([]Metadata, 0, len(entries))
	for _, e := range entries {
		catalog = append(catalog, Metadata{Name: e.Name, Description: e.Description})
	}
	return catalog, nil
}
