// Package station loads the UK station directory used by the search
// autocomplete. The directory is read once at startup; lookups are
// in-memory and read-only afterwards.
package station

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Station is one directory entry: display name plus CRS code.
type Station struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// fallback keeps autocomplete minimally useful when stations.json is
// missing or unreadable.
var fallback = []Station{
	{Name: "London Paddington", Code: "PAD"},
	{Name: "Didcot Parkway", Code: "DID"},
}

type rawStation struct {
	StationName string `json:"stationName"`
	CRSCode     string `json:"crsCode"`
}

// Directory is the loaded station list.
type Directory struct {
	stations []Station
}

// Load reads the station file. On any error it returns a directory with the
// built-in fallback entries along with the error, so callers can log and
// keep running.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &Directory{stations: fallback}, fmt.Errorf("read station file: %w", err)
	}

	var entries []rawStation
	if err := json.Unmarshal(raw, &entries); err != nil {
		return &Directory{stations: fallback}, fmt.Errorf("decode station file: %w", err)
	}

	stations := make([]Station, 0, len(entries))
	for _, e := range entries {
		if e.StationName == "" || e.CRSCode == "" {
			continue
		}
		stations = append(stations, Station{Name: e.StationName, Code: e.CRSCode})
	}

	if len(stations) == 0 {
		return &Directory{stations: fallback}, fmt.Errorf("station file %s has no usable entries", path)
	}

	return &Directory{stations: stations}, nil
}

// Len returns the number of loaded stations.
func (d *Directory) Len() int {
	return len(d.stations)
}

// Search returns up to limit stations whose name contains the query
// (case-insensitive) or whose CRS code matches it exactly. Code matches
// sort first. An empty query returns nothing.
func (d *Directory) Search(query string, limit int) []Station {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	upper := strings.ToUpper(query)
	lower := strings.ToLower(query)

	var codeMatches, nameMatches []Station
	for _, s := range d.stations {
		if s.Code == upper {
			codeMatches = append(codeMatches, s)
			continue
		}
		if strings.Contains(strings.ToLower(s.Name), lower) {
			nameMatches = append(nameMatches, s)
		}
	}

	results := append(codeMatches, nameMatches...)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
