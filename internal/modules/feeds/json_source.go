package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/rs/zerolog"
)

// indicatorFile is the layout of the latest-observations file:
//
//	{"as_of": "2026-03-02T21:00:00Z",
//	 "indicators": {"hy_spread": {"value": 3.4}, "vix_struct": {"status": "Contango"}}}
//
// A reading without its own timestamp inherits as_of.
type indicatorFile struct {
	AsOf       time.Time                   `json:"as_of"`
	Indicators map[string]indicatorReading `json:"indicators"`
}

type indicatorReading struct {
	Timestamp *time.Time `json:"timestamp"`
	Value     *float64   `json:"value"`
	Status    string     `json:"status"`
}

// JSONFileSource serves observations from a JSON file.
// The file is re-read only when its modification time changes.
type JSONFileSource struct {
	path string
	log  zerolog.Logger

	mu      sync.Mutex
	modTime time.Time
	cached  *indicatorFile
}

// NewJSONFileSource creates a source over the file at path
func NewJSONFileSource(path string, log zerolog.Logger) *JSONFileSource {
	return &JSONFileSource{
		path: path,
		log:  log.With().Str("source", "json_file").Logger(),
	}
}

// Fetch returns the reading for name
func (s *JSONFileSource) Fetch(ctx context.Context, name string) (domain.Observation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Observation{}, err
	}

	file, err := s.load()
	if err != nil {
		return domain.Observation{}, err
	}

	reading, ok := file.Indicators[name]
	if !ok {
		return domain.Observation{}, fmt.Errorf("%w: %s not in %s", ErrNotAvailable, name, s.path)
	}

	obs := domain.Observation{
		Indicator: name,
		Timestamp: file.AsOf,
		Value:     reading.Value,
		Status:    strings.TrimSpace(reading.Status),
	}
	if reading.Timestamp != nil {
		obs.Timestamp = *reading.Timestamp
	}
	return obs, nil
}

func (s *JSONFileSource) load() (*indicatorFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat indicator file: %w", err)
	}
	if s.cached != nil && info.ModTime().Equal(s.modTime) {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read indicator file: %w", err)
	}
	var file indicatorFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse indicator file %s: %w", s.path, err)
	}

	s.cached = &file
	s.modTime = info.ModTime()
	s.log.Debug().
		Int("indicators", len(file.Indicators)).
		Time("as_of", file.AsOf).
		Msg("Indicator file loaded")
	return s.cached, nil
}
