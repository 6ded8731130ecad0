// Package archive keeps a searchable history of round events in Elasticsearch.
// Documents go into one index per month; months past the retention period are
// dumped to gzip files and dropped.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/fadedpez/wingo/internal/logging"
	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/events"
)

// monthLayout is the date suffix of every round index
const monthLayout = "2006-01"

// Config holds configuration options for the Elasticsearch archive
type Config struct {
	URL             string
	Username        string
	Password        string
	IndexPrefix     string
	ArchivePath     string        // Where pruned indices are dumped
	RetentionPeriod time.Duration // How long a month stays searchable
	BatchSize       int           // Scroll page size when dumping
}

// DefaultConfig returns a default configuration for the archive
func DefaultConfig() *Config {
	return &Config{
		URL:             "http://localhost:9200",
		IndexPrefix:     "wingo",
		ArchivePath:     "./archives",
		RetentionPeriod: 90 * 24 * time.Hour, // 90 days
		BatchSize:       500,
	}
}

const roundMapping = `{
	"mappings": {
		"properties": {
			"type": { "type": "keyword" },
			"game_type": { "type": "keyword" },
			"duration": { "type": "integer" },
			"period": { "type": "keyword" },
			"outcome": {
				"properties": {
					"number": { "type": "integer" },
					"colors": { "type": "keyword" },
					"created_at": { "type": "date" }
				}
			},
			"settled": { "type": "integer" },
			"failed": { "type": "integer" },
			"total_staked": { "type": "long" },
			"total_payout": { "type": "long" },
			"timestamp": { "type": "date" }
		}
	}
}`

// ElasticsearchArchive stores round events. It implements events.Publisher.
type ElasticsearchArchive struct {
	client *elasticsearch.Client
	config *Config
	now    func() time.Time
	logger *logging.Logger

	mu      sync.Mutex
	created map[string]bool
}

// NewElasticsearchArchive creates an archive client. Indices are created on
// first write, so Elasticsearch does not need to be up yet.
func NewElasticsearchArchive(config *Config) (*ElasticsearchArchive, error) {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}

	cfg := elasticsearch.Config{
		Addresses: []string{config.URL},
	}
	if config.Username != "" && config.Password != "" {
		cfg.Username = config.Username
		cfg.Password = config.Password
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}

	if config.IndexPrefix == "" {
		config.IndexPrefix = defaults.IndexPrefix
	}
	if config.ArchivePath == "" {
		config.ArchivePath = defaults.ArchivePath
	}
	if config.RetentionPeriod == 0 {
		config.RetentionPeriod = defaults.RetentionPeriod
	}
	if config.BatchSize == 0 {
		config.BatchSize = defaults.BatchSize
	}

	return &ElasticsearchArchive{
		client:  client,
		config:  config,
		now:     time.Now,
		logger:  logging.Default,
		created: make(map[string]bool),
	}, nil
}

// IndexFor returns the monthly index an event timestamp falls into
func (a *ElasticsearchArchive) IndexFor(t time.Time) string {
	return a.config.IndexPrefix + "_rounds_" + t.UTC().Format(monthLayout)
}

// IndexPattern matches every round index
func (a *ElasticsearchArchive) IndexPattern() string {
	return a.config.IndexPrefix + "_rounds_*"
}

// Publish indexes an event. The document ID is derived from the event so a
// repeated delivery overwrites instead of duplicating.
func (a *ElasticsearchArchive) Publish(ctx context.Context, event *events.Event) error {
	at := event.Timestamp
	if at.IsZero() {
		at = a.now()
	}
	index := a.IndexFor(at)
	if err := a.ensureIndex(ctx, index); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error marshaling event: %w", err)
	}

	res, err := a.client.Index(
		index,
		bytes.NewReader(body),
		a.client.Index.WithContext(ctx),
		a.client.Index.WithDocumentID(documentID(event)),
	)
	if err != nil {
		return fmt.Errorf("error indexing event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing event: %s", res.String())
	}
	return nil
}

func documentID(event *events.Event) string {
	return fmt.Sprintf("%s-%s-%d-%s", event.Type, event.GameType, event.Duration, event.Period)
}

// ensureIndex creates index with the round mapping unless it already exists
func (a *ElasticsearchArchive) ensureIndex(ctx context.Context, index string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.created[index] {
		return nil
	}

	res, err := a.client.Indices.Exists([]string{index}, a.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error checking if index exists: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == 404 {
		req := esapi.IndicesCreateRequest{
			Index: index,
			Body:  strings.NewReader(roundMapping),
		}
		res, err := req.Do(ctx, a.client)
		if err != nil {
			return fmt.Errorf("error creating index %s: %w", index, err)
		}
		defer res.Body.Close()

		// 400 means another instance created it first
		if res.IsError() && res.StatusCode != 400 {
			return fmt.Errorf("error creating index %s: %s", index, res.String())
		}
		a.logger.Info("Created archive index %s", index)
	}

	a.created[index] = true
	return nil
}

// RecentOutcomes searches the archive for the latest outcome events of a mode
func (a *ElasticsearchArchive) RecentOutcomes(ctx context.Context, mode entities.Mode, limit int) ([]*events.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`{
		"query": {
			"bool": {
				"filter": [
					{ "term": { "type": %q } },
					{ "term": { "game_type": %q } },
					{ "term": { "duration": %d } }
				]
			}
		},
		"sort": [
			{ "period": { "order": "desc" } }
		]
	}`, events.TypeOutcomeCreated, mode.GameType, mode.DurationSeconds())

	res, err := a.client.Search(
		a.client.Search.WithContext(ctx),
		a.client.Search.WithIndex(a.IndexPattern()),
		a.client.Search.WithBody(strings.NewReader(query)),
		a.client.Search.WithSize(limit),
		a.client.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, fmt.Errorf("error searching archive: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error searching archive: %s", res.String())
	}

	var result searchResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error parsing search response: %w", err)
	}

	found := make([]*events.Event, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		var event events.Event
		if err := json.Unmarshal(hit.Source, &event); err != nil {
			a.logger.Warn("Skipping unreadable archive document %s: %v", hit.ID, err)
			continue
		}
		found = append(found, &event)
	}
	return found, nil
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// GetIndices returns a list of indices that match the given pattern
func (a *ElasticsearchArchive) GetIndices(ctx context.Context, pattern string) ([]string, error) {
	res, err := a.client.Indices.Get(
		[]string{pattern},
		a.client.Indices.Get.WithContext(ctx),
		a.client.Indices.Get.WithExpandWildcards("open"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get indices: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error getting indices: %s", res.String())
	}

	var indices map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&indices); err != nil {
		return nil, fmt.Errorf("error parsing indices response: %w", err)
	}

	indexNames := make([]string, 0, len(indices))
	for name := range indices {
		indexNames = append(indexNames, name)
	}
	sort.Strings(indexNames)
	return indexNames, nil
}

// PruneOldIndices dumps and deletes every monthly index whose month ended
// before the retention cutoff. It returns the deleted index names. An index
// that cannot be dumped is kept.
func (a *ElasticsearchArchive) PruneOldIndices(ctx context.Context) ([]string, error) {
	indices, err := a.GetIndices(ctx, a.IndexPattern())
	if err != nil {
		return nil, err
	}

	cutoff := a.now().Add(-a.config.RetentionPeriod)
	prefix := a.config.IndexPrefix + "_rounds_"

	var pruned []string
	for _, index := range indices {
		month, err := time.Parse(monthLayout, strings.TrimPrefix(index, prefix))
		if err != nil {
			a.logger.Warn("Error parsing date from index name %s: %v", index, err)
			continue
		}
		if !month.AddDate(0, 1, 0).Before(cutoff) {
			continue
		}

		a.logger.Info("Pruning index %s (older than retention period of %v)", index, a.config.RetentionPeriod)
		if err := a.dumpIndex(ctx, index); err != nil {
			a.logger.Error("Skipping deletion of index %s, dump failed: %v", index, err)
			continue
		}

		res, err := esapi.IndicesDeleteRequest{Index: []string{index}}.Do(ctx, a.client)
		if err != nil {
			a.logger.Error("Error deleting index %s: %v", index, err)
			continue
		}
		res.Body.Close()
		if res.IsError() {
			a.logger.Error("Error deleting index %s: %s", index, res.String())
			continue
		}

		a.mu.Lock()
		delete(a.created, index)
		a.mu.Unlock()
		pruned = append(pruned, index)
	}

	return pruned, nil
}

// dumpIndex scrolls through index and writes every document as one JSON line
// to <ArchivePath>/<index>.jsonl.gz
func (a *ElasticsearchArchive) dumpIndex(ctx context.Context, index string) (err error) {
	if err := os.MkdirAll(a.config.ArchivePath, 0755); err != nil {
		return fmt.Errorf("error creating archive directory: %w", err)
	}

	file, err := os.Create(filepath.Join(a.config.ArchivePath, index+".jsonl.gz"))
	if err != nil {
		return fmt.Errorf("error creating archive file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	gz := gzip.NewWriter(file)
	defer func() {
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
	}()

	scroll := time.Minute
	res, err := a.client.Search(
		a.client.Search.WithContext(ctx),
		a.client.Search.WithIndex(index),
		a.client.Search.WithBody(strings.NewReader(`{"query":{"match_all":{}}}`)),
		a.client.Search.WithScroll(scroll),
		a.client.Search.WithSize(a.config.BatchSize),
	)
	if err != nil {
		return fmt.Errorf("error searching for documents: %w", err)
	}

	page, err := decodePage(res)
	if err != nil {
		return err
	}
	scrollID := page.ScrollID
	defer func() {
		if scrollID == "" {
			return
		}
		clearRes, cerr := esapi.ClearScrollRequest{ScrollID: []string{scrollID}}.Do(ctx, a.client)
		if cerr != nil {
			a.logger.Warn("Error clearing scroll: %v", cerr)
			return
		}
		clearRes.Body.Close()
	}()

	for len(page.Hits.Hits) > 0 {
		for _, hit := range page.Hits.Hits {
			if _, err := gz.Write(append(hit.Source, '\n')); err != nil {
				return fmt.Errorf("error writing archive: %w", err)
			}
		}

		res, err := esapi.ScrollRequest{ScrollID: scrollID, Scroll: scroll}.Do(ctx, a.client)
		if err != nil {
			return fmt.Errorf("error scrolling: %w", err)
		}
		page, err = decodePage(res)
		if err != nil {
			return err
		}
		if page.ScrollID != "" {
			scrollID = page.ScrollID
		}
	}

	return nil
}

func decodePage(res *esapi.Response) (*searchResponse, error) {
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error reading documents: %s", res.String())
	}

	var page searchResponse
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("error parsing search response: %w", err)
	}
	return &page, nil
}

// Ping reports whether the cluster answers
func (a *ElasticsearchArchive) Ping(ctx context.Context) error {
	res, err := a.client.Ping(a.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error pinging Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.String())
	}
	return nil
}

// Config returns the archive configuration
func (a *ElasticsearchArchive) Config() Config {
	return *a.config
}
