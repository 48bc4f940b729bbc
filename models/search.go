package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/vectorsearch/listings/app/database"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// DefaultSearchJob is the vectorize job the products table is registered under.
	DefaultSearchJob = "product_search_openai"
	// MaxSearchResults caps every search.
	MaxSearchResults = 10
	// DefaultTransformer is the embedding model used when registering the job.
	DefaultTransformer = "openai/text-embedding-3-small"
)

// SearchColumns is the projection requested from the search function, in order.
var SearchColumns = []string{"id", "title", "description", "category", "price", "brand", "condition", "color"}

// EmbeddedColumns are the columns the search job embeds.
var EmbeddedColumns = []string{"title", "description", "category", "brand", "condition", "color"}

var (
	// ErrRankingFunction is returned when the search function itself fails or
	// returns rows that cannot be read.
	ErrRankingFunction = errors.New("ranking function failed")
	// ErrEmptyQuery is returned for blank queries; callers list instead.
	ErrEmptyQuery = errors.New("search query is empty")
)

const searchQuery = `SELECT search_results FROM vectorize.search(
	job_name => ?,
	query => ?,
	return_columns => ?,
	num_results => ?
)`

const createJobQuery = `SELECT vectorize.table(
	job_name => ?,
	"table" => ?,
	primary_key => ?,
	columns => ?,
	transformer => ?,
	schedule => ?
)`

type searchRow struct {
	SearchResults datatypes.JSON `gorm:"column:search_results"`
}

// searchEnvelope is one search_results object as produced by the function.
type searchEnvelope struct {
	ID              uint            `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	Price           json.RawMessage `json:"price"`
	Brand           string          `json:"brand"`
	Condition       string          `json:"condition"`
	Color           string          `json:"color"`
	SimilarityScore *float64        `json:"similarity_score"`
}

// Searcher delegates semantic search to the vectorize extension. It does no
// ranking or filtering of its own.
type Searcher struct {
	conn    Connector
	jobName string
}

func NewSearcher(conn Connector, jobName string) *Searcher {
	if jobName == "" {
		jobName = DefaultSearchJob
	}
	return &Searcher{
		conn:    conn,
		jobName: jobName,
	}
}

// Search forwards query verbatim to the search function and returns at most
// MaxSearchResults results in the order the function ranked them.
func (s *Searcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	var rows []searchRow
	if err := s.conn.WithConn(ctx, func(tx *gorm.DB) error {
		return tx.Raw(searchQuery, s.jobName, query, pq.Array(SearchColumns), MaxSearchResults).
			Scan(&rows).Error
	}); err != nil {
		if errors.Is(err, database.ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRankingFunction, err)
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		if len(results) == MaxSearchResults {
			break
		}
		result, err := decodeSearchResult(row.SearchResults)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRankingFunction, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// CreateSearchJob registers the products table with the vectorize extension
// so that it maintains embeddings for EmbeddedColumns.
func (s *Searcher) CreateSearchJob(ctx context.Context, transformer string) error {
	if transformer == "" {
		transformer = DefaultTransformer
	}

	return s.conn.WithConn(ctx, func(tx *gorm.DB) error {
		return tx.Exec(createJobQuery,
			s.jobName,
			(&Product{}).TableName(),
			"id",
			pq.Array(EmbeddedColumns),
			transformer,
			"realtime",
		).Error
	})
}

func decodeSearchResult(raw []byte) (SearchResult, error) {
	if len(raw) == 0 {
		return SearchResult{}, errors.New("empty search_results envelope")
	}

	var env searchEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return SearchResult{}, fmt.Errorf("failed to decode search_results: %w", err)
	}

	price, err := textValue(env.Price)
	if err != nil {
		return SearchResult{}, fmt.Errorf("failed to decode price: %w", err)
	}

	result := SearchResult{
		Product: Product{
			ID:          env.ID,
			Title:       env.Title,
			Description: env.Description,
			Category:    env.Category,
			Price:       price,
			Brand:       env.Brand,
			Condition:   env.Condition,
			Color:       env.Color,
		},
	}
	if env.SimilarityScore != nil {
		result.SimilarityScore = *env.SimilarityScore
	}
	return result, nil
}

// textValue accepts a JSON string or a bare JSON number and returns its text.
func textValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
