package search

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"

	"github.com/framekeep/framekeep/internal/asset"
)

const (
	docKeyPrefix  = "search:doc:"
	termKeyPrefix = "search:term:"
)

// Document is the denormalized, searchable view of an asset.
type Document struct {
	AssetID     string
	ContentType string
	Place       string
	Labels      []string
	FaceCount   int32
	TakenAt     *time.Time
}

// BuildDocument flattens the indexable asset fields.
func BuildDocument(a *asset.Asset) Document {
	d := Document{
		AssetID:     a.ID.String(),
		ContentType: a.ContentType,
		Labels:      a.Labels,
		TakenAt:     a.TakenAt,
	}
	if a.Place != nil {
		d.Place = *a.Place
	}
	if a.FaceCount != nil {
		d.FaceCount = *a.FaceCount
	}
	return d
}

// Indexer writes documents into Redis: one hash per asset plus a set per
// search term mapping back to asset IDs.
type Indexer struct {
	rdb *redis.Client
}

func NewIndexer(rdb *redis.Client) *Indexer {
	return &Indexer{rdb: rdb}
}

// Index upserts the document. Stale terms from a previous indexing of the
// same asset are removed before the new terms land.
func (i *Indexer) Index(ctx context.Context, doc Document) error {
	docKey := docKeyPrefix + doc.AssetID

	prevTerms, err := i.rdb.SMembers(ctx, docKey+":terms").Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read previous terms: %w", err)
	}

	terms := Tokenize(doc.Place)
	for _, l := range doc.Labels {
		terms = append(terms, Tokenize(l)...)
	}
	terms = dedupe(terms)

	fields := map[string]any{
		"asset_id":     doc.AssetID,
		"content_type": doc.ContentType,
		"place":        doc.Place,
		"labels":       strings.Join(doc.Labels, ","),
		"face_count":   doc.FaceCount,
	}
	if doc.TakenAt != nil {
		fields["taken_at"] = doc.TakenAt.UTC().Format(time.RFC3339)
	}

	pipe := i.rdb.TxPipeline()
	for _, t := range prevTerms {
		pipe.SRem(ctx, termKeyPrefix+t, doc.AssetID)
	}
	pipe.Del(ctx, docKey+":terms")
	pipe.HSet(ctx, docKey, fields)
	for _, t := range terms {
		pipe.SAdd(ctx, termKeyPrefix+t, doc.AssetID)
		pipe.SAdd(ctx, docKey+":terms", t)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	return nil
}

// Remove deletes the document and its term memberships.
func (i *Indexer) Remove(ctx context.Context, assetID string) error {
	docKey := docKeyPrefix + assetID
	terms, err := i.rdb.SMembers(ctx, docKey+":terms").Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read terms: %w", err)
	}

	pipe := i.rdb.TxPipeline()
	for _, t := range terms {
		pipe.SRem(ctx, termKeyPrefix+t, assetID)
	}
	pipe.Del(ctx, docKey, docKey+":terms")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove document: %w", err)
	}
	return nil
}

// Search intersects the term sets for every token in the query.
func (i *Indexer) Search(ctx context.Context, query string) ([]string, error) {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	keys := make([]string, len(tokens))
	for n, t := range tokens {
		keys[n] = termKeyPrefix + t
	}
	ids, err := i.rdb.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return ids, nil
}

// Tokenize lowercases and splits on non-alphanumeric runes, dropping tokens
// shorter than two runes.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
