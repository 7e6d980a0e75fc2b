package library

import (
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/fieldwise/farmhand/internal/advisor"
	"github.com/fieldwise/farmhand/utils"
)

const defaultHits = 10

// Index is an in-memory full-text index over the reference library, rebuilt
// from the store at boot and extended as documents register. It serves the
// operator search endpoint only; answer retrieval ranks fragments itself.
type Index struct {
	mu    sync.RWMutex
	bleve bleve.Index
	meta  map[string]advisor.Fragment
}

// Hit is one search result with enough context to open the fragment.
type Hit struct {
	FragmentID string  `json:"fragment_id"`
	DocumentID string  `json:"document_id"`
	Document   string  `json:"document"`
	Seq        int     `json:"seq"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
}

func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Index{bleve: idx, meta: make(map[string]advisor.Fragment)}, nil
}

// Add indexes one fragment. Re-adding the same fragment ID replaces it.
func (ix *Index) Add(f advisor.Fragment) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.meta[f.ID] = f
	return ix.bleve.Index(f.ID, indexDoc(f))
}

// Rebuild swaps in a fresh index holding exactly the given fragments.
func (ix *Index) Rebuild(fragments []advisor.Fragment) error {
	fresh, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return err
	}
	meta := make(map[string]advisor.Fragment, len(fragments))
	for _, f := range fragments {
		meta[f.ID] = f
		if err := fresh.Index(f.ID, indexDoc(f)); err != nil {
			return err
		}
	}
	ix.mu.Lock()
	ix.bleve = fresh
	ix.meta = meta
	ix.mu.Unlock()
	return nil
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.meta)
}

// Search runs a query-string search and returns up to k hits.
func (ix *Index) Search(q string, k int) ([]Hit, error) {
	if k <= 0 {
		k = defaultHits
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k*3, 0, false)
	res, err := ix.bleve.Search(req)
	if err != nil {
		return nil, err
	}
	var out []Hit
	for i, hit := range res.Hits {
		f, ok := ix.meta[hit.ID]
		if !ok {
			continue
		}
		out = append(out, Hit{
			FragmentID: f.ID,
			DocumentID: f.DocumentID,
			Document:   f.Document,
			Seq:        f.Seq,
			Snippet:    utils.Truncate(f.Text, 240),
			Score:      hit.Score,
			Rank:       i + 1,
		})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func indexDoc(f advisor.Fragment) map[string]string {
	return map[string]string{
		"document": f.Document,
		"content":  f.Text,
	}
}
