package index

import (
	"math"
	"sort"
	"sync"

	"github.com/goclaw/mnemo/pkg/memory"
)

// BM25 defaults.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// bm25Partition is the corpus of one scope owner. Term statistics never
// leak across partitions.
type bm25Partition struct {
	inverted  map[string]map[string]struct{}
	termFreqs map[string]map[string]int
	docLens   map[string]int
	totalLen  int
}

func newPartition() *bm25Partition {
	return &bm25Partition{
		inverted:  make(map[string]map[string]struct{}),
		termFreqs: make(map[string]map[string]int),
		docLens:   make(map[string]int),
	}
}

func (p *bm25Partition) add(id string, tokens []string) {
	freqs := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freqs[t]++
	}
	p.termFreqs[id] = freqs
	p.docLens[id] = len(tokens)
	p.totalLen += len(tokens)
	for term := range freqs {
		docs := p.inverted[term]
		if docs == nil {
			docs = make(map[string]struct{})
			p.inverted[term] = docs
		}
		docs[id] = struct{}{}
	}
}

func (p *bm25Partition) remove(id string) {
	freqs, ok := p.termFreqs[id]
	if !ok {
		return
	}
	for term := range freqs {
		if docs, ok := p.inverted[term]; ok {
			delete(docs, id)
			if len(docs) == 0 {
				delete(p.inverted, term)
			}
		}
	}
	p.totalLen -= p.docLens[id]
	delete(p.termFreqs, id)
	delete(p.docLens, id)
}

// BM25Index is an in-memory BM25 full-text index partitioned by scope key.
type BM25Index struct {
	mu         sync.RWMutex
	k1, b      float64
	partitions map[memory.ScopeKey]*bm25Partition
	keys       map[string]memory.ScopeKey
}

// NewBM25Index creates an index. Non-positive parameters take defaults.
func NewBM25Index(k1, b float64) *BM25Index {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b < 0 || b > 1 {
		b = DefaultB
	}
	return &BM25Index{
		k1:         k1,
		b:          b,
		partitions: make(map[memory.ScopeKey]*bm25Partition),
		keys:       make(map[string]memory.ScopeKey),
	}
}

// Index adds or replaces a document under key.
func (idx *BM25Index) Index(key memory.ScopeKey, id, content string) {
	tokens := Tokenize(content)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)

	p := idx.partitions[key]
	if p == nil {
		p = newPartition()
		idx.partitions[key] = p
	}
	p.add(id, tokens)
	idx.keys[id] = key
}

// Remove deletes a document.
func (idx *BM25Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *BM25Index) removeLocked(id string) {
	key, ok := idx.keys[id]
	if !ok {
		return
	}
	if p := idx.partitions[key]; p != nil {
		p.remove(id)
		if len(p.docLens) == 0 {
			delete(idx.partitions, key)
		}
	}
	delete(idx.keys, id)
}

// Len returns the number of indexed documents.
func (idx *BM25Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.keys)
}

// Search returns raw BM25 scores for the top limit documents under key.
// Documents that share no term with the query are absent.
func (idx *BM25Index) Search(key memory.ScopeKey, query string, limit int) map[string]float64 {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return map[string]float64{}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	p := idx.partitions[key]
	if p == nil || len(p.docLens) == 0 {
		return map[string]float64{}
	}
	n := float64(len(p.docLens))
	avgDL := float64(p.totalLen) / n
	if avgDL == 0 {
		avgDL = 1
	}

	candidates := make(map[string]struct{})
	for _, t := range tokens {
		for id := range p.inverted[t] {
			candidates[id] = struct{}{}
		}
	}

	type scored struct {
		id    string
		score float64
	}
	results := make([]scored, 0, len(candidates))
	for id := range candidates {
		dl := float64(p.docLens[id])
		freqs := p.termFreqs[id]
		score := 0.0
		for _, t := range tokens {
			tf := float64(freqs[t])
			if tf == 0 {
				continue
			}
			df := float64(len(p.inverted[t]))
			idf := math.Log((n-df+0.5)/(df+0.5) + 1)
			score += idf * tf * (idx.k1 + 1) / (tf + idx.k1*(1-idx.b+idx.b*dl/avgDL))
		}
		if score > 0 {
			results = append(results, scored{id, score})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].id < results[j].id
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	out := make(map[string]float64, len(results))
	for _, r := range results {
		out[r.id] = r.score
	}
	return out
}
