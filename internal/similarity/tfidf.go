// Package similarity finds, for every text of a batch, its lexically closest other text.
//
// Vectors follow scikit-learn's TfidfVectorizer defaults: lowercase, tokens of two or
// more word characters, raw term counts, smooth idf ln((1+n)/(1+df))+1, L2 rows.
package similarity

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Vector is a sparse L2-normalized row ordered by term index.
type Vector struct {
	idx []int
	val []float64
}

// Norm returns the Euclidean length. Rows out of Vectorize have 1, or 0 when empty.
func (v Vector) Norm() float64 {
	var s float64
	for _, x := range v.val {
		s += x * x
	}
	return math.Sqrt(s)
}

// Tokenize lowercases text and returns its word tokens of at least two characters.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	var out []string
	start := -1
	flush := func(end int) {
		if start >= 0 && utf8.RuneCountInString(text[start:end]) >= 2 {
			out = append(out, text[start:end])
		}
		start = -1
	}
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// Vectorize fits the vocabulary on docs and returns one TF-IDF row per doc.
func Vectorize(docs []string) []Vector {
	counts := make([]map[string]int, len(docs))
	df := map[string]int{}
	for i, d := range docs {
		c := map[string]int{}
		for _, tok := range Tokenize(d) {
			c[tok]++
		}
		for term := range c {
			df[term]++
		}
		counts[i] = c
	}

	vocab := make([]string, 0, len(df))
	for term := range df {
		vocab = append(vocab, term)
	}
	sort.Strings(vocab)
	index := make(map[string]int, len(vocab))
	idf := make([]float64, len(vocab))
	n := float64(len(docs))
	for i, term := range vocab {
		index[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	rows := make([]Vector, len(docs))
	for i, c := range counts {
		v := Vector{idx: make([]int, 0, len(c)), val: make([]float64, 0, len(c))}
		for term := range c {
			v.idx = append(v.idx, index[term])
		}
		sort.Ints(v.idx)
		for _, j := range v.idx {
			v.val = append(v.val, float64(c[vocab[j]])*idf[j])
		}
		if norm := v.Norm(); norm > 0 {
			for k := range v.val {
				v.val[k] /= norm
			}
		}
		rows[i] = v
	}
	return rows
}

// Cosine is the dot product of two normalized rows.
func Cosine(a, b Vector) float64 {
	var s float64
	i, j := 0, 0
	for i < len(a.idx) && j < len(b.idx) {
		switch {
		case a.idx[i] == b.idx[j]:
			s += a.val[i] * b.val[j]
			i++
			j++
		case a.idx[i] < b.idx[j]:
			i++
		default:
			j++
		}
	}
	return s
}

// Match is the closest other document of a batch.
type Match struct {
	Index int
	Score float64
}

// BestMatches returns, per document, the other document with the highest cosine
// similarity; ties go to the lowest index. Batches of fewer than two documents have no
// matches and yield nil.
func BestMatches(docs []string) []Match {
	if len(docs) < 2 {
		return nil
	}
	rows := Vectorize(docs)
	out := make([]Match, len(docs))
	for i := range rows {
		best := Match{Index: -1, Score: math.Inf(-1)}
		for j := range rows {
			if j == i {
				continue
			}
			if s := Cosine(rows[i], rows[j]); s > best.Score {
				best = Match{Index: j, Score: s}
			}
		}
		out[i] = best
	}
	return out
}
