package signature

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
	"github.com/coregx/coregex"
	"gopkg.in/yaml.v3"

	"github.com/nao1215/imgguard/internal/model"
)

//go:embed signatures.yaml
var embeddedSignatures []byte

var (
	// ErrNoSignatures is returned when a signature file defines no entries.
	ErrNoSignatures = errors.New("no signatures defined")

	// ErrInvalidSignature is returned when an entry is missing required fields.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Entry is one named signature.
type Entry struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Pattern  string         `yaml:"pattern"`
	Severity model.Severity `yaml:"severity"`

	// Keywords are lowercase literals; at least one must appear in the
	// lowercased text before Pattern is evaluated.
	Keywords []string `yaml:"keywords,omitempty"`
}

// File is the YAML layout of a signature file.
type File struct {
	Version    string  `yaml:"version"`
	Signatures []Entry `yaml:"signatures"`
}

// compiledEntry pairs an entry with its compiled expression.
type compiledEntry struct {
	Entry
	re *coregex.Regexp

	// mu serializes use of re. The coregex lazy DFA is not safe for
	// concurrent use.
	mu *sync.Mutex
}

// Table is an ordered, compiled set of signatures. It is safe for
// concurrent use.
type Table struct {
	entries []compiledEntry

	matcher   *ahocorasick.Matcher
	matcherMu sync.Mutex

	// keywordIndex maps a keyword position in the matcher to entry indexes.
	keywordIndex map[int][]int

	// unindexed holds entries with no keywords; they are always evaluated.
	unindexed []int
}

// New compiles entries into a Table. Entry order is match priority.
func New(entries []Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, ErrNoSignatures
	}

	t := &Table{
		entries:      make([]compiledEntry, 0, len(entries)),
		keywordIndex: make(map[int][]int),
	}

	var keywords []string
	keywordPos := make(map[string]int)

	for i, e := range entries {
		if e.ID == "" || e.Pattern == "" {
			return nil, fmt.Errorf("%w: entry %d needs id and pattern", ErrInvalidSignature, i)
		}
		if e.Severity == 0 {
			e.Severity = model.SeverityMedium
		}
		if e.Name == "" {
			e.Name = e.ID
		}

		re, err := coregex.Compile(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidSignature, e.ID, err)
		}
		t.entries = append(t.entries, compiledEntry{Entry: e, re: re, mu: &sync.Mutex{}})

		if len(e.Keywords) == 0 {
			t.unindexed = append(t.unindexed, i)
			continue
		}
		for _, kw := range e.Keywords {
			kw = strings.ToLower(kw)
			pos, ok := keywordPos[kw]
			if !ok {
				pos = len(keywords)
				keywords = append(keywords, kw)
				keywordPos[kw] = pos
			}
			t.keywordIndex[pos] = append(t.keywordIndex[pos], i)
		}
	}

	if len(keywords) > 0 {
		t.matcher = ahocorasick.NewStringMatcher(keywords)
	}
	return t, nil
}

// Load parses a YAML signature file and compiles it.
func Load(data []byte) (*Table, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse signature file: %w", err)
	}
	return New(f.Signatures)
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
	errDefault   error
)

// Default returns the built-in signature table.
// It panics if the embedded file is invalid, which is a build defect.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable, errDefault = Load(embeddedSignatures)
	})
	if errDefault != nil {
		panic(fmt.Sprintf("embedded signatures are invalid: %v", errDefault))
	}
	return defaultTable
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the table's entries in priority order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Entry
	}
	return out
}

// Match returns the first entry, in table order, whose pattern matches text.
func (t *Table) Match(text string) (Entry, bool) {
	if text == "" {
		return Entry{}, false
	}

	candidates := t.candidates(text)
	for i, e := range t.entries {
		if !candidates[i] {
			continue
		}
		if e.matches(text) {
			return e.Entry, true
		}
	}
	return Entry{}, false
}

// candidates returns the set of entry indexes worth evaluating for text.
func (t *Table) candidates(text string) map[int]bool {
	set := make(map[int]bool, len(t.unindexed))
	for _, i := range t.unindexed {
		set[i] = true
	}
	if t.matcher == nil {
		return set
	}

	t.matcherMu.Lock()
	hits := t.matcher.Match([]byte(strings.ToLower(text)))
	t.matcherMu.Unlock()

	for _, pos := range hits {
		for _, i := range t.keywordIndex[pos] {
			set[i] = true
		}
	}
	return set
}

func (e compiledEntry) matches(text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.re.FindAll([]byte(text), 1)) > 0
}
