package heuristic

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Result is the outcome of classifying a search string.
type Result struct {
	ModalityType  string
	ModalityLabel string
	Task          string
}

// Matched reports whether classification found a modality.
func (r Result) Matched() bool {
	return r.ModalityType != ""
}

// Classify returns the first entry, in configuration order, with a search
// term contained in s. The zero Result means no match.
func (d SearchDictionary) Classify(s string) Result {
	for _, b := range d.Branches {
		for _, e := range b.Entries {
			if ListInSubstr(e.Substrings(), s) {
				return Result{
					ModalityType:  b.ModalityType,
					ModalityLabel: e.Label(),
					Task:          e.Task(),
				}
			}
		}
	}
	return Result{}
}

// HeaderSource supplies header strings to search when the file path alone
// does not classify a file. Strings are tried in the returned order.
type HeaderSource interface {
	SearchStrings() []string
}

// Classifier applies a study configuration to source files.
type Classifier struct {
	cfg    *Config
	logger *zap.Logger
}

// NewClassifier builds a classifier over cfg. A nil logger is replaced by a
// no-op logger.
func NewClassifier(cfg *Config, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{cfg: cfg, logger: logger}
}

// Identify classifies path. The path relative to studyRoot is searched
// first; header strings from hdr are the fallback.
func (c *Classifier) Identify(path, studyRoot string, hdr HeaderSource) Result {
	search := StripRoot(path, studyRoot)
	if r := c.cfg.Search.Classify(search); r.Matched() {
		c.logger.Debug("classified by path",
			zap.String("path", search),
			zap.String("type", r.ModalityType),
			zap.String("label", r.ModalityLabel))
		return r
	}

	if hdr == nil {
		return Result{}
	}
	for _, s := range hdr.SearchStrings() {
		if s == "" {
			continue
		}
		if r := c.cfg.Search.Classify(s); r.Matched() {
			c.logger.Debug("classified by header",
				zap.String("path", search),
				zap.String("field", s),
				zap.String("type", r.ModalityType),
				zap.String("label", r.ModalityLabel))
			return r
		}
	}
	return Result{}
}

// Components returns the naming components the term map assigns to a file
// classified as r whose search string is s.
func (c *Classifier) Components(r Result, s string) map[string]string {
	return c.cfg.Terms.Apply(r, s)
}

// Excluded reports whether path matches any exclusion term.
func (c *Classifier) Excluded(path string) bool {
	return c.cfg.Excluded(path)
}

// StripRoot removes the study root prefix from path.
func StripRoot(path, root string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
