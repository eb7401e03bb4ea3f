// Package heuristic holds the study's classification rules: the modality
// search dictionary, the optional naming term map, and the exclusion list.
package heuristic

import (
	"errors"
	"strings"
)

// ErrConfig marks a malformed study configuration. It is fatal for a run.
var ErrConfig = errors.New("heuristic: invalid configuration")

// Entry is one leaf of the search dictionary. It is either a SimpleEntry or
// a TaskedEntry.
type Entry interface {
	Label() string
	Task() string
	Substrings() []string
	isEntry()
}

// SimpleEntry maps a modality label directly to its search terms.
type SimpleEntry struct {
	ModalityLabel string
	Terms         []string
}

func (e SimpleEntry) Label() string        { return e.ModalityLabel }
func (e SimpleEntry) Task() string         { return "" }
func (e SimpleEntry) Substrings() []string { return e.Terms }
func (SimpleEntry) isEntry()               {}

// TaskedEntry maps a modality label and a task name to search terms.
type TaskedEntry struct {
	ModalityLabel string
	TaskName      string
	Terms         []string
}

func (e TaskedEntry) Label() string        { return e.ModalityLabel }
func (e TaskedEntry) Task() string         { return e.TaskName }
func (e TaskedEntry) Substrings() []string { return e.Terms }
func (TaskedEntry) isEntry()               {}

// Branch groups the entries of one modality type in configuration order.
type Branch struct {
	ModalityType string
	Entries      []Entry
}

// Tasked reports whether the branch holds tasked entries.
func (b Branch) Tasked() bool {
	if len(b.Entries) == 0 {
		return false
	}
	_, ok := b.Entries[0].(TaskedEntry)
	return ok
}

// SearchDictionary is the ordered modality search tree.
type SearchDictionary struct {
	Branches []Branch
}

// Validate checks that every branch is uniform and every leaf has terms.
func (d SearchDictionary) Validate() error {
	if len(d.Branches) == 0 {
		return errorf("modality_search has no modality types")
	}
	for _, b := range d.Branches {
		if b.ModalityType == "" {
			return errorf("modality_search has an empty modality type")
		}
		if len(b.Entries) == 0 {
			return errorf("modality type %q has no labels", b.ModalityType)
		}
		tasked := b.Tasked()
		for _, e := range b.Entries {
			if _, ok := e.(TaskedEntry); ok != tasked {
				return errorf("modality type %q mixes tasked and untasked labels", b.ModalityType)
			}
			if e.Label() == "" {
				return errorf("modality type %q has an empty label", b.ModalityType)
			}
			if len(e.Substrings()) == 0 {
				return errorf("label %q of %q has no search terms", e.Label(), b.ModalityType)
			}
		}
	}
	return nil
}

// ListInSubstr reports whether any of terms occurs in s, ignoring case.
func ListInSubstr(terms []string, s string) bool {
	lower := strings.ToLower(s)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
