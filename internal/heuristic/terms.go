package heuristic

import "strings"

// NamingParams lists the naming components a term rule may set.
var NamingParams = []string{"acq", "ce", "dir", "rec", "run", "echo"}

// TermRule pairs search terms with the component values they select.
// Terms[i] found in the search string sets Param to Values[i].
type TermRule struct {
	ModalityType  string
	ModalityLabel string
	Task          string
	Param         string
	Terms         []string
	Values        []string
}

// TermMap is the ordered set of term rules built from bids_search and
// bids_map.
type TermMap struct {
	Rules []TermRule
}

// Apply returns the components selected for a file classified as r. Later
// matches of the same parameter win.
func (m TermMap) Apply(r Result, s string) map[string]string {
	out := make(map[string]string)
	if !r.Matched() {
		return out
	}
	lower := strings.ToLower(s)
	for _, rule := range m.Rules {
		if rule.ModalityType != r.ModalityType || rule.ModalityLabel != r.ModalityLabel {
			continue
		}
		if rule.Task != "" && rule.Task != r.Task {
			continue
		}
		for i, term := range rule.Terms {
			if term == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(term)) {
				out[rule.Param] = rule.Values[i]
			}
		}
	}
	return out
}

func validParam(p string) bool {
	for _, n := range NamingParams {
		if n == p {
			return true
		}
	}
	return false
}
