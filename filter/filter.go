// Package filter normalizes subscribe-time criteria (from/to/broadcast)
// into matchers and evaluates them against an inbound header.
package filter

import "regexp"

// Kind tags a matcher as an exact string or a compiled pattern.
type Kind int

const (
	KindExact Kind = iota
	KindPattern
)

// Matcher is a single criterion element: either an exact string or a
// compiled regular expression.
type Matcher struct {
	Kind    Kind
	Value   string
	Pattern *regexp.Regexp
}

// Matches reports whether the matcher accepts the given value.
func (m Matcher) Matches(value string) bool {
	switch m.Kind {
	case KindExact:
		return m.Value == value
	case KindPattern:
		return m.Pattern.MatchString(value)
	default:
		return false
	}
}

// Exact builds an exact-string matcher.
func Exact(s string) Matcher { return Matcher{Kind: KindExact, Value: s} }

// Pattern builds a compiled-pattern matcher.
func Pattern(re *regexp.Regexp) Matcher { return Matcher{Kind: KindPattern, Pattern: re} }

// Filter is the normalized subscribe-time criteria.
type Filter struct {
	From         []Matcher
	To           []Matcher
	Broadcast    bool
	hasTo        bool
	hasBroadcast bool
}

// HasTo reports whether a `to` criterion was supplied.
func (f Filter) HasTo() bool { return f.hasTo }

// HasBroadcast reports whether a `broadcast` criterion was supplied.
func (f Filter) HasBroadcast() bool { return f.hasBroadcast }

// Criteria is the raw, unnormalized subscribe-time input. Each of From and
// To may be nil, a single string, a *regexp.Regexp, a []string, a
// []*regexp.Regexp, or a []interface{} mixing strings and *regexp.Regexp. Broadcast is a *bool so "not supplied" can be
// distinguished from "supplied as false".
type Criteria struct {
	From      interface{}
	To        interface{}
	Broadcast *bool
}

// InvalidFilterError is raised when a filter element is not an exact
// string, a compiled pattern, or a slice of such.
type InvalidFilterError struct {
	Field string
	Value interface{}
}

func (e *InvalidFilterError) Error() string {
	return "filter: invalid element for " + e.Field
}

// Normalize validates and converts raw subscribe-time Criteria into a
// Filter. Invalid elements raise *InvalidFilterError immediately, at
// subscribe time rather than being deferred to dispatch.
func Normalize(c Criteria) (Filter, error) {
	f := Filter{}

	if c.From != nil {
		matchers, err := toMatchers("from", c.From)
		if err != nil {
			return Filter{}, err
		}
		f.From = matchers
	}

	if c.To != nil {
		matchers, err := toMatchers("to", c.To)
		if err != nil {
			return Filter{}, err
		}
		f.To = matchers
		f.hasTo = true
	}

	if c.Broadcast != nil {
		f.Broadcast = *c.Broadcast
		f.hasBroadcast = true
	}

	return f, nil
}

func toMatchers(field string, raw interface{}) ([]Matcher, error) {
	switch v := raw.(type) {
	case string:
		return []Matcher{Exact(v)}, nil
	case *regexp.Regexp:
		return []Matcher{Pattern(v)}, nil
	case []string:
		out := make([]Matcher, 0, len(v))
		for _, s := range v {
			out = append(out, Exact(s))
		}
		return out, nil
	case []*regexp.Regexp:
		out := make([]Matcher, 0, len(v))
		for _, re := range v {
			out = append(out, Pattern(re))
		}
		return out, nil
	case []interface{}:
		out := make([]Matcher, 0, len(v))
		for _, elem := range v {
			switch e := elem.(type) {
			case string:
				out = append(out, Exact(e))
			case *regexp.Regexp:
				out = append(out, Pattern(e))
			default:
				return nil, &InvalidFilterError{Field: field, Value: elem}
			}
		}
		return out, nil
	default:
		return nil, &InvalidFilterError{Field: field, Value: raw}
	}
}

// Header is the minimal view of a message header the evaluator needs: a
// `from` string and an optional `to` (nil denotes broadcast). Defined here
// rather than imported from package header to keep filter leaf-level and
// dependency-free.
type Header struct {
	From string
	To   *string
}

func anyMatch(matchers []Matcher, value string) bool {
	for _, m := range matchers {
		if m.Matches(value) {
			return true
		}
	}
	return false
}

// Match evaluates the filter against an incoming header using the
// following from/to/broadcast combination rules:
//
//	no criteria at all                  -> match (legacy unfiltered subscription)
//	from only                           -> from
//	to only (broadcast absent)          -> from AND to
//	broadcast only (to absent)          -> from AND broadcast-match
//	both to and broadcast               -> from AND (to OR broadcast-match)
//
// from is always present as an AND term; when From is unset it is treated
// as always-true (an unrestricted sender).
func Match(f Filter, h Header) bool {
	fromOK := true
	if len(f.From) > 0 {
		fromOK = anyMatch(f.From, h.From)
	}
	if !fromOK {
		return false
	}

	if !f.hasTo && !f.hasBroadcast {
		return true
	}

	toOK := h.To != nil && anyMatch(f.To, *h.To)
	broadcastOK := f.Broadcast && h.To == nil

	switch {
	case f.hasTo && !f.hasBroadcast:
		return toOK
	case f.hasBroadcast && !f.hasTo:
		return broadcastOK
	default: // both present
		return toOK || broadcastOK
	}
}
