package stream

import (
	"errors"
	"net/url"
	"strconv"

	"github.com/rzbill/strom/internal/persistence"
)

// JSONFlavor selects how entries are rendered on the HTTP wire.
type JSONFlavor int

const (
	// FlavorCurrent renders `{"index":I,"us":U}\t<entry>` per line.
	FlavorCurrent JSONFlavor = iota
	// FlavorMinimalistic renders the bare entry per line (json=js).
	FlavorMinimalistic
	// FlavorNewtonsoftFSharp renders `{"Case":...,"Fields":[<entry>]}` per
	// line (json=fs).
	FlavorNewtonsoftFSharp
)

var errBadJSONFlavor = errors.New("the `json` parameter is invalid, legal values are `js`, `fs`, or omit the parameter")

// RequestParams are the recognized query options of the pub/sub endpoint.
type RequestParams struct {
	BeginIndex uint64 // i: starting index
	Count      uint64 // n: max entries to deliver then close; 0 = unlimited

	Tail        uint64
	TailSet     bool
	TailFromEnd bool // tail=-1: start from the current end

	Recent persistence.Micros // window relative to now
	Since  persistence.Micros // absolute lower bound on entry us

	NoWait   bool
	SizeOnly bool

	SchemaRequested bool
	SchemaFormat    string

	TerminateRequested bool
	TerminateID        string

	Flavor JSONFlavor
	Filter string
}

// parsePubSubParams extracts RequestParams from the query string. Unknown
// keys are ignored; only a bad `json` value is an error.
func parsePubSubParams(q url.Values) (RequestParams, error) {
	var p RequestParams

	if v := q.Get("i"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			p.BeginIndex = n
		}
	}
	if v := q.Get("n"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			p.Count = n
		}
	}
	if v := q.Get("tail"); v != "" {
		if v == "-1" {
			p.TailSet = true
			p.TailFromEnd = true
		} else if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			p.TailSet = true
			p.Tail = n
		}
	}
	if v := q.Get("recent"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			p.Recent = persistence.Micros(n)
		}
	}
	if v := q.Get("since"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			p.Since = persistence.Micros(n)
		}
	}
	p.NoWait = boolParam(q, "nowait", "no_wait")
	p.SizeOnly = boolParam(q, "sizeonly", "size_only")

	if q.Has("schema") {
		p.SchemaRequested = true
		p.SchemaFormat = q.Get("schema_format")
	}
	if q.Has("terminate") {
		p.TerminateRequested = true
		p.TerminateID = q.Get("terminate")
	}
	switch q.Get("json") {
	case "":
		p.Flavor = FlavorCurrent
	case "js":
		p.Flavor = FlavorMinimalistic
	case "fs":
		p.Flavor = FlavorNewtonsoftFSharp
	default:
		return p, errBadJSONFlavor
	}
	p.Filter = q.Get("filter")
	return p, nil
}

// boolParam accepts "1", "true", and a bare key (present with empty value)
// under any of the given spellings.
func boolParam(q url.Values, keys ...string) bool {
	for _, k := range keys {
		if !q.Has(k) {
			continue
		}
		switch q.Get(k) {
		case "", "1", "true":
			return true
		}
	}
	return false
}
