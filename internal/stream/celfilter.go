package stream

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/strom/internal/persistence"
)

// entryFilter wraps a compiled CEL program evaluated against each entry
// before it is written to an HTTP subscriber. When disabled, Eval always
// returns true.
type entryFilter struct {
	prog    cel.Program
	enabled bool
}

func newEntryFilter(expr string) (entryFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return entryFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("index", cel.IntType),
		cel.Variable("us", cel.IntType),
		cel.Variable("now_us", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed entry JSON (map/list/values) for field filtering
		cel.Variable("json", cel.DynType),
	)
	if err != nil {
		return entryFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return entryFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return entryFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return entryFilter{}, err
	}
	return entryFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the expression against one encoded entry. When disabled,
// returns true; an evaluation error counts as no match.
func (f entryFilter) Eval(index uint64, us persistence.Micros, payload []byte) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(payload, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"index":  int64(index),
		"us":     int64(us),
		"now_us": time.Now().UnixMicro(),
		"text":   string(payload),
		"json":   jsonObj,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
