package matcher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"logfilters/internal/filters"
	"logfilters/pkg/errors"
	"logfilters/pkg/metrics"
)

// Entry is one log line as seen by the matcher.
type Entry struct {
	Tag      string `json:"tag"`
	Message  string `json:"message"`
	PID      string `json:"pid"`
	TID      string `json:"tid"`
	Priority string `json:"priority"`
}

func (e Entry) vars() map[string]interface{} {
	priority := strings.TrimSpace(e.Priority)
	if code, ok := filters.ParseLevel(priority); ok {
		priority = code
	}
	return map[string]interface{}{
		"tag":      e.Tag,
		"message":  e.Message,
		"pid":      strings.TrimSpace(e.PID),
		"tid":      strings.TrimSpace(e.TID),
		"priority": priority,
	}
}

var kindExpressions = map[filters.Kind]string{
	filters.KindKeyword:   `entry.message.lowerAscii().contains(value.lowerAscii())`,
	filters.KindTag:       `entry.tag.lowerAscii().contains(value.lowerAscii())`,
	filters.KindProcessID: `entry.pid == value`,
	filters.KindThreadID:  `entry.tid == value`,
	filters.KindLogLevels: `entry.priority in values`,
}

var programs = sync.OnceValues(compilePrograms)

func compilePrograms() (map[filters.Kind]cel.Program, error) {
	env, err := cel.NewEnv(
		ext.Strings(),
		cel.Variable("entry", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("value", cel.StringType),
		cel.Variable("values", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	out := make(map[filters.Kind]cel.Program, len(kindExpressions))
	for kind, expr := range kindExpressions {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile %s expression: %w", kind, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("%s expression must return bool, got %v", kind, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s program: %w", kind, err)
		}
		out[kind] = program
	}
	return out, nil
}

type rule struct {
	record  filters.Record
	program cel.Program
	values  []string
}

func (r rule) matches(ctx context.Context, entry map[string]interface{}) (bool, error) {
	result, _, err := r.program.ContextEval(ctx, map[string]interface{}{
		"entry":  entry,
		"value":  strings.TrimSpace(r.record.Content),
		"values": r.values,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %s: %w", r.record.ID, err)
	}
	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %s did not return bool, got %T", r.record.ID, result.Value())
	}
	return matched, nil
}

// Matcher decides whether log entries pass a set of inclusion and
// exclusion filters. It is immutable and safe for concurrent use.
type Matcher struct {
	inclusions []rule
	exclusions []rule
}

// New compiles the records of both partitions. A record of unknown kind
// fails the whole set with ErrInvalidState.
func New(inclusions, exclusions []filters.Record) (*Matcher, error) {
	progs, err := programs()
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}

	build := func(records []filters.Record) ([]rule, error) {
		rules := make([]rule, 0, len(records))
		for _, r := range records {
			program, ok := progs[r.Kind]
			if !ok {
				return nil, errors.ErrInvalidState.
					WithDetail("message", fmt.Sprintf("unknown filter kind %q", r.Kind)).
					WithDetail("record_id", r.ID)
			}
			rules = append(rules, rule{record: r, program: program, values: levelValues(r)})
		}
		return rules, nil
	}

	m := &Matcher{}
	if m.inclusions, err = build(inclusions); err != nil {
		return nil, err
	}
	if m.exclusions, err = build(exclusions); err != nil {
		return nil, err
	}
	return m, nil
}

func levelValues(r filters.Record) []string {
	if r.Kind != filters.KindLogLevels {
		return []string{}
	}
	values := make([]string, 0)
	for _, element := range filters.SplitLevels(r.Content) {
		if code, ok := filters.ParseLevel(element); ok {
			values = append(values, code)
		}
	}
	return values
}

// Decision explains a match result. Rule is the record that decided it,
// nil when the entry passed because there are no inclusions or was dropped
// because no inclusion matched.
type Decision struct {
	Matched bool            `json:"matched"`
	Reason  string          `json:"reason"`
	Rule    *filters.Record `json:"rule,omitempty"`
}

const (
	ReasonExcluded    = "excluded"
	ReasonIncluded    = "included"
	ReasonNoInclusion = "no_inclusion_matched"
	ReasonPassThrough = "no_inclusions"
)

// Decide passes an entry when no exclusion matches and either there are no
// inclusions or at least one of them matches.
func (m *Matcher) Decide(ctx context.Context, entry Entry) (Decision, error) {
	vars := entry.vars()

	for i := range m.exclusions {
		matched, err := m.exclusions[i].matches(ctx, vars)
		if err != nil {
			return Decision{}, err
		}
		if matched {
			rec := m.exclusions[i].record
			return m.observe(Decision{Matched: false, Reason: ReasonExcluded, Rule: &rec}), nil
		}
	}

	if len(m.inclusions) == 0 {
		return m.observe(Decision{Matched: true, Reason: ReasonPassThrough}), nil
	}

	for i := range m.inclusions {
		matched, err := m.inclusions[i].matches(ctx, vars)
		if err != nil {
			return Decision{}, err
		}
		if matched {
			rec := m.inclusions[i].record
			return m.observe(Decision{Matched: true, Reason: ReasonIncluded, Rule: &rec}), nil
		}
	}

	return m.observe(Decision{Matched: false, Reason: ReasonNoInclusion}), nil
}

func (m *Matcher) Match(ctx context.Context, entry Entry) (bool, error) {
	d, err := m.Decide(ctx, entry)
	return d.Matched, err
}

func (m *Matcher) observe(d Decision) Decision {
	metrics.IncFilterMatch(d.Reason)
	return d
}
