package postgres

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/medscanlab/neuroscan/internal/core/ports"
)

// builder accumulates positional statement arguments.
type builder struct {
	args []any
}

func (b *builder) bind(value any) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) bindJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal json argument: %w", err)
	}
	return b.bind(string(data)) + "::jsonb", nil
}

var pathSegment = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// pgPath renders a dotted document path as a Postgres text[] literal.
// Paths come from code, never from callers, but are still validated so a
// bad refactor cannot smuggle SQL into a path literal.
func pgPath(path string) (string, error) {
	segments := strings.Split(path, ".")
	for _, segment := range segments {
		if !pathSegment.MatchString(segment) {
			return "", fmt.Errorf("invalid document path %q", path)
		}
	}
	return "'{" + strings.Join(segments, ",") + "}'", nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// filterSQL renders filter as a conjunction over the jsonb column named by
// base ("doc" for documents, "elem" inside array scans).
func filterSQL(b *builder, base string, filter ports.Filter) (string, error) {
	var conditions []string

	for _, path := range sortedKeys(filter.Eq) {
		literal, err := pgPath(path)
		if err != nil {
			return "", err
		}
		arg, err := b.bindJSON(filter.Eq[path])
		if err != nil {
			return "", err
		}
		conditions = append(conditions, fmt.Sprintf("%s #> %s = %s", base, literal, arg))
	}

	for _, path := range sortedKeys(filter.Elem) {
		literal, err := pgPath(path)
		if err != nil {
			return "", err
		}
		inner, err := filterSQL(b, "elem", filter.Elem[path])
		if err != nil {
			return "", err
		}
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements(coalesce(%s #> %s, '[]'::jsonb)) AS el(elem) WHERE %s)",
			base, literal, inner,
		))
	}

	if len(conditions) == 0 {
		return "TRUE", nil
	}
	return strings.Join(conditions, " AND "), nil
}

// setChain chains jsonb_set calls for each dotted path onto expr.
func setChain(b *builder, expr string, set map[string]any) (string, error) {
	for _, path := range sortedKeys(set) {
		literal, err := pgPath(path)
		if err != nil {
			return "", err
		}
		arg, err := b.bindJSON(set[path])
		if err != nil {
			return "", err
		}
		expr = fmt.Sprintf("jsonb_set(%s, %s, %s, true)", expr, literal, arg)
	}
	return expr, nil
}

// updateSQL renders update as a single jsonb expression over the current
// doc. The paths touched by distinct operations must not overlap within one
// Update; every mutation the handlers and the orchestrator perform honors
// that.
func updateSQL(b *builder, update ports.Update) (string, error) {
	expr, err := setChain(b, "doc", update.Set)
	if err != nil {
		return "", err
	}

	for _, path := range sortedKeys(update.Push) {
		literal, err := pgPath(path)
		if err != nil {
			return "", err
		}
		arg, err := b.bindJSON(update.Push[path])
		if err != nil {
			return "", err
		}
		expr = fmt.Sprintf(
			"jsonb_set(%s, %s, coalesce(doc #> %s, '[]'::jsonb) || %s, true)",
			expr, literal, literal, arg,
		)
	}

	for _, path := range sortedKeys(update.Pull) {
		literal, err := pgPath(path)
		if err != nil {
			return "", err
		}
		match, err := filterSQL(b, "elem", update.Pull[path])
		if err != nil {
			return "", err
		}
		expr = fmt.Sprintf(
			"jsonb_set(%s, %s, (SELECT coalesce(jsonb_agg(elem ORDER BY ord), '[]'::jsonb) "+
				"FROM jsonb_array_elements(coalesce(doc #> %s, '[]'::jsonb)) WITH ORDINALITY AS el(elem, ord) "+
				"WHERE NOT (%s)), true)",
			expr, literal, literal, match,
		)
	}

	for _, matched := range update.SetMatched {
		literal, err := pgPath(matched.Array)
		if err != nil {
			return "", err
		}
		match, err := filterSQL(b, "elem", matched.Match)
		if err != nil {
			return "", err
		}
		elemExpr, err := setChain(b, "elem", matched.Set)
		if err != nil {
			return "", err
		}
		expr = fmt.Sprintf(
			"jsonb_set(%s, %s, (SELECT coalesce(jsonb_agg(CASE WHEN %s THEN %s ELSE elem END ORDER BY ord), '[]'::jsonb) "+
				"FROM jsonb_array_elements(coalesce(doc #> %s, '[]'::jsonb)) WITH ORDINALITY AS el(elem, ord)), true)",
			expr, literal, match, elemExpr, literal,
		)
	}

	return expr, nil
}
