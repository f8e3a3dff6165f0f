package intake

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teranos/airlock/logger"
	"github.com/teranos/airlock/scrub"
)

// Batch is the outcome of validating one raw agent output stream.
// Items holds accepted records in file order; Errors holds every
// diagnostic in encounter order. A batch with errors is still usable;
// nothing in it aborts the run.
type Batch struct {
	Items  []Message
	Errors []string
}

// Parse validates newline-delimited agent output against the run's
// schema registry. Each line is independent: blank lines are skipped,
// a line failing strict decode gets one lenient repair and one retry,
// and any line still unusable is diagnosed and dropped without
// touching its neighbors.
func Parse(raw string, reg *Registry, scr *scrub.Scrubber) *Batch {
	b := &Batch{}
	accepted := make(map[string]int)

	for i, line := range strings.Split(raw, "\n") {
		n := i + 1
		if strings.TrimSpace(line) == "" {
			continue
		}

		record, err := decodeLine(line)
		if err != nil {
			b.addError("line %d: %v", n, err)
			continue
		}

		typeName, ok := record["type"].(string)
		if !ok || strings.TrimSpace(typeName) == "" {
			b.addError(`line %d: record has no "type" field`, n)
			continue
		}
		typeName = strings.TrimSpace(typeName)

		schema, ok := reg.Lookup(typeName)
		if !ok {
			b.addError("line %d: unexpected action type %q", n, typeName)
			continue
		}

		msg, warnings, err := schema.Validate(n, record, scr)
		for _, w := range warnings {
			b.addError("line %d: %s", n, w)
		}
		if err != nil {
			b.addError("line %d: %v", n, err)
			continue
		}

		if schema.Max > 0 && accepted[typeName] >= schema.Max {
			b.addError("line %d: too many %s messages (max %d)", n, typeName, schema.Max)
			continue
		}
		accepted[typeName]++
		b.Items = append(b.Items, *msg)
	}

	// Minimums are checked over the whole batch, after every line had
	// its chance to contribute.
	for _, t := range reg.Types() {
		schema, _ := reg.Lookup(t)
		if schema.Min > 0 && accepted[t] < schema.Min {
			b.addError("too few %s messages (min %d, got %d)", t, schema.Min, accepted[t])
		}
	}

	logger.IntakeInfow("Validated agent output",
		logger.FieldBatchSize, len(b.Items),
		"diagnostics", len(b.Errors),
	)
	return b
}

// Accepted returns the accepted records of one type, in file order.
func (b *Batch) Accepted(actionType string) []Message {
	var out []Message
	for _, m := range b.Items {
		if m.Type == actionType {
			out = append(out, m)
		}
	}
	return out
}

func (b *Batch) addError(format string, args ...any) {
	b.Errors = append(b.Errors, fmt.Sprintf(format, args...))
}

// decodeLine strict-decodes one line, repairing once on failure. The
// decoded value must be a JSON object.
func decodeLine(line string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(line), &v); err != nil {
		repaired, rerr := Repair(line)
		if rerr != nil {
			return nil, fmt.Errorf("parsing failed: %v", rerr)
		}
		if err := json.Unmarshal([]byte(repaired), &v); err != nil {
			return nil, fmt.Errorf("parsing failed: %v", err)
		}
	}
	record, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record is not an object")
	}
	return record, nil
}
