// Package scrmsg implements the text wire format spoken by the SCR racing
// server: a run of parenthesised groups, each holding a key followed by its
// space separated values, e.g. "(angle 0.01)(track 5.2 5.3)".
package scrmsg

import (
	"strconv"
	"strings"
)

// Lifecycle sentinels sent by the server outside of any group.
const (
	Identified = "***identified***"
	Shutdown   = "***shutdown***"
	Restart    = "***restart***"
)

// Message is a decoded wire message keyed by group name. Values are kept
// verbatim; use the typed accessors to coerce them.
type Message map[string][]string

// Parse splits raw into its groups. It never fails: an unterminated group
// ends parsing and groups without values are skipped, so malformed input
// yields a partial (possibly empty) message.
func Parse(raw string) Message {
	msg := Message{}
	for {
		start := strings.IndexByte(raw, '(')
		if start < 0 {
			return msg
		}
		end := strings.IndexByte(raw[start:], ')')
		if end < 0 {
			return msg
		}
		end += start
		items := strings.Fields(raw[start+1 : end])
		if len(items) >= 2 {
			msg[items[0]] = items[1:]
		}
		raw = raw[end+1:]
	}
}

// Has reports whether the message carries the key.
func (m Message) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Float returns the first value of key. The second result is false when the
// key is absent; a present but unparseable value reads as 0.
func (m Message) Float(key string) (float64, bool) {
	vals, ok := m[key]
	if !ok || len(vals) == 0 {
		return 0, false
	}
	return parseOrZero(vals[0]), true
}

// Floats returns exactly n values for key, padding missing trailing values
// with 0 and dropping any extra ones.
func (m Message) Floats(key string, n int) ([]float64, bool) {
	vals, ok := m[key]
	if !ok {
		return nil, false
	}
	out := make([]float64, n)
	for i := 0; i < n && i < len(vals); i++ {
		out[i] = parseOrZero(vals[i])
	}
	return out, true
}

func parseOrZero(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// Group is a single key and its values, ready for encoding.
type Group struct {
	Key    string
	Values []string
}

// Floats builds a group of decimal values.
func Floats(key string, vs ...float64) Group {
	g := Group{Key: key, Values: make([]string, len(vs))}
	for i, v := range vs {
		g.Values[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return g
}

// Ints builds a group of integer values.
func Ints(key string, vs ...int) Group {
	g := Group{Key: key, Values: make([]string, len(vs))}
	for i, v := range vs {
		g.Values[i] = strconv.Itoa(v)
	}
	return g
}

// Strings builds a group of raw values.
func Strings(key string, vs ...string) Group {
	return Group{Key: key, Values: vs}
}

// Stringify encodes groups in the order given.
func Stringify(groups ...Group) string {
	var b strings.Builder
	for _, g := range groups {
		b.WriteByte('(')
		b.WriteString(g.Key)
		for _, v := range g.Values {
			b.WriteByte(' ')
			b.WriteString(v)
		}
		b.WriteByte(')')
	}
	return b.String()
}
