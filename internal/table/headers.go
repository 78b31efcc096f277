package table

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoHeaders means neither the caller nor the model produced any column
// names, so there is nothing to align rows against.
var ErrNoHeaders = errors.New("no headers resolved")

// ResolveHeaders decides the effective column set for an extraction and
// realigns the parsed table to it.
//
// With UserSpecified headers the caller's list wins: columns are matched to
// the model's by name when the names overlap, positionally otherwise; extra
// model columns are dropped and missing ones padded with empty cells. With
// AutoDetected the model's headers are used verbatim after trimming,
// dropping blanks and deduplicating repeats (first occurrence unchanged,
// later ones suffixed _2, _3, ...).
//
// Every row in the result has exactly len(result.Headers) cells.
func ResolveHeaders(spec HeaderSpec, parsed *Table) (*Table, error) {
	if spec.userSpecified {
		headers := cleanHeaders(spec.headers)
		if len(headers) == 0 {
			return nil, fmt.Errorf("%w: user header list is empty", ErrNoHeaders)
		}
		return alignToHeaders(headers, parsed), nil
	}

	if parsed == nil {
		return nil, fmt.Errorf("%w: no detected headers", ErrNoHeaders)
	}

	// Blank detected headers are dropped together with their column.
	var headers []string
	var keep []int
	for i, h := range parsed.Headers {
		h = strings.TrimSpace(h)
		if h != "" {
			headers = append(headers, h)
			keep = append(keep, i)
		}
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: model detected no headers", ErrNoHeaders)
	}
	headers = dedupeHeaders(headers)

	rows := make([]Row, len(parsed.Rows))
	for ri, r := range parsed.Rows {
		row := make(Row, len(headers))
		for ci, src := range keep {
			if src < len(r) {
				row[ci] = r[src]
			} else {
				row[ci] = Cell{Value: "", Confidence: DefaultConfidence}
			}
		}
		rows[ri] = row
	}
	return &Table{Headers: headers, Rows: rows}, nil
}

// ParseHeaderList splits a comma-separated header hint into a cleaned list.
// An empty or all-blank hint yields nil, which means auto-detect.
func ParseHeaderList(hint string) []string {
	if strings.TrimSpace(hint) == "" {
		return nil
	}
	return cleanHeaders(strings.Split(hint, ","))
}

func cleanHeaders(headers []string) []string {
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// dedupeHeaders makes repeated names unique deterministically. A suffixed
// candidate can itself collide with a name the model emitted, so the suffix
// keeps incrementing until the name is unused.
func dedupeHeaders(headers []string) []string {
	used := make(map[string]bool, len(headers))
	counts := make(map[string]int, len(headers))
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		name := h
		for used[name] {
			counts[h]++
			name = fmt.Sprintf("%s_%d", h, counts[h]+1)
		}
		used[name] = true
		out = append(out, name)
	}
	return out
}

// alignToHeaders maps parsed rows onto the caller's column set. Name-based
// matching is used when any parsed header matches a target header;
// otherwise columns map positionally.
func alignToHeaders(headers []string, parsed *Table) *Table {
	if parsed == nil {
		return &Table{Headers: headers}
	}

	byName := make(map[string]int, len(parsed.Headers))
	overlap := false
	for i, h := range parsed.Headers {
		if _, dup := byName[h]; !dup {
			byName[h] = i
		}
	}
	for _, h := range headers {
		if _, ok := byName[h]; ok {
			overlap = true
			break
		}
	}

	rows := make([]Row, len(parsed.Rows))
	for ri, r := range parsed.Rows {
		row := make(Row, len(headers))
		for ci, h := range headers {
			src := ci
			if overlap {
				var ok bool
				src, ok = byName[h]
				if !ok {
					src = -1
				}
			}
			if src >= 0 && src < len(r) {
				row[ci] = r[src]
			} else {
				row[ci] = Cell{Value: "", Confidence: DefaultConfidence}
			}
		}
		rows[ri] = row
	}
	return &Table{Headers: headers, Rows: rows}
}
