package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse means no parseable table could be recovered from the
// model's output. Retrying the same request will likely reproduce it; the
// caller should change instructions or model instead.
var ErrMalformedResponse = errors.New("malformed model response")

// DefaultConfidence is assigned to cells the model returned without a score.
// An omitted score carries no doubt signal, so it does not flag for review.
const DefaultConfidence = 1.0

// Parse recovers a table from raw model output. The output is untrusted:
// models wrap JSON in prose or markdown fences, mix up encodings and drop
// fields, so everything is validated before use. Three encodings are
// accepted:
//
//	{"headers": [...], "rows": [[...], ...]}     positional arrays
//	{"headers": [...], "rows": [{h: v}, ...]}    per-row maps
//	{"data": [{h: v}, ...], "confidence": ...}   header names from row keys
//
// Confidence may ride along as a parallel structure; cells without a score
// get DefaultConfidence.
func Parse(text string) (*Table, error) {
	span, ok := extractJSON(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	var obj map[string]json.RawMessage
	if err := decodeValue([]byte(span), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var tbl *Table
	var err error
	if _, hasHeaders := obj["headers"]; hasHeaders {
		tbl, err = parseHeadersRows(obj)
	} else if _, hasData := obj["data"]; hasData {
		tbl, err = parseDataConfidence(obj)
	} else {
		return nil, fmt.Errorf("%w: object has neither %q nor %q", ErrMalformedResponse, "headers", "data")
	}
	if err != nil {
		return nil, err
	}

	if len(tbl.Headers) == 0 {
		return nil, fmt.Errorf("%w: no headers", ErrMalformedResponse)
	}
	return tbl, nil
}

// extractJSON locates the first balanced {...} span in text, tolerating
// surrounding prose and markdown code fences. Falls back to the widest
// first-{ to last-} span when brace counting fails midway.
func extractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	// Unbalanced; take the widest span and let the JSON decoder decide.
	end := strings.LastIndex(text, "}")
	if end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// decodeValue unmarshals with UseNumber so numeric cell values survive as
// written instead of round-tripping through float64.
func decodeValue(data []byte, v any) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	return dec.Decode(v)
}

// parseHeadersRows handles the headers+rows encodings (positional arrays or
// per-row maps), with an optional parallel confidence structure.
func parseHeadersRows(obj map[string]json.RawMessage) (*Table, error) {
	var rawHeaders []any
	if err := decodeValue(obj["headers"], &rawHeaders); err != nil {
		return nil, fmt.Errorf("%w: headers is not a list: %v", ErrMalformedResponse, err)
	}
	headers := make([]string, 0, len(rawHeaders))
	for _, h := range rawHeaders {
		headers = append(headers, stringify(h))
	}

	rowsRaw, ok := obj["rows"]
	if !ok {
		return nil, fmt.Errorf("%w: missing rows", ErrMalformedResponse)
	}
	var rawRows []any
	if err := decodeValue(rowsRaw, &rawRows); err != nil {
		return nil, fmt.Errorf("%w: rows is not a list: %v", ErrMalformedResponse, err)
	}

	var rawConf []any
	if confRaw, ok := obj["confidence"]; ok {
		// Confidence is best-effort; a broken structure just means defaults.
		_ = decodeValue(confRaw, &rawConf)
	}

	rows := make([]Row, 0, len(rawRows))
	for i, rr := range rawRows {
		var conf any
		if i < len(rawConf) {
			conf = rawConf[i]
		}
		switch rv := rr.(type) {
		case []any:
			rows = append(rows, positionalRow(headers, rv, conf))
		case map[string]any:
			confMap, _ := conf.(map[string]any)
			rows = append(rows, mappedRow(headers, rv, confMap))
		default:
			return nil, fmt.Errorf("%w: row %d is neither array nor object", ErrMalformedResponse, i)
		}
	}

	return &Table{Headers: headers, Rows: rows}, nil
}

// parseDataConfidence handles the data+confidence encoding, where headers
// are implied by row keys. Header order is first occurrence across rows.
func parseDataConfidence(obj map[string]json.RawMessage) (*Table, error) {
	var rawRows []map[string]any
	if err := decodeValue(obj["data"], &rawRows); err != nil {
		return nil, fmt.Errorf("%w: data is not a list of objects: %v", ErrMalformedResponse, err)
	}

	var rawConf []map[string]any
	if confRaw, ok := obj["confidence"]; ok {
		_ = decodeValue(confRaw, &rawConf)
	}

	// Header order must follow the document, not Go's map iteration, so key
	// order is recovered from the raw token stream.
	keyOrder, err := rowKeyOrder(obj["data"])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var headers []string
	seen := make(map[string]bool)
	for _, keys := range keyOrder {
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}

	rows := make([]Row, 0, len(rawRows))
	for i, r := range rawRows {
		var confMap map[string]any
		if i < len(rawConf) {
			confMap = rawConf[i]
		}
		rows = append(rows, mappedRow(headers, r, confMap))
	}

	return &Table{Headers: headers, Rows: rows}, nil
}

// rowKeyOrder walks the token stream of a JSON array of objects and returns
// each object's keys in document order.
func rowKeyOrder(data json.RawMessage) ([][]string, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	if _, err := dec.Token(); err != nil { // opening [
		return nil, err
	}

	var order [][]string
	for dec.More() {
		if _, err := dec.Token(); err != nil { // opening {
			return nil, err
		}
		var keys []string
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected token %v in data object", tok)
			}
			keys = append(keys, key)
			// Skip the value, whatever its shape.
			var skip any
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
		}
		if _, err := dec.Token(); err != nil { // closing }
			return nil, err
		}
		order = append(order, keys)
	}
	return order, nil
}

func positionalRow(headers []string, values []any, conf any) Row {
	confList, _ := conf.([]any)
	row := make(Row, len(headers))
	for i := range headers {
		cell := Cell{Value: "", Confidence: DefaultConfidence}
		if i < len(values) {
			cell.Value = stringify(values[i])
		}
		if i < len(confList) {
			cell.Confidence = confidenceOf(confList[i])
		}
		row[i] = cell
	}
	return row
}

func mappedRow(headers []string, values map[string]any, conf map[string]any) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		cell := Cell{Value: "", Confidence: DefaultConfidence}
		if v, ok := values[h]; ok {
			cell.Value = stringify(v)
		}
		if c, ok := conf[h]; ok {
			cell.Confidence = confidenceOf(c)
		}
		row[i] = cell
	}
	return row
}

// stringify normalizes an arbitrary JSON value to a cell string.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		// Nested structures are kept as their compact JSON text.
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// confidenceOf coerces a model-provided score to [0,1], defaulting when it
// is missing or not numeric.
func confidenceOf(v any) float64 {
	n, ok := v.(json.Number)
	if !ok {
		return DefaultConfidence
	}
	f, err := n.Float64()
	if err != nil {
		return DefaultConfidence
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
