package table

// Cell is a single extracted value with the model's confidence in it.
type Cell struct {
	Value         string  `json:"value"`
	Confidence    float64 `json:"confidence"`
	LowConfidence bool    `json:"low_confidence"`
}

// Row is an ordered sequence of cells. After header resolution its length
// always equals the number of resolved headers.
type Row []Cell

// Table is the result of one extraction: resolved headers plus the rows
// aligned to them. It is ephemeral; nothing is persisted until the caller
// saves it through the CSV store.
type Table struct {
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// Values returns the string values of a row in column order.
func (r Row) Values() []string {
	values := make([]string, len(r))
	for i, c := range r {
		values[i] = c.Value
	}
	return values
}

// HeaderSpec selects the header resolution strategy for one extraction:
// either the caller dictates the column set, or the model's detected
// headers are taken verbatim.
type HeaderSpec struct {
	userSpecified bool
	headers       []string
}

// UserSpecified returns a HeaderSpec that forces the given column names.
func UserSpecified(headers []string) HeaderSpec {
	return HeaderSpec{userSpecified: true, headers: headers}
}

// AutoDetected returns a HeaderSpec that accepts whatever headers the
// model detected in the image.
func AutoDetected() HeaderSpec {
	return HeaderSpec{}
}
