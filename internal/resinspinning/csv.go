package resinspinning

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

// column binds a CSV header to a RecordInput field.
type column struct {
	header string
	get    func(in RecordInput) string
	set    func(in *RecordInput, raw string) error
}

func textColumn(header string, field func(*RecordInput) *string) column {
	return column{
		header: header,
		get:    func(in RecordInput) string { return *field(&in) },
		set: func(in *RecordInput, raw string) error {
			*field(in) = raw
			return nil
		},
	}
}

func numberColumn(header string, field func(*RecordInput) **float64) column {
	return column{
		header: header,
		get:    func(in RecordInput) string { return formatNumber(*field(&in)) },
		set: func(in *RecordInput, raw string) error {
			v, err := parseNumber(raw)
			if err != nil {
				return fmt.Errorf("%s: %q is not a valid number", header, raw)
			}
			*field(in) = v
			return nil
		},
	}
}

// columns lists the exchange format in export order. Import matches headers by name.
var columns = []column{
	textColumn("batch_number", func(in *RecordInput) *string { return &in.BatchNumber }),
	textColumn("material_grade", func(in *RecordInput) *string { return &in.MaterialGrade }),
	textColumn("supplier", func(in *RecordInput) *string { return &in.Supplier }),
	textColumn("resin_type", func(in *RecordInput) *string { return &in.ResinType }),
	numberColumn("resin_molecular_weight_g_mol", func(in *RecordInput) **float64 { return &in.MolecularWeight }),
	numberColumn("polydispersity_index_pdi", func(in *RecordInput) **float64 { return &in.PolydispersityIndex }),
	numberColumn("intrinsic_viscosity_dl_g", func(in *RecordInput) **float64 { return &in.IntrinsicViscosity }),
	numberColumn("melting_point_c", func(in *RecordInput) **float64 { return &in.MeltingPoint }),
	numberColumn("crystallinity_percent", func(in *RecordInput) **float64 { return &in.Crystallinity }),
	textColumn("spinning_method", func(in *RecordInput) *string { return &in.SpinningMethod }),
	textColumn("solvent_system", func(in *RecordInput) *string { return &in.SolventSystem }),
	numberColumn("solution_concentration_percent", func(in *RecordInput) **float64 { return &in.SolutionConcentration }),
	numberColumn("spinning_temperature_c", func(in *RecordInput) **float64 { return &in.SpinningTemperature }),
	textColumn("spinneret_specifications", func(in *RecordInput) *string { return &in.SpinneretSpecifications }),
	textColumn("coagulation_bath_composition", func(in *RecordInput) *string { return &in.CoagulationBathComposition }),
	numberColumn("coagulation_bath_temperature_c", func(in *RecordInput) **float64 { return &in.CoagulationBathTemperature }),
	numberColumn("draw_ratio", func(in *RecordInput) **float64 { return &in.DrawRatio }),
	numberColumn("heat_treatment_temperature_c", func(in *RecordInput) **float64 { return &in.HeatTreatmentTemperature }),
	textColumn("remarks", func(in *RecordInput) *string { return &in.Remarks }),
}

var errNotFinite = errors.New("number is not finite")

// Export-only columns appended after the writable ones.
var exportTrailer = []string{"id", "created_at", "updated_at"}

func parseNumber(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, errNotFinite
	}
	return &v, nil
}

func formatNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeRow(row []string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func exportHeader() []string {
	header := make([]string, 0, len(columns)+len(exportTrailer))
	for _, c := range columns {
		header = append(header, c.header)
	}
	return append(header, exportTrailer...)
}

func exportRow(r Record) []string {
	in := r.input()
	row := make([]string, 0, len(columns)+len(exportTrailer))
	for _, c := range columns {
		row = append(row, c.get(in))
	}
	return append(row,
		strconv.FormatInt(r.ID, 10),
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.UpdatedAt.UTC().Format(time.RFC3339),
	)
}

// csvRow is one data line of an import file.
type csvRow struct {
	line  int
	input RecordInput
	err   error
}

// csvReader maps import lines onto RecordInput by header name. Unknown headers are ignored,
// which lets an export be re-imported as is.
type csvReader struct {
	r     *csv.Reader
	index map[int]column
}

func newCSVReader(r io.Reader) (*csvReader, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file")
		}
		return nil, err
	}
	byName := make(map[string]column, len(columns))
	for _, c := range columns {
		byName[c.header] = c
	}
	index := make(map[int]column)
	seen := make(map[string]bool)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if c, ok := byName[name]; ok && !seen[name] {
			index[i] = c
			seen[name] = true
		}
	}
	for _, required := range []string{"batch_number", "material_grade"} {
		if !seen[required] {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}
	return &csvReader{r: reader, index: index}, nil
}

// next returns the following data row, or io.EOF. Malformed values are reported on the
// row rather than aborting the file; blank lines are skipped.
func (cr *csvReader) next() (csvRow, error) {
	for {
		fields, err := cr.r.Read()
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return csvRow{line: perr.Line, err: perr.Err}, nil
			}
			return csvRow{}, err
		}
		line, _ := cr.r.FieldPos(0)
		if blank(fields) {
			continue
		}
		row := csvRow{line: line}
		for i, raw := range fields {
			c, ok := cr.index[i]
			if !ok {
				continue
			}
			if err := c.set(&row.input, strings.TrimSpace(raw)); err != nil && row.err == nil {
				row.err = err
			}
		}
		return row, nil
	}
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
