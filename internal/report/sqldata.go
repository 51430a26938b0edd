// ABOUTME: Parses the stylesheet's sqldata output into row sets ready for INSERT.
// ABOUTME: Format: <sqldata table=""><fields><field fid="">..<records><record><value fid="">.
package report

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
)

// identRe accepts the identifiers sqldata may name. Anything else is a
// structurally invalid document, not a quoting problem to paper over.
var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Value is one cell of a record. Null distinguishes SQL NULL from the empty
// string.
type Value struct {
	Data string
	Null bool
}

// RowSet is the parsed form of one sqldata element: the rows to insert into
// a single table.
type RowSet struct {
	Table   string
	Fields  []string
	Records [][]Value
}

type sqldataXML struct {
	Table   string      `xml:"table,attr"`
	Fields  []fieldXML  `xml:"fields>field"`
	Records []recordXML `xml:"records>record"`
}

type fieldXML struct {
	FID  int    `xml:"fid,attr"`
	Name string `xml:",chardata"`
}

type recordXML struct {
	Values []valueXML `xml:"value"`
}

type valueXML struct {
	FID    int    `xml:"fid,attr"`
	IsNull string `xml:"isnull,attr"`
	Data   string `xml:",chardata"`
}

// reportXML covers transform output that wraps several sqldata elements in
// one document.
type reportXML struct {
	SQLData []sqldataXML `xml:"sqldata"`
}

// ParseSQLData parses a transform result into row sets. The document root
// may be a single <sqldata> element or any element containing a sequence of
// them. Structural problems (unknown shape, duplicate fids, value fids with
// no matching field) are errors; the caller treats them as a rejection.
func ParseSQLData(data []byte) ([]RowSet, error) {
	var root xml.Name
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse sqldata: %w", err)
	}

	var raw []sqldataXML
	if root.Local == "sqldata" {
		var one sqldataXML
		if err := xml.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("parse sqldata: %w", err)
		}
		raw = []sqldataXML{one}
	} else {
		var wrapped reportXML
		if err := xml.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("parse sqldata: %w", err)
		}
		if len(wrapped.SQLData) == 0 {
			return nil, fmt.Errorf("document %q contains no sqldata elements", root.Local)
		}
		raw = wrapped.SQLData
	}

	sets := make([]RowSet, 0, len(raw))
	for _, s := range raw {
		set, err := buildRowSet(s)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func buildRowSet(s sqldataXML) (RowSet, error) {
	if !identRe.MatchString(s.Table) {
		return RowSet{}, fmt.Errorf("sqldata table name %q is not a valid identifier", s.Table)
	}
	if len(s.Fields) == 0 {
		return RowSet{}, fmt.Errorf("sqldata for table %s declares no fields", s.Table)
	}

	// Fields are addressed by fid; order records by fid regardless of the
	// document order.
	byFID := make(map[int]string, len(s.Fields))
	fids := make([]int, 0, len(s.Fields))
	for _, f := range s.Fields {
		if !identRe.MatchString(f.Name) {
			return RowSet{}, fmt.Errorf("sqldata field name %q is not a valid identifier", f.Name)
		}
		if _, dup := byFID[f.FID]; dup {
			return RowSet{}, fmt.Errorf("sqldata for table %s repeats fid %d", s.Table, f.FID)
		}
		byFID[f.FID] = f.Name
		fids = append(fids, f.FID)
	}
	sort.Ints(fids)

	fields := make([]string, len(fids))
	index := make(map[int]int, len(fids)) // fid → column position
	for i, fid := range fids {
		fields[i] = byFID[fid]
		index[fid] = i
	}

	records := make([][]Value, 0, len(s.Records))
	for n, r := range s.Records {
		row := make([]Value, len(fields))
		for i := range row {
			row[i] = Value{Null: true}
		}
		for _, v := range r.Values {
			pos, ok := index[v.FID]
			if !ok {
				return RowSet{}, fmt.Errorf("sqldata record %d for table %s references unknown fid %d",
					n, s.Table, v.FID)
			}
			if v.IsNull == "1" || v.IsNull == "true" {
				row[pos] = Value{Null: true}
			} else {
				row[pos] = Value{Data: v.Data}
			}
		}
		records = append(records, row)
	}

	return RowSet{Table: s.Table, Fields: fields, Records: records}, nil
}
