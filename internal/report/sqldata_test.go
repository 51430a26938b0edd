// ABOUTME: Unit tests for sqldata parsing: field ordering, nulls, wrapped documents, rejects.
package report

import "testing"

const singleSQLData = `<?xml version="1.0"?>
<sqldata table="rtevalruns">
  <fields>
    <field fid="1">clientid</field>
    <field fid="0">submid</field>
    <field fid="2">kernel_ver</field>
  </fields>
  <records>
    <record>
      <value fid="0">17</value>
      <value fid="1">alpha</value>
      <value fid="2" isnull="1"/>
    </record>
    <record>
      <value fid="0">18</value>
      <value fid="1">beta</value>
      <value fid="2">6.12.0-rt5</value>
    </record>
  </records>
</sqldata>`

func TestParseSingleSQLData(t *testing.T) {
	sets, err := ParseSQLData([]byte(singleSQLData))
	if err != nil {
		t.Fatalf("ParseSQLData: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d row sets, want 1", len(sets))
	}

	s := sets[0]
	if s.Table != "rtevalruns" {
		t.Errorf("table = %q", s.Table)
	}
	// Fields must come back in fid order, not document order.
	want := []string{"submid", "clientid", "kernel_ver"}
	for i, f := range want {
		if s.Fields[i] != f {
			t.Errorf("field[%d] = %q, want %q", i, s.Fields[i], f)
		}
	}
	if len(s.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(s.Records))
	}
	if s.Records[0][0].Data != "17" || s.Records[0][1].Data != "alpha" {
		t.Errorf("record 0 = %+v", s.Records[0])
	}
	if !s.Records[0][2].Null {
		t.Error("isnull value not parsed as NULL")
	}
	if s.Records[1][2].Null || s.Records[1][2].Data != "6.12.0-rt5" {
		t.Errorf("record 1 value = %+v", s.Records[1][2])
	}
}

func TestParseWrappedReport(t *testing.T) {
	doc := `<report>
  <sqldata table="rtevalruns">
    <fields><field fid="0">submid</field></fields>
    <records><record><value fid="0">1</value></record></records>
  </sqldata>
  <sqldata table="cyclic_statistics">
    <fields><field fid="0">submid</field><field fid="1">p99</field></fields>
    <records><record><value fid="0">1</value><value fid="1">42</value></record></records>
  </sqldata>
</report>`
	sets, err := ParseSQLData([]byte(doc))
	if err != nil {
		t.Fatalf("ParseSQLData: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("got %d row sets, want 2", len(sets))
	}
	if sets[1].Table != "cyclic_statistics" {
		t.Errorf("second table = %q", sets[1].Table)
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"not xml":         `{"submid": 1}`,
		"no sqldata":      `<report><other/></report>`,
		"bad table name":  `<sqldata table="x; DROP TABLE y"><fields><field fid="0">a</field></fields><records/></sqldata>`,
		"bad field name":  `<sqldata table="t"><fields><field fid="0">a b</field></fields><records/></sqldata>`,
		"duplicate fid":   `<sqldata table="t"><fields><field fid="0">a</field><field fid="0">b</field></fields><records/></sqldata>`,
		"no fields":       `<sqldata table="t"><fields/><records/></sqldata>`,
		"unknown rec fid": `<sqldata table="t"><fields><field fid="0">a</field></fields><records><record><value fid="9">x</value></record></records></sqldata>`,
	}
	for name, doc := range cases {
		if _, err := ParseSQLData([]byte(doc)); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func TestMissingValueBecomesNull(t *testing.T) {
	doc := `<sqldata table="t">
  <fields><field fid="0">a</field><field fid="1">b</field></fields>
  <records><record><value fid="0">x</value></record></records>
</sqldata>`
	sets, err := ParseSQLData([]byte(doc))
	if err != nil {
		t.Fatalf("ParseSQLData: %v", err)
	}
	rec := sets[0].Records[0]
	if rec[0].Null || rec[0].Data != "x" {
		t.Errorf("value 0 = %+v", rec[0])
	}
	if !rec[1].Null {
		t.Error("absent value not defaulted to NULL")
	}
}
