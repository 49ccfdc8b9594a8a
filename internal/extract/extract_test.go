// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"a.csv":      FormatCSV,
		"a.JSON":     FormatJSON,
		"b.xlsx":     FormatXLSX,
		"c.docx":     FormatDOCX,
		"dates.txt":  FormatText,
		"no_ext":     FormatText,
		"dir/x.xls":  FormatXLSX,
		"dir/y.json": FormatJSON,
	}
	for in, want := range tests {
		if got := DetectFormat(in); got != want {
			t.Fatalf("DetectFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValuesCSV(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "d.csv", "\xef\xbb\xbfdate,name\n2024-01-01, alice\n2024-02-03,\n")
	got, err := Values(p)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2024-01-01", "alice", "2024-02-03"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRecordsPadsShortRows(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "r.csv", "id,city\n1,Rome\n2\n")
	header, recs, err := Records(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(header) != 2 || len(recs) != 2 {
		t.Fatalf("header=%v recs=%v", header, recs)
	}
	if recs[1]["city"] != "" || recs[0]["city"] != "Rome" {
		t.Fatalf("unexpected records %v", recs)
	}
}

func TestValuesJSONFlattens(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "d.json", `[{"when":"2024-01-01","n":3},{"when":"2024-01-02","ok":true}]`)
	got, err := Values(p)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"3", "2024-01-01", "true", "2024-01-02"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestValuesText(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "d.txt", "a\r\nb\nc")
	got, err := Values(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("got %q", got)
	}
	text, err := Text(p)
	if err != nil || text != "a\r\nb\nc" {
		t.Fatalf("Text = %q, %v", text, err)
	}
}

func TestValuesDOCX(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "doc.docx")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	body := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t>second</w:t><w:tab/><w:t>para</w:t></w:r></w:p>
</w:body></w:document>`
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := Values(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "Hello world" || got[1] != "second\tpara" {
		t.Fatalf("got %q", got)
	}
}

func TestValuesXLSX(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "book.xlsx")
	f := excelize.NewFile()
	if err := f.SetCellValue("Sheet1", "A1", "date"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "A2", "2024-03-05"); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAs(p); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := Values(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1] != "2024-03-05" {
		t.Fatalf("got %q", got)
	}
}
