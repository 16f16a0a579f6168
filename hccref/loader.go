package hccref

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"hccpipe.dev/clinical"
)

// Expected CSV header columns (whitespace-stripped, no other normalization).
const (
	colICDCode     = "ICD-10-CM Codes"
	colDescription = "Description"
	colTags        = "Tags"
)

// loadCSV reads the reference table at path and returns one HCCEntry per
// data row. Rows with an empty or "nan" Tags column get UncategorizedTag.
func loadCSV(path string) ([]clinical.HCCEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hccref: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("hccref: read header of %q: %w", path, err)
	}
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.TrimSpace(h)] = i
	}
	icdIdx, ok := colIdx[colICDCode]
	if !ok {
		return nil, fmt.Errorf("hccref: %q missing column %q", path, colICDCode)
	}
	descIdx := colIdx[colDescription]
	tagsIdx, hasTags := colIdx[colTags]

	var entries []clinical.HCCEntry
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("hccref: parse %q: %w", path, err)
		}
		if icdIdx >= len(record) {
			continue
		}
		code := strings.TrimSpace(record[icdIdx])
		if code == "" {
			continue
		}
		desc := ""
		if descIdx < len(record) {
			desc = strings.TrimSpace(record[descIdx])
		}
		category := clinical.UncategorizedTag
		if hasTags && tagsIdx < len(record) {
			tag := strings.TrimSpace(record[tagsIdx])
			if tag != "" && !strings.EqualFold(tag, "nan") {
				category = tag
			}
		}
		entries = append(entries, clinical.HCCEntry{
			ICDCode:     code,
			Description: desc,
			Category:    category,
		})
	}
	return entries, nil
}
