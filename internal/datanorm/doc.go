// Package datanorm turns messy CSV exports into normalized contact rows.
// It maps arbitrary column headers onto canonical fields, detects files
// without a header row, and optionally cleans casing and whitespace in
// names, titles and company values.
package datanorm
