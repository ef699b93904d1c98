package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"regexp"
	"strings"
)

// Regex for valid subreddit names
var subNameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)

// ValidName reports whether name is a syntactically valid community name.
func ValidName(name string) bool {
	return subNameRegex.MatchString(name)
}

// CleanName trims whitespace and an optional "r/" or "/r/" prefix.
func CleanName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	if len(name) > 2 && strings.EqualFold(name[:2], "r/") {
		name = name[2:]
	}
	return strings.TrimSuffix(name, "/")
}

// ParseList splits a comma-separated list, dropping blanks, invalid names and
// case-insensitive duplicates while keeping first-seen order.
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		out = appendUnique(out, CleanName(part))
	}
	return out
}

// LoadCommunities reads a CSV whose first row is a header and whose first
// column holds community names. Malformed rows are skipped.
func LoadCommunities(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Wrap in BOM stripper
	r := csv.NewReader(stripBOM(f))
	r.FieldsPerRecord = -1

	var names []string
	line := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		line++
		if line == 1 || len(record) == 0 {
			continue
		}
		names = appendUnique(names, CleanName(record[0]))
	}
	return names, nil
}

// Merge appends the names of extra that are not already in base.
func Merge(base []string, extra ...string) []string {
	out := append([]string(nil), base...)
	for _, n := range extra {
		out = appendUnique(out, n)
	}
	return out
}

// Contains reports whether names holds name, ignoring case.
func Contains(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func appendUnique(names []string, name string) []string {
	if !ValidName(name) || Contains(names, name) {
		return names
	}
	return append(names, name)
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	rdr, _, err := br.ReadRune()
	if err != nil {
		return br
	}
	if rdr != '\uFEFF' {
		br.UnreadRune()
	}
	return br
}
