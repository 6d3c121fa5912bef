package ids

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// A manifest lists the ids of the files to download. Two layouts are accepted:
//
// A tab-separated export with a header row, where the column named "id" holds the
// ids and every other column is ignored:
//
//	id	filename	md5	size	state
//	1d3e...	reads.bam	9a0364b9e99bb480dd25e1f0284c8555	1024	released
//
// Or a plain list, one id per line. Blank lines and lines starting with '#' are
// skipped in both layouts.

func manifestFile(manifestPath string) (*os.File, error) {
	if manifestPath == "-" {
		return os.Stdin, nil
	}
	if _, err := os.Stat(manifestPath); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("manifest file %s does not exist", manifestPath)
	}
	file, err := os.Open(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("error opening manifest file %s: %w", manifestPath, err)
	}
	return file, nil
}

func parseManifest(r io.Reader) ([]string, error) {
	var ids []string
	idColumn := -1
	headerSeen := false

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		raw := strings.TrimRight(scanner.Text(), "\r")
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(raw, "\t")

		if !headerSeen {
			headerSeen = true
			if column := headerColumn(fields, "id"); column >= 0 {
				idColumn = column
				continue
			}
		}

		id := line
		if idColumn >= 0 {
			if idColumn >= len(fields) {
				return nil, fmt.Errorf("line %d: missing id column", lineNumber)
			}
			id = strings.TrimSpace(fields[idColumn])
		} else if len(strings.Fields(line)) != 1 {
			return nil, fmt.Errorf("line %d: expected a single id, got `%s`", lineNumber, line)
		}
		if id == "" {
			return nil, fmt.Errorf("line %d: empty id", lineNumber)
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	return ids, nil
}

func headerColumn(fields []string, name string) int {
	for i, field := range fields {
		if strings.EqualFold(strings.TrimSpace(field), name) {
			return i
		}
	}
	return -1
}

// uniqueIDs drops repeated ids, keeping the first occurrence.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
