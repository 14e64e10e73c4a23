package assign

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hashicorp-forge/pawls/pkg/docid"
)

// ReadIDs reads one document ID per line. Blank lines and lines starting
// with # are ignored.
func ReadIDs(r io.Reader) ([]docid.DocumentID, error) {
	var raw []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw = append(raw, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ids: %w", err)
	}
	return ParseIDs(raw)
}

// ReadUsers reads one candidate annotator per line. Entries are not
// validated here.
func ReadUsers(r io.Reader) ([]string, error) {
	var users []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		users = append(users, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	return users, nil
}

// ReadNames decodes a mapping of document ID to display name. JSON and YAML
// are both accepted.
func ReadNames(r io.Reader) (Names, error) {
	var raw map[string]string
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return Names{}, nil
		}
		return nil, fmt.Errorf("failed to decode names: %w", err)
	}

	names := make(Names, len(raw))
	for k, v := range raw {
		id, err := docid.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("invalid document id in names: %w", err)
		}
		names[id] = v
	}
	return names, nil
}
