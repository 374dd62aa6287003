package migrate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var scriptName = regexp.MustCompile(`^(\d{4})_([a-z0-9_]+)\.sql$`)

// Script is a migration script on disk, e.g. 0002_create_team.sql
type Script struct {
	Name     string
	Number   int
	Path     string
	SQL      string
	Checksum string
}

// Checksum returns the hex sha256 of a script's text
func Checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// LoadScripts reads the .sql scripts of dir ordered by number. A missing
// directory holds no scripts. Naming problems that block applying
// (unparsable names, duplicate or skipped numbers) come back as messages.
func LoadScripts(dir string) ([]*Script, []string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var (
		scripts  []*Script
		problems []string
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := scriptName.FindStringSubmatch(e.Name())
		if m == nil {
			problems = append(problems, fmt.Sprintf("unrecognized script name %s", e.Name()))
			continue
		}
		n, _ := strconv.Atoi(m[1])
		path := filepath.Join(dir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		scripts = append(scripts, &Script{
			Name:     e.Name(),
			Number:   n,
			Path:     path,
			SQL:      string(b),
			Checksum: Checksum(string(b)),
		})
	}

	sort.Slice(scripts, func(i, j int) bool {
		if scripts[i].Number != scripts[j].Number {
			return scripts[i].Number < scripts[j].Number
		}
		return scripts[i].Name < scripts[j].Name
	})

	expected := 1
	for i, s := range scripts {
		if i > 0 && scripts[i-1].Number == s.Number {
			problems = append(problems, fmt.Sprintf("duplicate script number %04d: %s, %s", s.Number, scripts[i-1].Name, s.Name))
			continue
		}
		if s.Number != expected {
			problems = append(problems, fmt.Sprintf("missing script number %04d before %s", expected, s.Name))
		}
		expected = s.Number + 1
	}
	return scripts, problems, nil
}

// nextNumber returns the number the next generated script gets
func nextNumber(scripts []*Script) int {
	n := 0
	for _, s := range scripts {
		n = max(n, s.Number)
	}
	return n + 1
}
