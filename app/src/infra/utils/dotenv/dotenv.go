package dotenv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Load applies KEY=value pairs from the given files (".env" when none are given)
// without overriding variables already present in the environment. Missing files are
// skipped.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var errs []error
	for _, path := range paths {
		if err := loadFile(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			errs = append(errs, fmt.Errorf("dotenv: %s: %w", path, err))
		}
	}

	return errors.Join(errs...)
}

func loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	values, err := Parse(file)
	if err != nil {
		return err
	}

	for _, kv := range values {
		if _, exists := os.LookupEnv(kv.Key); exists {
			continue
		}
		if err := os.Setenv(kv.Key, kv.Value); err != nil {
			return fmt.Errorf("set env %s: %w", kv.Key, err)
		}
	}
	return nil
}

// Pair is a single parsed assignment.
type Pair struct {
	Key   string
	Value string
}

// Parse reads assignments in file order. Blank lines, '#' comments and an optional
// "export " prefix are accepted; unquoted values may carry a trailing " # comment".
func Parse(r io.Reader) ([]Pair, error) {
	var pairs []Pair

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("line %d: missing '='", lineNo)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("line %d: empty key", lineNo)
		}

		pairs = append(pairs, Pair{Key: key, Value: parseValue(value)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	return pairs, nil
}

func parseValue(raw string) string {
	value := strings.TrimSpace(raw)
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '\'' || first == '"') && first == last {
			return value[1 : len(value)-1]
		}
	}
	if idx := strings.Index(value, " #"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return value
}
