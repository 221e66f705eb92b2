package report

import (
	"bufio"
	"io"
	"strings"
)

// Field is one "key: value" line of a report block.
type Field struct {
	Key   string
	Value string
}

// Block is one report block: a "===== Title =====" header followed by
// ordered key/value fields.
type Block struct {
	Title  string
	Fields []Field
}

// Get returns the value for a key, or "" when absent.
func (b *Block) Get(key string) string {
	for _, f := range b.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

// ParseBlocks parses an appended report stream into its blocks. Lines before
// the first header and lines that are neither headers nor key/value pairs
// are skipped, so partially corrupted files still yield their intact blocks.
func ParseBlocks(r io.Reader) ([]Block, error) {
	var blocks []Block
	var cur *Block

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if title, ok := parseHeader(line); ok {
			blocks = append(blocks, Block{Title: title})
			cur = &blocks[len(blocks)-1]
			continue
		}
		if cur == nil {
			continue
		}

		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		cur.Fields = append(cur.Fields, Field{Key: key, Value: value})
	}
	if err := scanner.Err(); err != nil {
		return blocks, err
	}
	return blocks, nil
}

// parseHeader recognizes "===== Title =====" lines.
func parseHeader(line string) (string, bool) {
	if !strings.HasPrefix(line, "=====") || !strings.HasSuffix(line, "=====") || len(line) <= 10 {
		return "", false
	}
	title := strings.TrimSpace(strings.Trim(line, "="))
	if title == "" {
		return "", false
	}
	return title, true
}
