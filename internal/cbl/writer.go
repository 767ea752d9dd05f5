package cbl

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

const (
	xsdNamespace = "http://www.w3.org/2001/XMLSchema"
	xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"
)

// Write serializes a reading list to a .cbl file, creating parent
// directories as needed.
func Write(list *ReadingList, path string) error {
	doc := document{
		XSD:   xsdNamespace,
		XSI:   xsiNamespace,
		Name:  list.Name,
		Books: books{Book: list.Books},
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal reading list %q: %w", list.Name, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	content := append([]byte(xml.Header), data...)
	content = append(content, '\n')

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
