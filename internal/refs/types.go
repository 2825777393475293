// Package refs implements the named-reference content store.
//
// A reference is a named unit of templated text plus free-form metadata.
// Names are hierarchical ("personas/hemingway") and map one-to-one to files
// under the store root. Two on-disk formats are readable:
//   - current: <name>.yaml, comment-capable, always used for writes
//   - legacy:  <name>.json, read-only, reported with FormatVersion 0
package refs

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/HendryAvila/substrate/internal/value"
)

const (
	// LegacyFormat is the format version reported for JSON records.
	LegacyFormat = 0
	// CurrentFormat is the format version written by Put.
	CurrentFormat = 1

	currentExt = ".yaml"
	legacyExt  = ".json"
)

var (
	// ErrInvalidName is returned when a reference name fails validation.
	ErrInvalidName = errors.New("invalid reference name")
	// ErrNotFound is returned when no record exists for a name.
	ErrNotFound = errors.New("reference not found")
)

// Reference is one stored record.
type Reference struct {
	Name          string    `json:"name"`
	Content       string    `json:"content"`
	Metadata      value.Map `json:"metadata"`
	FormatVersion int       `json:"format_version"`
	Created       time.Time `json:"created"`
	Updated       time.Time `json:"updated"`
}

// Summary is the listing view of a reference.
type Summary struct {
	Name          string `json:"name"`
	FormatVersion int    `json:"format_version"`
	Size          int64  `json:"size"`
}

// Store defines the persistence interface for references.
// Abstracted so tools can be tested against fakes.
type Store interface {
	Put(name, content string, metadata value.Map) (*Reference, error)
	Get(name string) (*Reference, error)
	List(prefix string) ([]Summary, error)
	Delete(name string) error
}

// ValidateName checks that a reference name is non-empty, relative,
// slash-separated and free of traversal sequences.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("%w: %q must not start or end with '/'", ErrInvalidName, name)
	}
	for _, r := range name {
		if r == '\\' || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains a forbidden character %q", ErrInvalidName, name, r)
		}
	}
	for _, seg := range strings.Split(name, "/") {
		switch {
		case seg == "":
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidName, name)
		case seg == "." || seg == "..":
			return fmt.Errorf("%w: %q contains a path traversal segment", ErrInvalidName, name)
		case strings.HasPrefix(seg, "."):
			return fmt.Errorf("%w: segment %q must not start with '.'", ErrInvalidName, seg)
		}
	}
	return nil
}

// record is the on-disk shape shared by both formats.
type record struct {
	FormatVersion int       `yaml:"format_version" json:"format_version,omitempty"`
	Content       string    `yaml:"content" json:"content"`
	Metadata      value.Map `yaml:"metadata" json:"metadata"`
	Created       string    `yaml:"created,omitempty" json:"created,omitempty"`
	Updated       string    `yaml:"updated,omitempty" json:"updated,omitempty"`
}

func (r record) toReference(name string, format int) *Reference {
	meta := r.Metadata
	if meta == nil {
		meta = value.Map{}
	}
	return &Reference{
		Name:          name,
		Content:       r.Content,
		Metadata:      meta,
		FormatVersion: format,
		Created:       parseTime(r.Created),
		Updated:       parseTime(r.Updated),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC3339 and the naive ISO form older writers produced.
// Unparseable values yield the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
