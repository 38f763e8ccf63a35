// Package input expands flag values that name another source: "-" reads
// standard input and "@path" reads a file.
package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Stdin is swapped in tests
var Stdin io.Reader = os.Stdin

// Line resolves a single-line value such as a password. Only the first line
// of the source is used, without its trailing newline.
func Line(v string) (string, error) {
	r, closeFn, err := open(v)
	if err != nil || r == nil {
		return v, err
	}
	defer closeFn()
	sc := bufio.NewScanner(r)
	if sc.Scan() {
		return strings.TrimRight(sc.Text(), "\r"), nil
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", nil
}

// Text resolves a multi-line value such as a description. Surrounding
// whitespace is trimmed.
func Text(v string) (string, error) {
	r, closeFn, err := open(v)
	if err != nil || r == nil {
		return v, err
	}
	defer closeFn()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// open returns a nil reader when v is a literal.
func open(v string) (io.Reader, func(), error) {
	switch {
	case v == "-":
		return Stdin, func() {}, nil
	case strings.HasPrefix(v, "@") && len(v) > 1:
		f, err := os.Open(v[1:])
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", v[1:], err)
		}
		return f, func() { f.Close() }, nil
	}
	return nil, nil, nil
}
