// Package ioutil contains helpers for command output.
package ioutil

import (
	"fmt"
	"io"
	"strings"
)

type pair struct {
	key   string
	value string
}

// KeyValueFormatter writes one key/value pair per line with the separators
// vertically aligned. Every line of a multi-line value except the first is
// written as Prefix followed by Indent.
type KeyValueFormatter struct {
	Prefix    string
	Indent    string
	Separator string
	pairs     []pair
}

func DefaultKeyValueFormatter() *KeyValueFormatter {
	return &KeyValueFormatter{
		Indent:    "    ",
		Separator: ": ",
	}
}

// Add adds a pair to be written.
func (f *KeyValueFormatter) Add(k, v string) {
	f.pairs = append(f.pairs, pair{key: k, value: v})
}

func (f *KeyValueFormatter) Len() int {
	return len(f.pairs)
}

// WriteTo writes the formatted pairs to out. Each line, including the last, is
// terminated by a newline.
func (f *KeyValueFormatter) WriteTo(out io.Writer) (int64, error) {
	width := 0
	for _, p := range f.pairs {
		if l := len(p.key); l > width {
			width = l
		}
	}
	sb := strings.Builder{}
	for _, p := range f.pairs {
		lines := strings.Split(strings.TrimRight(p.value, " \t\r\n"), "\n")
		fmt.Fprintf(&sb, "%s%-*s%s%s\n", f.Prefix, width, p.key, f.Separator, lines[0])
		for _, line := range lines[1:] {
			fmt.Fprintf(&sb, "%s%s%s\n", f.Prefix, f.Indent, line)
		}
	}
	n, err := io.WriteString(out, sb.String())
	return int64(n), err
}

func (f *KeyValueFormatter) String() string {
	sb := &strings.Builder{}
	_, _ = f.WriteTo(sb)
	return sb.String()
}
