// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlib

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.starlark.net/starlark"
)

// Completions is implemented by values whose attributes are only known at
// runtime, such as the collections of a database.
type Completions interface {
	Completions(thread *starlark.Thread) []string
}

// Completer autocompletes the trailing attribute chain of a line,
// "db.us" completes to the collections of db starting with "us".
type Completer struct {
	starlark.StringDict

	// Thread, if set, is passed to Completions values.
	Thread *starlark.Thread
}

// findPrefix assumes sorted arrays of keys
func findPrefix(line string, depth int, pfx string, keyss ...[]string) (c []string) {
	for _, keys := range keyss {
		i := sort.SearchStrings(keys, pfx)
		j := i
		for ; j < len(keys); j++ {
			if !strings.HasPrefix(keys[j], pfx) {
				break
			}
		}
		c = append(c, keys[i:j]...)
	}
	if len(keyss) > 1 {
		sort.Strings(c)
	}

	// Add line start
	for i := range c {
		c[i] = line[:depth] + c[i]
	}
	return c
}

func isIdent(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// chain returns the start of the trailing "a.b.c" expression of line.
func chain(line string) int {
	i := len(line)
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:i])
		if !isIdent(r) {
			break
		}
		i -= size
	}
	return i
}

func (c Completer) attrNames(v starlark.HasAttrs) []string {
	if x, ok := v.(Completions); ok && c.Thread != nil {
		names := x.Completions(c.Thread)
		sort.Strings(names)
		return names
	}
	return v.AttrNames()
}

// Complete returns the candidate lines for line.
func (c Completer) Complete(line string) []string {
	if strings.TrimSpace(line) == "" {
		// tab complete indent
		return []string{strings.Repeat(" ", (len(line)/4)*4+4)}
	}

	start := chain(line)
	parts := strings.Split(line[start:], ".")
	if len(parts) == 1 {
		keys := [][]string{c.Keys(), starlark.Universe.Keys()}
		return findPrefix(line, start, parts[0], keys...)
	}

	var cursor starlark.Value
	if g, ok := c.StringDict[parts[0]]; ok {
		cursor = g
	} else if u, ok := starlark.Universe[parts[0]]; ok {
		cursor = u
	} else {
		return nil
	}

	depth := start + len(parts[0]) + 1
	for _, part := range parts[1 : len(parts)-1] {
		v, ok := cursor.(starlark.HasAttrs)
		if !ok {
			return nil
		}
		p, err := v.Attr(part)
		if p == nil || err != nil {
			return nil
		}
		cursor = p
		depth += len(part) + 1
	}

	v, ok := cursor.(starlark.HasAttrs)
	if !ok {
		return nil
	}
	return findPrefix(line, depth, parts[len(parts)-1], c.attrNames(v))
}
