// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/peterh/liner"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"mongolark.io/docvalue"
	"mongolark.io/errkind"
	"mongolark.io/starlib"
)

// read reads one compound statement into buf.
func read(line *liner.State, buf *bytes.Buffer) error {
	buf.Reset()

	// suggest
	suggest := func(line string) string {
		var noSpaces int
		for _, c := range line {
			if c == ' ' {
				noSpaces += 1
			} else {
				break
			}
		}
		if strings.HasSuffix(line, ":") {
			noSpaces += 4
		}
		return strings.Repeat(" ", noSpaces)
	}

	var eof bool
	var previous string
	prompt := ">>> "
	readline := func() ([]byte, error) {
		text := suggest(previous)
		s, err := line.PromptWithSuggestion(prompt, text, -1)
		if err != nil {
			switch err {
			case io.EOF:
				eof = true
			case liner.ErrPromptAborted:
				return []byte("\n"), nil
			}
			return nil, err
		}
		prompt = "... "
		previous = s
		line.AppendHistory(s)
		out := []byte(s + "\n")
		if _, err := buf.Write(out); err != nil {
			return nil, err
		}
		return out, nil
	}

	if _, err := syntax.ParseCompoundStmt("<stdin>", readline); err != nil {
		if eof {
			return io.EOF
		}
		starlib.FprintErr(os.Stderr, errkind.New(errkind.ScriptParseError, "", err))
		return err
	}
	return nil
}

// remoteCompleter completes the collections of db.
func remoteCompleter(ctx context.Context, cmds commands, clientID, db string) liner.Completer {
	return func(line string) []string {
		i := strings.LastIndex(line, "db.")
		if i < 0 {
			return nil
		}
		head, pfx := line[:i+3], line[i+3:]
		if strings.ContainsAny(pfx, ".( ") {
			return nil
		}
		names, err := cmds.ListCollections(ctx, clientID, db)
		if err != nil {
			return nil
		}
		var c []string
		for _, name := range names {
			if strings.HasPrefix(name, pfx) {
				c = append(c, head+name)
			}
		}
		return c
	}
}

func readHistory(line *liner.State, name string) error {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = line.ReadHistory(f)
	return err
}

func writeHistory(line *liner.State, name string) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := line.WriteHistory(f); err != nil {
		f.Close() //nolint
		return err
	}
	return f.Close()
}

// shell runs a REPL on the connection. In process sessions keep their
// globals between statements, remote statements run independently.
func shell(ctx context.Context, cmds commands, flags ConnFlags, historyFile string) (err error) {
	log := logr.FromContextOrDiscard(ctx)

	c, err := connect(ctx, cmds, flags)
	if err != nil {
		return err
	}
	defer func() {
		if derr := cmds.Disconnect(context.Background(), c.ID); err == nil {
			err = derr
		}
	}()
	fmt.Fprintf(os.Stderr, "connected to %s, databases: %s\n", flags.DB, strings.Join(c.DBs, ", "))

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if historyFile != "" {
		if err := readHistory(line, historyFile); err != nil {
			log.Error(err, "reading history", "file", historyFile)
		}
	}

	var eval func(src string) error
	if l, ok := cmds.(*local); ok {
		s, err := l.host.NewSession(ctx, c.ID, flags.DB, "<stdin>")
		if err != nil {
			return err
		}
		defer s.Close()

		line.SetCompleter(s.Completer().Complete)
		eval = func(src string) error {
			v, out, err := s.Eval(ctx, src)
			os.Stdout.WriteString(out)
			if err != nil {
				return err
			}
			if v != starlark.None {
				fmt.Println(v)
			}
			return nil
		}
	} else {
		line.SetCompleter(remoteCompleter(ctx, cmds, c.ID, flags.DB))
		eval = func(src string) error {
			res, err := cmds.RunScript(ctx, c.ID, flags.DB, src)
			if err != nil {
				return err
			}
			os.Stdout.WriteString(res.Output)
			if res.Value == nil {
				return nil
			}
			b, err := docvalue.MarshalExtJSON(res.Value, false)
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}
	}

	var buf bytes.Buffer
	for ctx.Err() == nil {
		if err := read(line, &buf); err != nil {
			if err == io.EOF {
				break
			}
			continue
		}
		if strings.TrimSpace(buf.String()) == "" {
			continue
		}
		if err := eval(buf.String()); err != nil {
			starlib.FprintErr(os.Stderr, err)
		}
	}
	os.Stdout.WriteString("\n") // break EOF

	if historyFile != "" {
		if err := writeHistory(line, historyFile); err != nil {
			return err
		}
	}
	return nil
}
