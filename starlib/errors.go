// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlib

import (
	"errors"
	"fmt"
	"io"

	"go.starlark.net/starlark"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"

	"mongolark.io/errkind"
)

type statusError interface{ GRPCStatus() *status.Status }

// FprintErr writes err for a terminal: the Starlark backtrace of script
// errors, the debug details of remote errors, the kind of everything else.
func FprintErr(w io.Writer, err error) {
	var (
		evalErr *starlark.EvalError
		statErr statusError
	)
	switch {
	case errors.As(err, &evalErr):
		fmt.Fprintln(w, evalErr.Backtrace())
	case errors.As(err, &statErr):
		s := statErr.GRPCStatus()
		p := s.Proto()
		for _, detail := range p.Details {
			m, err := detail.UnmarshalNew()
			if err != nil {
				fmt.Fprintf(w, "InternalError: %v\n", err)
				continue
			}
			switch m := m.(type) {
			case *errdetails.DebugInfo:
				for _, se := range m.StackEntries {
					fmt.Fprintln(w, se)
				}
			case *errdetails.ErrorInfo:
				fmt.Fprintf(w, "%s: %s\n", m.Reason, s.Message())
			default:
				fmt.Fprintf(w, "%v\n", m)
			}
		}
		if len(p.Details) == 0 {
			fmt.Fprintf(w, "Error: %v: %s\n", s.Code(), s.Message())
		}
	default:
		fmt.Fprintf(w, "%s: %v\n", errkind.KindOf(err), err)
	}
}
