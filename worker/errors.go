// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"

	"mongolark.io/errkind"
)

const errorDomain = "mongolark.io"

var kindCodes = map[errkind.Kind]codes.Code{
	errkind.InvalidArgument:        codes.InvalidArgument,
	errkind.ClientNotFound:         codes.NotFound,
	errkind.ScriptParseError:       codes.InvalidArgument,
	errkind.ScriptRuntimeError:     codes.Aborted,
	errkind.ConversionError:        codes.FailedPrecondition,
	errkind.DatabaseOperationError: codes.Unavailable,
	errkind.PersistenceError:       codes.Internal,
}

// errorStatus creates a status from an error. The kind travels as the
// reason of an ErrorInfo, the backtrace of a Starlark evaluation error
// as a DebugInfo.
func errorStatus(err error) *status.Status {
	if err == nil {
		return nil
	}
	kind := errkind.KindOf(err)
	if st, ok := status.FromError(err); ok && kind == errkind.Unknown {
		return st
	}

	code, ok := kindCodes[kind]
	if !ok {
		code = codes.Unknown
	}
	details := []protoadapt.MessageV1{
		&errdetails.ErrorInfo{
			Reason: kind.String(),
			Domain: errorDomain,
		},
	}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		details = append(details, &errdetails.DebugInfo{
			StackEntries: strings.Split(evalErr.Backtrace(), "\n"),
			Detail:       "<script>",
		})
	}

	st, err := status.New(code, err.Error()).WithDetails(details...)
	if err != nil {
		// If this errored, it will always error
		// here, so better panic so we can figure
		// out why than have this silently passing.
		panic(fmt.Sprintf("Unexpected error: %v", err))
	}
	return st
}

// statusError restores the kind of an error returned by a server.
func statusError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, detail := range st.Details() {
		info, ok := detail.(*errdetails.ErrorInfo)
		if !ok || info.Domain != errorDomain {
			continue
		}
		for k := errkind.Unknown; k <= errkind.PersistenceError; k++ {
			if k.String() == info.Reason {
				return errkind.New(k, "", err)
			}
		}
	}
	return err
}
