// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	stderrors "errors"

	"github.com/pingcap/errors"
)

// WrapError generates a new error based on the given *errors.Error, wrapping
// err as the cause. Returns nil when err is nil, unlike Wrap in
// pingcap/errors, so call sites can wrap unconditionally.
func WrapError(rfcError *errors.Error, err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return rfcError.Wrap(err).GenWithStackByArgs(args...)
}

// RFCCode extracts the RFC error code from an error, walking the cause chain
// built by Wrap and Annotate.
func RFCCode(err error) (errors.RFCErrorCode, bool) {
	if err == nil {
		return "", false
	}

	type rfcCoder interface {
		RFCCode() errors.RFCErrorCode
	}
	if coder, ok := err.(rfcCoder); ok {
		return coder.RFCCode(), true
	}

	type causer interface {
		Cause() error
	}
	if cerr, ok := err.(causer); ok {
		if code, ok := RFCCode(cerr.Cause()); ok {
			return code, true
		}
	}

	if uerr := stderrors.Unwrap(err); uerr != nil {
		return RFCCode(uerr)
	}
	return "", false
}

// IsEnvironmentError reports whether err came from environment preparation,
// meaning no phase has run and no log sink was registered.
func IsEnvironmentError(err error) bool {
	return ErrPrepareEnvironment.Equal(errors.Cause(err)) ||
		ErrInvalidConfig.Equal(errors.Cause(err))
}
