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

// Package errors defines the error taxonomy of the feasibility study runner.
// Every failure surfaced by the runner carries one of these RFC codes so that
// callers and site operators can classify failures without parsing messages.
package errors

import (
	"github.com/pingcap/errors"
)

// Errors of the study runner core.
var (
	// ErrInvalidConfig is returned when the study configuration fails
	// validation before any phase runs.
	ErrInvalidConfig = errors.Normalize(
		"invalid study configuration: %s",
		errors.RFCCodeText("FEAS:ErrInvalidConfig"),
	)
	// ErrPrepareEnvironment is returned when the output folder or the
	// temp storage folder cannot be created. Fatal; no phase has run and
	// the run log sink was never registered.
	ErrPrepareEnvironment = errors.Normalize(
		"prepare study environment failed",
		errors.RFCCodeText("FEAS:ErrPrepareEnvironment"),
	)
	// ErrLogSinkRegistered is returned when the run log sink slot is
	// already held by another run in this process.
	ErrLogSinkRegistered = errors.Normalize(
		"log sink already registered: %s",
		errors.RFCCodeText("FEAS:ErrLogSinkRegistered"),
	)
	// ErrConnectWarehouse is returned when the warehouse connection for
	// cohort construction cannot be opened.
	ErrConnectWarehouse = errors.Normalize(
		"connect to warehouse failed",
		errors.RFCCodeText("FEAS:ErrConnectWarehouse"),
	)
	// ErrCohortConstruction wraps a failure of the cohort construction
	// phase. The phase connection is always closed before this surfaces.
	ErrCohortConstruction = errors.Normalize(
		"cohort construction failed",
		errors.RFCCodeText("FEAS:ErrCohortConstruction"),
	)
	// ErrDiagnostics wraps a failure of the diagnostics phase.
	ErrDiagnostics = errors.Normalize(
		"study diagnostics failed",
		errors.RFCCodeText("FEAS:ErrDiagnostics"),
	)
)
