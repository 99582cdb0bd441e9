// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apperr defines the application error taxonomy.
//
// Every failure that reaches the user is classified into one of five kinds:
// validation, network, auth, api, or storage. Classification decides
// whether a retry action is offered and whether the error auto-dismisses.
//
// # Key Types
//
//   - Kind: the error category
//   - Error: a classified error carrying an optional upstream status
//   - Record: the snapshot stored in the conversation store's error slot
//
// # Usage
//
//	rec := apperr.NewRecord(err, "send message")
//	if !rec.Retryable {
//	    time.AfterFunc(apperr.AutoDismissDelay, dismiss)
//	}
package apperr
