// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend forwards authenticated calls to the remote REST service.
//
// Every call returns an Envelope {success, data, error, status}; network
// failures become a generic 500 envelope instead of an error value. Only the
// headers in ForwardedHeaders are copied to upstream.
package backend
