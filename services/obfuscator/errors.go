// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package obfuscator

import "errors"

// Sentinel errors for the obfuscator service.
var (
	// ErrInvalidNumber indicates the input is not a non-negative integer.
	ErrInvalidNumber = errors.New("number must be a non-negative integer")

	// ErrDepthOutOfRange indicates a depth outside [0, MaxDepth].
	ErrDepthOutOfRange = errors.New("depth out of range")

	// ErrNumberTooLarge indicates the input exceeds the configured digit limit.
	ErrNumberTooLarge = errors.New("number too large")

	// ErrBatchTooLarge indicates a batch longer than MaxBatch.
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrArchiveDisabled indicates a lookup while no archive is configured.
	ErrArchiveDisabled = errors.New("archive disabled")

	// ErrRenderUnavailable indicates PNG rendering was requested without a renderer.
	ErrRenderUnavailable = errors.New("png rendering unavailable")
)
