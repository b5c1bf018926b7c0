// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// minMlockLimitKB is the smallest RLIMIT_MEMLOCK that comfortably holds
// the key enclaves memguard allocates.
const minMlockLimitKB = 64

var memguardInitOnce sync.Once

// initSecureMemory initializes memguard once and logs whether the mlock
// limit can actually back locked pages. Insufficient limits degrade to a
// warning; memguard falls back to unlocked memory rather than failing.
func initSecureMemory() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()

		var rlimit unix.Rlimit
		if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
			slog.Warn("Could not determine mlock limit", "error", err)
			return
		}
		if rlimit.Cur == unix.RLIM_INFINITY {
			slog.Info("Secure key memory initialized", "mlock_limit", "unlimited")
			return
		}

		limitKB := int64(rlimit.Cur / 1024)
		if limitKB < minMlockLimitKB {
			slog.Warn("mlock limit low, API key pages may be swappable",
				"current_limit_kb", limitKB,
				"recommended_kb", minMlockLimitKB,
			)
			return
		}
		slog.Info("Secure key memory initialized", "mlock_limit_kb", limitKB)
	})
}

// loadAPIKey resolves an API key from an environment variable, falling
// back to a container secret file, and seals it in a memguard enclave so
// the plaintext never sits in ordinary heap memory between calls.
func loadAPIKey(envVar, secretPath string) (*memguard.Enclave, error) {
	if key := os.Getenv(envVar); key != "" {
		initSecureMemory()
		return memguard.NewEnclave([]byte(key)), nil
	}

	keyBytes, err := os.ReadFile(secretPath)
	if err != nil {
		return nil, fmt.Errorf("%s not set and secret not found at %s", envVar, secretPath)
	}
	slog.Info("Read API key from container secret", "path", secretPath)

	initSecureMemory()
	return memguard.NewEnclave([]byte(strings.TrimSpace(string(keyBytes)))), nil
}

// withAPIKey opens the enclave, hands the plaintext key to fn, and wipes
// the buffer before returning.
func withAPIKey(enclave *memguard.Enclave, fn func(key string) error) error {
	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}
