// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package ids generates sortable identifiers for publications and stored
// product statuses.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// New generates a new ULID.
func New() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// NewString generates a new ULID in its canonical string form.
func NewString() string {
	return New().String()
}

// Parse parses a ULID string.
func Parse(s string) (ulid.ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ulid.ULID{}, oops.In("ids").With("id", s).Wrapf(err, "invalid ULID")
	}
	return id, nil
}
