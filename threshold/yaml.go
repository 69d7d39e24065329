// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package threshold

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v2"
)

// Load reads a yaml override document and applies it on top of Default(),
// then validates the result. Any field absent from the document keeps its
// default value, since Thresholds is decoded directly into the defaulted
// struct rather than into a zero value.
func Load(r io.Reader) (Thresholds, error) {
	t := Default()

	data, err := io.ReadAll(r)
	if err != nil {
		return Thresholds{}, fmt.Errorf("threshold: reading override: %w", err)
	}

	if err := yaml.Unmarshal(data, &t); err != nil {
		return Thresholds{}, fmt.Errorf("threshold: parsing override: %w", err)
	}

	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}

	return t, nil
}

// Marshal renders t as yaml, in the same tagged field order as the struct
// definition. Used by cmd/thresholdgen to emit the default table for
// operators to copy and override.
func Marshal(t Thresholds) ([]byte, error) {
	return yaml.Marshal(t)
}
