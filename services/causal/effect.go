// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package causal

import "sync"

// minEffectRows is the smallest dataset a model will fit against. Below
// this, Build returns ErrInsufficientData and any prior fit is kept.
const minEffectRows = 10

// MeanDifferenceModel estimates the average treatment effect as the
// difference between treated and untreated outcome means.
//
// # Description
//
// An honest default estimator, not a port of any particular causal
// inference library. It answers "how much higher is the outcome when the
// treatment is present" and nothing more; confounder adjustment is out
// of scope.
//
// # Thread Safety
//
// Build and EstimateEffect are safe for concurrent use.
type MeanDifferenceModel struct {
	mu     sync.Mutex
	effect float64
	built  bool
}

// NewMeanDifferenceModel returns an unfitted model.
func NewMeanDifferenceModel() *MeanDifferenceModel {
	return &MeanDifferenceModel{}
}

// Build fits the model against a dataset snapshot.
//
// # Outputs
//
//   - error: ErrInsufficientData when rows has fewer than 10 entries or
//     lacks both treated and untreated rows. A prior fit survives a
//     failed rebuild.
func (m *MeanDifferenceModel) Build(rows []EffectRow) error {
	if len(rows) < minEffectRows {
		return ErrInsufficientData
	}

	var (
		treatedSum, controlSum     float64
		treatedCount, controlCount int
	)
	for _, row := range rows {
		if row.Treatment {
			treatedSum += row.Outcome
			treatedCount++
		} else {
			controlSum += row.Outcome
			controlCount++
		}
	}
	if treatedCount == 0 || controlCount == 0 {
		return ErrInsufficientData
	}

	effect := treatedSum/float64(treatedCount) - controlSum/float64(controlCount)

	m.mu.Lock()
	m.effect = effect
	m.built = true
	m.mu.Unlock()
	return nil
}

// EstimateEffect returns the fitted treatment-effect magnitude.
func (m *MeanDifferenceModel) EstimateEffect() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.built {
		return 0, ErrModelNotBuilt
	}
	return m.effect, nil
}
