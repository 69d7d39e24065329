// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package pack defines the canonical in-memory shape of a traction-battery
// sample and the derived-field computations run over it once per medium
// cycle.
package pack

// Geometry constants for the supervised pack. These never change at
// runtime; they describe the physical wiring of the battery, not a
// configuration choice.
const (
	Modules         = 8
	GroupsPerModule = 13
	SeriesTotal     = Modules * GroupsPerModule // 104
	CellsPerGroup   = 8
)

// RThermalCPerWatt is the lumped thermal resistance used to estimate the
// hottest cell's core temperature from its surface temperature and ohmic
// heating. The source firmware carried two candidate values under the same
// symbol: 0.5 °C/W (a small prototype cell) and 3.0 °C/W (a cylindrical LFP
// cell in this pack's configuration). This build is the full 104S8P LFP
// pack, so 3.0 °C/W is the one in effect — see DESIGN.md open question 1.
const RThermalCPerWatt = 3.0

// CascadeStageThresholds are the estimated-core-temperature boundaries (°C)
// that separate the seven thermal-runaway cascade stages. Stage N is the
// count of thresholds strictly exceeded by t_core.
var CascadeStageThresholds = [6]float64{60, 80, 120, 150, 200, 300}

// CascadeStageNames labels CascadeStage() return values 0..6.
var CascadeStageNames = [7]string{
	"Normal",
	"Elevated",
	"SEI decomp",
	"Separator collapse",
	"Electrolyte decomp",
	"Cathode decomp",
	"Full runaway",
}

// CascadeStage returns the number of CascadeStageThresholds strictly
// exceeded by tCore, clamped to [0,6].
func CascadeStage(tCore float64) int {
	stage := 0
	for _, t := range CascadeStageThresholds {
		if tCore > t {
			stage++
		}
	}
	return stage
}
