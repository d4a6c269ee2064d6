// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics computes derived numbers from stored state. This file
// implements the revenue estimate shown in the discovery UI: a base RPM
// chosen by average video length, multiplied by a niche factor looked up
// from the channel's niche label. The table values are industry rule-of-
// thumb figures, not measurements; the estimate is a ranking signal only.
package metrics

import "strings"

// Base RPM (revenue per thousand views, USD) by average video length bucket.
// Longer videos carry more mid-roll slots.
const (
	rpmUnder20Min  = 3.5
	rpm20To45Min   = 5.0
	rpm45To90Min   = 6.5
	rpm90To180Min  = 14.5
	rpmOver180Min  = 23.5
	defaultNicheMultiplier = 0.8
)

// nicheMultipliers adjusts the base RPM by content niche. Keys are matched
// case-insensitively after trimming.
var nicheMultipliers = map[string]float64{
	"3d printing":           1.1,
	"accounting":            2.6,
	"affiliate marketing":   2.4,
	"animation":             0.8,
	"art":                   0.7,
	"artificial intelligence": 2.2,
	"asmr":                  0.5,
	"astrology":             0.6,
	"automotive":            1.2,
	"aviation":              1.4,
	"beauty":                1.0,
	"biography":             0.9,
	"blockchain":            2.8,
	"board games":           0.7,
	"bodybuilding":          1.1,
	"books":                 0.8,
	"business":              2.5,
	"camping":               0.9,
	"cars":                  1.2,
	"celebrity news":        0.6,
	"coding":                2.3,
	"comedy":                0.6,
	"commentary":            0.7,
	"cooking":               1.0,
	"credit cards":          3.2,
	"crime":                 1.0,
	"cryptocurrency":        2.8,
	"dance":                 0.5,
	"dating advice":         1.1,
	"diy":                   1.1,
	"documentary":           1.2,
	"drama":                 0.6,
	"dropshipping":          2.4,
	"ecommerce":             2.5,
	"education":             1.5,
	"electronics":           1.3,
	"engineering":           1.4,
	"entertainment":         0.7,
	"entrepreneurship":      2.4,
	"fashion":               1.0,
	"film":                  0.8,
	"finance":               3.0,
	"fishing":               0.9,
	"fitness":               1.2,
	"food":                  1.0,
	"gaming":                0.6,
	"gardening":             1.0,
	"geography":             0.9,
	"health":                1.6,
	"hiking":                0.8,
	"history":               1.0,
	"home improvement":      1.3,
	"horror":                0.6,
	"insurance":             3.4,
	"interior design":       1.2,
	"investing":             3.1,
	"language learning":     1.3,
	"law":                   2.7,
	"lifestyle":             0.9,
	"luxury":                1.5,
	"makeup":                1.0,
	"marketing":             2.5,
	"mathematics":           1.2,
	"medicine":              1.9,
	"meditation":            0.8,
	"military":              1.1,
	"motivation":            0.9,
	"movies":                0.7,
	"music":                 0.5,
	"mystery":               0.8,
	"nature":                0.9,
	"news":                  0.8,
	"nutrition":             1.4,
	"parenting":             1.1,
	"personal development":  1.4,
	"personal finance":      3.0,
	"pets":                  0.8,
	"philosophy":            0.9,
	"photography":           1.2,
	"podcast":               0.9,
	"politics":              0.9,
	"productivity":          1.6,
	"programming":           2.3,
	"psychology":            1.2,
	"real estate":           2.9,
	"relationships":         0.9,
	"religion":              0.7,
	"retirement":            2.8,
	"reviews":               1.2,
	"saas":                  2.6,
	"science":               1.3,
	"self improvement":      1.4,
	"sleep":                 0.7,
	"software":              2.2,
	"space":                 1.2,
	"sports":                0.8,
	"stock market":          3.1,
	"tax":                   2.9,
	"technology":            1.8,
	"travel":                1.1,
	"true crime":            1.0,
	"vlog":                  0.7,
	"weather":               0.7,
	"woodworking":           1.1,
	"yoga":                  1.0,
}

// BaseRPM returns the RPM for an average video length in seconds.
func BaseRPM(avgDurationSeconds float64) float64 {
	minutes := avgDurationSeconds / 60
	switch {
	case minutes >= 180:
		return rpmOver180Min
	case minutes >= 90:
		return rpm90To180Min
	case minutes >= 45:
		return rpm45To90Min
	case minutes >= 20:
		return rpm20To45Min
	default:
		return rpmUnder20Min
	}
}

// NicheMultiplier looks up the niche factor, defaulting for unknown niches.
func NicheMultiplier(niche string) float64 {
	if m, ok := nicheMultipliers[strings.ToLower(strings.TrimSpace(niche))]; ok {
		return m
	}
	return defaultNicheMultiplier
}

// EstimateMonthlyRevenue estimates a channel's monthly revenue in USD from
// its monthly views, average video duration, and niche label.
func EstimateMonthlyRevenue(monthlyViews, avgDurationSeconds float64, niche string) float64 {
	rpm := BaseRPM(avgDurationSeconds) * NicheMultiplier(niche)
	return monthlyViews / 1000 * rpm
}
