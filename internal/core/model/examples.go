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

// Package model defines the core data structures for the application.
// This file provides fully-populated example objects that are serialized into
// prompts as few-shot guidance. Giving the model a complete, well-formed
// example of the expected JSON significantly improves the reliability of its
// structured output.
package model

// GetExampleTaxonomy returns a small, well-formed taxonomy in the exact wire
// shape the classifier must produce. It is embedded in the classification
// prompt as the output example.
func GetExampleTaxonomy() *TaxonomyWire {
	return &TaxonomyWire{
		Series: []*SeriesWire{
			{
				Name: "History for Sleep",
				Themes: []*ThemeWire{
					{
						Name: "Ancient Civilizations",
						Topics: []*TopicWire{
							{Name: "Fall of Rome", Example: "The Fall of Rome Explained for Sleep"},
							{Name: "Egyptian Dynasties", Example: "Egyptian Dynasties to Fall Asleep To"},
						},
					},
					{
						Name: "Mythology",
						Topics: []*TopicWire{
							{Name: "Greek Mythology", Example: "Greek Mythology for Sleep"},
						},
					},
				},
			},
			{
				Name: "X But Every Mistake Counts",
				Themes: []*ThemeWire{
					{
						Name: "Cooking Challenges",
						Topics: []*TopicWire{
							{Name: "Baking Bread", Example: "Baking Bread But Every Mistake Costs $100"},
						},
					},
				},
			},
		},
	}
}

// GetExampleSharedSeries returns the expected shape for the shared-series
// matching call.
func GetExampleSharedSeries() *SharedSeriesWire {
	return &SharedSeriesWire{
		MatchingTitles: []string{
			"Greek Mythology for Sleep",
			"Norse Mythology for Sleep",
			"Roman Mythology for Sleep",
		},
	}
}
