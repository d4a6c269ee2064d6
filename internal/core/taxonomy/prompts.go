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

// Package taxonomy classifies a channel's video titles. This file holds the
// prompt templates. Both templates pin the output to the exact wire schema
// through a complete JSON example and restate the coverage contract, which is
// the single most common model failure.
package taxonomy

const classifyPromptTemplate = `You are analyzing the complete list of video titles from one YouTube channel.

Organize every title into a hierarchy of series, themes and topics:
- A SERIES is a recurring title structure the channel repeats across many videos (for example "X for Sleep" or "X But Every Mistake Counts"). Series names must reflect that recurring structure.
- A THEME is a generalization of related videos inside a series. Themes must be distinct within their series.
- A TOPIC is a single video. The topic name must be an exact contiguous phrase taken from the title, and the example must be the complete title exactly as given.

Hard requirements:
1. Every input title appears as exactly one topic example. Do not drop, merge, reword or deduplicate titles. If the same title appears twice in the input, produce two topics.
2. Respond with JSON only, no commentary, exactly in this shape:
{{.ExampleJSON}}

Video titles, one per line:
{{.Titles}}
`

const mergePromptTemplate = `You are extending an existing hierarchy of series, themes and topics for one YouTube channel with a new batch of video titles.

Current hierarchy:
{{.RunningJSON}}

Rules for placing each new title:
1. Prefer an exact match: if the title fits an existing series and theme, add it there.
2. Otherwise prefer the most similar existing series or theme over creating a new one.
3. Only create a new series when the title's recurring structure matches nothing in the hierarchy.
- A TOPIC is a single video. The topic name must be an exact contiguous phrase taken from the title, and the example must be the complete title exactly as given.

Hard requirements:
1. Every new title appears as exactly one topic example. Do not drop, merge, reword or deduplicate titles.
2. Return ONLY the series, themes and topics for the NEW titles (existing topics must not be repeated), as JSON in the same shape as the current hierarchy, with no commentary.

New video titles, one per line:
{{.Titles}}
`
