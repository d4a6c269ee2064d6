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

package script

// breakdownPromptTemplate analyzes one competitor transcript into a reusable
// script template. All channel and host identity must come back as
// placeholders so the template transfers to the user's own channel.
const breakdownPromptTemplate = `You are a YouTube script analyst. Analyze the transcript below and produce a
complete script breakdown that another writer could use as a template for a
new video in the same style.

Video title: {{.Title}}
Video description: {{.Description}}
Video duration: {{.Duration}}

Your breakdown MUST contain these sections, in order:

1. VIDEO STRUCTURE: every structural segment of the video with its start and
   end timestamp in HH:MM:SS form and its purpose. No segment may be longer
   than 10 minutes; split longer stretches into parts.
2. SEGMENT OUTLINE TEMPLATE: a reusable outline skeleton derived from the
   structure, with a one-line description of what belongs in each slot.
3. TRANSITION TECHNIQUES: 3 to 5 techniques this creator uses to move
   between segments, each with a short example from the transcript.
4. RECURRING ELEMENTS: 3 to 5 elements that repeat across the video
   (catchphrases, callbacks, audience addresses, sponsor reads).
5. SCRIPT TEMPLATE: a fill-in-the-blanks template for writing a new script
   in this style, using the segment outline.
6. WRITING STYLE ANALYSIS: sentence length, vocabulary level, humor, pacing,
   how the creator builds tension and payoffs.

Rules:
- Replace every mention of the creator's channel name with [CHANNEL_NAME]
  and every mention of the host's name with [HOST_NAME]. Never leave the
  real names in the breakdown.
- Decide whether this video is clip-reactive: built around reacting to
  external clips or footage rather than original narration.

Respond with ONLY a JSON object:
{"is_clip_reactive": <true|false>, "script_breakdown": "<the full breakdown text>"}

Transcript:
{{.Transcript}}`

// breakdownMergePromptTemplate folds several per-video analyses into one
// unified template.
const breakdownMergePromptTemplate = `You are a YouTube script analyst. Below are several script breakdowns of
different videos from the same theme. Merge them into ONE unified breakdown
with the same six sections (VIDEO STRUCTURE, SEGMENT OUTLINE TEMPLATE,
TRANSITION TECHNIQUES, RECURRING ELEMENTS, SCRIPT TEMPLATE, WRITING STYLE
ANALYSIS).

Rules:
- Keep timing detail: where the analyses disagree on segment lengths, give
  the typical range.
- Keep the strongest techniques and recurring elements from across all
  analyses; drop one-off quirks.
- Keep the [CHANNEL_NAME] and [HOST_NAME] placeholders exactly as written.
- The merged video is clip-reactive if the analyses describe a format built
  around reacting to external clips.

Respond with ONLY a JSON object:
{"is_clip_reactive": <true|false>, "script_breakdown": "<the merged breakdown text>"}

{{.Analyses}}`

// outlinePromptTemplate produces the timestamped plot outline. The numbered
// Video Structure lines are the machine-readable part; the parser depends on
// their exact shape.
const outlinePromptTemplate = `You are a YouTube plot designer. Using the script breakdown below as your
structural template, design the plot outline for a new video.

New video title: {{.Title}}
Total video duration: {{.TotalDuration}}

Produce a section titled "Video Structure" containing a numbered list of
segments. Each line MUST follow this exact format:

1. Segment Name (HH:MM:SS - HH:MM:SS, Duration: HH:MM:SS)

Under each numbered line, add 2 to 4 bullet points (lines starting with "-")
describing the key story beats of that segment.

Hard requirements:
- Timestamps are exact HH:MM:SS. The first segment starts at 00:00:00, each
  segment starts where the previous one ends, and the last segment ends at
  exactly {{.TotalDuration}}.
- Segment names are 2 to 6 words and specific to this video's story. Never
  use generic labels such as "Introduction", "Main Content", "Segment 1",
  "Part 2", "Body", "Middle Section", "Conclusion" or "Outro".
- The opening hook segment is at most 20 seconds long.
- No segment is longer than 10 minutes. Split longer story arcs into
  multiple named segments.

Script breakdown to follow:
{{.Breakdown}}`

// outlineContinuationPrompt recovers from a model that stops mid-list and
// asks permission to continue.
const outlineContinuationPrompt = `Continue ONLY the Video Structure section from exactly where it stopped.
Do not repeat any segment already listed and do not add any other section.
Here is what you have produced so far:

%s`

// scriptSegmentPromptTemplate writes the dialogue for one outline segment.
// The breakdown rides in a separate cacheable prefix part, so this template
// carries only the per-segment variables.
const scriptSegmentPromptTemplate = `Write the full spoken script for ONE segment of a YouTube video.

Video title: {{.Title}}
Segment: {{.SegmentName}} ({{.SegmentWindow}})
Segment story beats:
{{.KeyPoints}}

Length: write at least {{.MinWords}} words, targeting {{.TargetWords}} words.
This segment must fill {{.Duration}} of screen time at a natural speaking
pace, so do not come up short.

Rules:
- Follow the SCRIPT TEMPLATE and WRITING STYLE ANALYSIS from the breakdown
  above. Match the creator's voice exactly.
- Format every spoken line as "[{{.HostTag}}]: <dialogue>".
- Write only dialogue to be read aloud. No stage directions, no camera
  notes, no meta commentary about the writing, no word counts.
- Cover every story beat listed above, in order.
{{.SponsorBlock}}{{.ChunkBlock}}`

// scriptSponsorInstructions is injected for the segment immediately after
// the hook when the project carries a sponsor.
const scriptSponsorInstructions = `- After the opening beat of this segment, weave in a 45 to 60 second
  sponsor read for %s in the creator's own style, then transition back to
  the story.
`
