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
// deterministic side of the pipeline: wire merging, conversion to the
// persistent tree, and the coverage repair pass. Nothing here calls a model,
// so these functions carry the invariants the extractor must not leave to
// model behavior.
package taxonomy

import (
	"strings"

	"github.com/creatorscope/channelintel/internal/core/model"
)

// MiscellaneousTheme is the theme that receives titles the model dropped.
const MiscellaneousTheme = "Miscellaneous"

// mergeWire folds src into dst. Series are keyed by name, themes are keyed
// by name within their series, and topics are concatenated without
// deduplication so input multiplicity survives.
func mergeWire(dst, src *model.TaxonomyWire) {
	for _, series := range src.Series {
		target := findSeriesWire(dst, series.Name)
		if target == nil {
			dst.Series = append(dst.Series, series)
			continue
		}
		for _, theme := range series.Themes {
			targetTheme := findThemeWire(target, theme.Name)
			if targetTheme == nil {
				target.Themes = append(target.Themes, theme)
				continue
			}
			targetTheme.Topics = append(targetTheme.Topics, theme.Topics...)
		}
	}
}

func findSeriesWire(wire *model.TaxonomyWire, name string) *model.SeriesWire {
	for _, s := range wire.Series {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func findThemeWire(series *model.SeriesWire, name string) *model.ThemeWire {
	for _, t := range series.Themes {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// wireToTree converts the wire hierarchy into the persistent tree, joining
// topics back to their source videos by title so view counts and video ids
// travel with the taxonomy. Duplicate titles consume source videos in input
// order.
func wireToTree(wire *model.TaxonomyWire, videos []*model.Video) *model.TaxonomyTree {
	remaining := videosByTitle(videos)

	tree := &model.TaxonomyTree{}
	for _, seriesWire := range wire.Series {
		series := &model.Series{Name: seriesWire.Name}
		for _, themeWire := range seriesWire.Themes {
			theme := &model.Theme{Name: themeWire.Name}
			for _, topicWire := range themeWire.Topics {
				topic := &model.Topic{
					Name:         topicWire.Name,
					ExampleTitle: topicWire.Example,
				}
				if video := takeVideo(remaining, topicWire.Example); video != nil {
					topic.Views = video.Views
					topic.VideoID = video.VideoID
					topic.ChannelID = video.ChannelID
					topic.ThumbnailURL = video.ThumbnailURL
					topic.PublishedAt = video.PublishedAt
				}
				theme.Topics = append(theme.Topics, topic)
			}
			series.Themes = append(series.Themes, theme)
		}
		tree.Series = append(tree.Series, series)
	}
	return tree
}

// ensureCoverage appends every input title missing from the tree to the
// Miscellaneous theme of the first series, preserving multiplicity. When
// every batch failed and the tree is empty, a series named after the channel
// is created to hold them.
func ensureCoverage(tree *model.TaxonomyTree, titles []string, videos []*model.Video, channelTitle string) {
	counts := make(map[string]int, len(titles))
	for _, title := range titles {
		counts[title]++
	}
	for _, series := range tree.Series {
		for _, theme := range series.Themes {
			for _, topic := range theme.Topics {
				counts[topic.ExampleTitle]--
			}
		}
	}

	var missing []string
	for _, title := range titles {
		if counts[title] > 0 {
			counts[title]--
			missing = append(missing, title)
		}
	}
	if len(missing) == 0 {
		return
	}

	if len(tree.Series) == 0 {
		name := channelTitle
		if name == "" {
			name = "Uncategorized"
		}
		tree.Series = append(tree.Series, &model.Series{Name: name})
	}
	first := tree.Series[0]
	theme := first.FindTheme(MiscellaneousTheme)
	if theme == nil {
		theme = &model.Theme{Name: MiscellaneousTheme}
		first.Themes = append(first.Themes, theme)
	}

	remaining := videosByTitle(videos)
	for _, title := range missing {
		topic := &model.Topic{
			Name:         topicNameFromTitle(title),
			ExampleTitle: title,
		}
		if video := takeVideo(remaining, title); video != nil {
			topic.Views = video.Views
			topic.VideoID = video.VideoID
			topic.ChannelID = video.ChannelID
			topic.ThumbnailURL = video.ThumbnailURL
			topic.PublishedAt = video.PublishedAt
		}
		theme.Topics = append(theme.Topics, topic)
	}
}

// topicNameFromTitle derives a topic name from the first three words of the
// title.
func topicNameFromTitle(title string) string {
	words := strings.Fields(title)
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " ")
}

func videosByTitle(videos []*model.Video) map[string][]*model.Video {
	byTitle := make(map[string][]*model.Video, len(videos))
	for _, v := range videos {
		byTitle[v.Title] = append(byTitle[v.Title], v)
	}
	return byTitle
}

// takeVideo pops the next source video for the title, so duplicate titles
// map to distinct videos.
func takeVideo(byTitle map[string][]*model.Video, title string) *model.Video {
	queue := byTitle[title]
	if len(queue) == 0 {
		return nil
	}
	byTitle[title] = queue[1:]
	return queue[0]
}
