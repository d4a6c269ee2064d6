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

package commands

import (
	gocontext "context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorscope/channelintel/internal/cloud"
	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/discovery"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/llm"
	"github.com/creatorscope/channelintel/internal/core/model"
	"github.com/creatorscope/channelintel/internal/core/script"
	"github.com/creatorscope/channelintel/internal/core/thumbnail"
)

// fakeSearch is a canned search.Service.
type fakeSearch struct {
	channelIDs  map[string]string
	channels    map[string]*model.ChannelStats
	videos      map[string][]*model.Video
	byVideoID   map[string]*model.Video
	transcripts map[string]*model.Transcript

	transcriptCalls int
}

func (f *fakeSearch) ResolveChannel(_ gocontext.Context, channelURL string) (string, error) {
	id, ok := f.channelIDs[channelURL]
	if !ok {
		return "", errs.New(errs.KindNotFound, "no channel for %q", channelURL)
	}
	return id, nil
}

func (f *fakeSearch) FetchChannel(_ gocontext.Context, channelID string) (*model.ChannelStats, error) {
	stats, ok := f.channels[channelID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "no channel %s", channelID)
	}
	return stats, nil
}

func (f *fakeSearch) ListChannelVideos(_ gocontext.Context, channelID string, _ int) ([]*model.Video, error) {
	return f.videos[channelID], nil
}

func (f *fakeSearch) Search(_ gocontext.Context, _ string, _ int) ([]*model.SearchResult, error) {
	return nil, nil
}

func (f *fakeSearch) GetVideo(_ gocontext.Context, videoID string) (*model.Video, error) {
	video, ok := f.byVideoID[videoID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "no video %s", videoID)
	}
	return video, nil
}

func (f *fakeSearch) GetTranscript(_ gocontext.Context, videoID string) (*model.Transcript, error) {
	f.transcriptCalls++
	transcript, ok := f.transcripts[videoID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "no transcript for %s", videoID)
	}
	return transcript, nil
}

// fakeJSON answers GenerateJSON calls from a scripted list of raw JSON
// payloads, unmarshaled into whatever wire struct the caller passes.
type fakeJSON struct {
	replies []string
	err     error
	calls   int
}

func (f *fakeJSON) GenerateJSON(_ gocontext.Context, _ llm.Request, out any) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	reply := f.replies[len(f.replies)-1]
	if f.calls <= len(f.replies) {
		reply = f.replies[f.calls-1]
	}
	if err := json.Unmarshal([]byte(reply), out); err != nil {
		return nil, err
	}
	return &llm.Response{Text: reply}, nil
}

// fakeText answers GenerateText with a single canned reply.
type fakeText struct {
	reply string
	calls int
}

func (f *fakeText) GenerateText(_ gocontext.Context, _ llm.Request) (*llm.Response, error) {
	f.calls++
	return &llm.Response{Text: f.reply, Usage: model.TokenUsage{InputTokens: 100, OutputTokens: 50}, Cost: 0.01}, nil
}

func (f *fakeText) CostOf(_ model.TokenUsage) float64 { return 0.01 }

func newChainContext(project *model.Project) cor.Context {
	c := cor.NewBaseContext()
	c.SetContext(gocontext.Background())
	if project != nil {
		c.Add(cor.CtxIn, project)
	}
	return c
}

func heistTaxonomy() *model.TaxonomyTree {
	return &model.TaxonomyTree{Series: []*model.Series{{
		Name: "Heists",
		Themes: []*model.Theme{{
			Name: "Bank Jobs",
			Topics: []*model.Topic{
				{Name: "Bank Job 1", ExampleTitle: "The Bank Job That Fooled Everyone", VideoID: "vid-1"},
				{Name: "Bank Job 2", ExampleTitle: "Inside the Vault Heist", VideoID: "vid-2"},
				{Name: "Bank Job 3", ExampleTitle: "The Perfect Tunnel Robbery", VideoID: "vid-3"},
			},
		}},
	}}}
}

func testProject() *model.Project {
	return &model.Project{
		ID:      "p-1",
		Name:    "Vault Stories Intel",
		OwnerID: "user-1",
		SeedChannel: model.ChannelStats{
			ChannelID: "UCseedseedseedseedseed00",
			Title:     "Vault Stories",
		},
		Taxonomy: heistTaxonomy(),
		Status:   model.ProjectStatusDiscovered,
	}
}

func TestSeedChannelResolverBuildsProject(t *testing.T) {
	search := &fakeSearch{
		channelIDs: map[string]string{"https://youtube.com/@vaultstories": "UCseedseedseedseedseed00"},
		channels: map[string]*model.ChannelStats{
			"UCseedseedseedseedseed00": {ChannelID: "UCseedseedseedseedseed00", Title: "Vault Stories", SubscriberCount: 120000},
		},
		videos: map[string][]*model.Video{
			"UCseedseedseedseedseed00": {{VideoID: "vid-1", Title: "Inside the Vault Heist"}},
		},
	}
	cmd := NewSeedChannelResolver("resolve-seed", search)

	c := cor.NewBaseContext()
	c.SetContext(gocontext.Background())
	c.Add(cor.CtxIn, "https://youtube.com/@vaultstories")
	c.Add(KeyProjectName, "Vault Stories Intel")
	c.Add(KeyOwnerID, "user-1")
	cmd.Execute(c)

	require.False(t, c.HasErrors(), "unexpected error: %v", c.FirstError())
	project, ok := c.Get(cor.CtxOut).(*model.Project)
	require.True(t, ok)
	assert.NotEmpty(t, project.ID)
	assert.Equal(t, "Vault Stories Intel", project.Name)
	assert.Equal(t, "user-1", project.OwnerID)
	assert.Equal(t, "Vault Stories", project.SeedChannel.Title)
	assert.Len(t, project.SeedVideos, 1)
	assert.Equal(t, model.ProjectStatusInitial, project.Status)
}

func TestSeedChannelResolverRequiresInputs(t *testing.T) {
	cmd := NewSeedChannelResolver("resolve-seed", &fakeSearch{})

	c := cor.NewBaseContext()
	c.SetContext(gocontext.Background())
	c.Add(cor.CtxIn, "https://youtube.com/@vaultstories")
	// No project name or owner.
	cmd.Execute(c)

	require.True(t, c.HasErrors())
	assert.Equal(t, errs.KindValidation, errs.KindOf(c.FirstError()))
}

func TestCompetitorFinalizerAddsAndMatches(t *testing.T) {
	competitorVideos := []*model.Video{
		{VideoID: "cv-1", Title: "Inside the Vault Heist REACTION", Views: 1000},
		{VideoID: "cv-2", Title: "The Bank Job That Fooled Everyone Explained", Views: 2000},
		{VideoID: "cv-3", Title: "The Perfect Tunnel Robbery Breakdown", Views: 1500},
		{VideoID: "cv-4", Title: "My Morning Routine", Views: 10},
	}
	search := &fakeSearch{
		channels: map[string]*model.ChannelStats{
			"UCcompcompcompcompcomp00": {ChannelID: "UCcompcompcompcompcomp00", Title: "Heist Planet", SubscriberCount: 50000},
		},
		videos: map[string][]*model.Video{"UCcompcompcompcompcomp00": competitorVideos},
	}
	// The model call fails, so matching falls back to substring checks.
	matcher := discovery.NewSharedSeriesMatcher(&fakeJSON{err: errs.New(errs.KindUpstreamTransient, "model down")})
	cmd := NewCompetitorFinalizer("finalize-competitors", discovery.NewDiscoverer(search, 1), matcher)

	project := testProject()
	c := newChainContext(project)
	c.Add(KeySelectedChannels, []string{"UCcompcompcompcompcomp00"})
	cmd.Execute(c)

	require.False(t, c.HasErrors(), "unexpected error: %v", c.FirstError())
	require.Len(t, project.Competitors, 1)
	competitor := project.Competitors[0]
	assert.Equal(t, "Heist Planet", competitor.Title)
	require.Len(t, competitor.MatchingSeries, 1)
	assert.Equal(t, "Heists", competitor.MatchingSeries[0].SeriesName)
	assert.Len(t, competitor.MatchingSeries[0].MatchingTitles, 3)
	assert.Equal(t, []string{"UCcompcompcompcompcomp00"}, project.Taxonomy.Series[0].ChannelsWithSeries)
	assert.Equal(t, model.ProjectStatusFinalized, project.Status)
}

func TestCompetitorFinalizerRejectsSeedChannel(t *testing.T) {
	search := &fakeSearch{}
	cmd := NewCompetitorFinalizer("finalize-competitors",
		discovery.NewDiscoverer(search, 1),
		discovery.NewSharedSeriesMatcher(&fakeJSON{}))

	project := testProject()
	c := newChainContext(project)
	c.Add(KeySelectedChannels, []string{project.SeedChannel.ChannelID})
	cmd.Execute(c)

	require.True(t, c.HasErrors())
	assert.Equal(t, errs.KindValidation, errs.KindOf(c.FirstError()))
}

func TestCompetitorFinalizerIsIdempotent(t *testing.T) {
	project := testProject()
	project.Competitors = []*model.CompetitorChannel{{
		ChannelID:      "UCcompcompcompcompcomp00",
		Title:          "Heist Planet",
		MatchingSeries: []*model.MatchingSeries{{SeriesName: "Heists"}},
	}}
	// No fetches should happen for an already-known competitor.
	cmd := NewCompetitorFinalizer("finalize-competitors",
		discovery.NewDiscoverer(&fakeSearch{}, 1),
		discovery.NewSharedSeriesMatcher(&fakeJSON{}))

	c := newChainContext(project)
	c.Add(KeySelectedChannels, []string{"UCcompcompcompcompcomp00"})
	cmd.Execute(c)

	require.False(t, c.HasErrors(), "unexpected error: %v", c.FirstError())
	assert.Len(t, project.Competitors, 1)
	assert.Len(t, project.Competitors[0].MatchingSeries, 1)
}

func TestResourcePreparerReusesExistingBreakdown(t *testing.T) {
	project := testProject()
	key := model.ContentKey("Heists", "Bank Jobs")
	project.Breakdowns = map[string]*model.ScriptBreakdown{
		key: {SeriesName: "Heists", ThemeName: "Bank Jobs", Breakdown: "STRUCTURE: ..."},
	}
	search := &fakeSearch{}
	cmd := NewResourcePreparer("prepare-resources", search, script.NewBreakdowner(&fakeJSON{}))

	c := newChainContext(project)
	c.Add(KeySeries, "Heists")
	c.Add(KeyTheme, "Bank Jobs")
	cmd.Execute(c)

	require.False(t, c.HasErrors(), "unexpected error: %v", c.FirstError())
	assert.Zero(t, search.transcriptCalls)
}

func TestResourcePreparerBuildsBreakdownFromSeedTopics(t *testing.T) {
	project := testProject()
	transcript := &model.Transcript{
		VideoID:  "vid-1",
		Segments: []*model.TranscriptSegment{{Text: "Welcome back to Vault Stories."}},
	}
	search := &fakeSearch{
		byVideoID: map[string]*model.Video{
			"vid-1": {VideoID: "vid-1", Title: "The Bank Job That Fooled Everyone", DurationSeconds: 900},
			"vid-2": {VideoID: "vid-2", Title: "Inside the Vault Heist", DurationSeconds: 840},
			"vid-3": {VideoID: "vid-3", Title: "The Perfect Tunnel Robbery", DurationSeconds: 780},
		},
		transcripts: map[string]*model.Transcript{"vid-1": transcript},
	}
	caller := &fakeJSON{replies: []string{
		`{"is_clip_reactive": false, "script_breakdown": "1. VIDEO STRUCTURE: cold open, three acts."}`,
	}}
	cmd := NewResourcePreparer("prepare-resources", search, script.NewBreakdowner(caller))

	c := newChainContext(project)
	c.Add(KeySeries, "Heists")
	c.Add(KeyTheme, "Bank Jobs")
	cmd.Execute(c)

	require.False(t, c.HasErrors(), "unexpected error: %v", c.FirstError())
	key := model.ContentKey("Heists", "Bank Jobs")
	require.NotNil(t, project.Breakdowns[key])
	assert.Equal(t, "p-1", project.Breakdowns[key].ProjectID)
	assert.Contains(t, project.Breakdowns[key].Breakdown, "VIDEO STRUCTURE")
	// Only vid-1 has captions; the other topics are skipped, not fatal.
	assert.Equal(t, 3, search.transcriptCalls)
}

func TestResourcePreparerRejectsUnknownSeries(t *testing.T) {
	cmd := NewResourcePreparer("prepare-resources", &fakeSearch{}, script.NewBreakdowner(&fakeJSON{}))

	c := newChainContext(testProject())
	c.Add(KeySeries, "Cooking")
	c.Add(KeyTheme, "Bank Jobs")
	cmd.Execute(c)

	require.True(t, c.HasErrors())
	assert.Equal(t, errs.KindValidation, errs.KindOf(c.FirstError()))
}

func TestPlotGeneratorRequiresBreakdown(t *testing.T) {
	cmd := NewPlotGenerator("generate-plot", script.NewOutliner(&fakeText{}))

	c := newChainContext(testProject())
	c.Add(KeySeries, "Heists")
	c.Add(KeyTheme, "Bank Jobs")
	c.Add(KeyTitle, "The Antwerp Diamond Job")
	c.Add(KeyDurationMin, 15)
	cmd.Execute(c)

	require.True(t, c.HasErrors())
	assert.Equal(t, errs.KindValidation, errs.KindOf(c.FirstError()))
}

func TestPlotGeneratorStoresOutline(t *testing.T) {
	project := testProject()
	key := model.ContentKey("Heists", "Bank Jobs")
	project.Breakdowns = map[string]*model.ScriptBreakdown{
		key: {SeriesName: "Heists", ThemeName: "Bank Jobs", Breakdown: "1. VIDEO STRUCTURE: hook then chapters."},
	}
	outline := "1. The Impossible Vault (00:00 - 00:15, Duration: 00:15)\n" +
		"2. Planning the Job (00:15 - 08:00, Duration: 07:45)\n" +
		"3. The Getaway (08:00 - 15:00, Duration: 07:00)\n"
	cmd := NewPlotGenerator("generate-plot", script.NewOutliner(&fakeText{reply: outline}))

	c := newChainContext(project)
	c.Add(KeySeries, "Heists")
	c.Add(KeyTheme, "Bank Jobs")
	c.Add(KeyTitle, "The Antwerp Diamond Job")
	c.Add(KeyDurationMin, 15)
	cmd.Execute(c)

	require.False(t, c.HasErrors(), "unexpected error: %v", c.FirstError())
	stored := project.Outlines[key]
	require.NotNil(t, stored)
	assert.Equal(t, "Heists", stored.SeriesName)
	assert.Equal(t, 900, stored.TotalDurationSec)
	assert.Len(t, stored.Segments, 3)
}

func TestScriptGeneratorStoresScriptAndCostReport(t *testing.T) {
	project := testProject()
	key := model.ContentKey("Heists", "Bank Jobs")
	project.Breakdowns = map[string]*model.ScriptBreakdown{
		key: {Breakdown: "Write in [CHANNEL_NAME]'s voice, hosted by [HOST_NAME]."},
	}
	project.Outlines = map[string]*model.PlotOutline{
		key: {
			Title:            "The Antwerp Diamond Job",
			TotalDurationSec: 315,
			Segments: []*model.Segment{
				{Name: "Hook", Start: 0, End: 15, DurationSec: 15},
				{Name: "The Job", Start: 15, End: 315, DurationSec: 300},
			},
		},
	}
	words := make([]string, 900)
	for i := range words {
		words[i] = "story"
	}
	cmd := NewScriptGenerator("generate-script", script.NewGenerator(&fakeText{
		reply: "[JOE]: " + strings.Join(words, " "),
	}))

	c := newChainContext(project)
	c.Add(KeySeries, "Heists")
	c.Add(KeyTheme, "Bank Jobs")
	c.Add(KeyTitle, "The Antwerp Diamond Job")
	c.Add(KeyHostName, "Joe")
	cmd.Execute(c)

	require.False(t, c.HasErrors(), "unexpected error: %v", c.FirstError())
	stored := project.Scripts[key]
	require.NotNil(t, stored)
	assert.Len(t, stored.Segments, 2)
	assert.Contains(t, stored.Render(), model.SegmentBreak)

	report, ok := c.Get(KeyCostReport).(*model.CostReport)
	require.True(t, ok)
	assert.Positive(t, report.TotalCost)
}

func TestScriptGeneratorRequiresPreparedInputs(t *testing.T) {
	cmd := NewScriptGenerator("generate-script", script.NewGenerator(&fakeText{}))

	c := newChainContext(testProject())
	c.Add(KeySeries, "Heists")
	c.Add(KeyTheme, "Bank Jobs")
	cmd.Execute(c)

	require.True(t, c.HasErrors())
	assert.Equal(t, errs.KindValidation, errs.KindOf(c.FirstError()))
}

func TestThumbnailTrainerReusesTrainedModel(t *testing.T) {
	project := testProject()
	project.Thumbnails = &model.ThumbnailAssets{
		GuidelinesJSON:      `{"style_class":"graphic"}`,
		TrainedModelVersion: "ft-v3",
		TriggerWord:         "VLTSTYLE",
	}
	// No backend: the command must not reach training at all.
	cmd := NewThumbnailTrainer("train-thumbnail-model", thumbnail.NewTrainer(nil, nil, cloud.ImageModel{}))

	c := newChainContext(project)
	cmd.Execute(c)

	require.False(t, c.HasErrors(), "unexpected error: %v", c.FirstError())
	assert.Equal(t, "ft-v3", project.Thumbnails.TrainedModelVersion)
}

func TestThumbnailTrainerRequiresGuidelines(t *testing.T) {
	cmd := NewThumbnailTrainer("train-thumbnail-model", thumbnail.NewTrainer(nil, nil, cloud.ImageModel{}))

	c := newChainContext(testProject())
	cmd.Execute(c)

	require.True(t, c.HasErrors())
	assert.Equal(t, errs.KindValidation, errs.KindOf(c.FirstError()))
}

func TestThumbnailRendererRequiresConcepts(t *testing.T) {
	cmd := NewThumbnailRenderer("render-thumbnails", nil)

	project := testProject()
	project.Thumbnails = &model.ThumbnailAssets{TrainedModelVersion: "ft-v3", TriggerWord: "VLTSTYLE"}
	c := newChainContext(project)
	cmd.Execute(c)

	require.True(t, c.HasErrors())
	assert.Equal(t, errs.KindValidation, errs.KindOf(c.FirstError()))
}
