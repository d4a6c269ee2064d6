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

// Package cor_test exercises the chain plumbing: the flip-flop piping of
// command output into the next command's input, error short-circuiting, and
// the cancellation check between steps.
package cor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/zeebo/assert"

	"github.com/creatorscope/channelintel/internal/core/cor"
)

// appendCommand appends its own name to the string riding the chain.
type appendCommand struct {
	cor.BaseCommand
	fail bool
}

func newAppendCommand(name string, fail bool) *appendCommand {
	return &appendCommand{BaseCommand: *cor.NewBaseCommand(name), fail: fail}
}

func (t *appendCommand) Execute(context cor.Context) {
	if t.fail {
		context.AddError(t.GetName(), errors.New(t.GetName()+" failed"))
		return
	}
	in, _ := context.Get(t.GetInputParam()).(string)
	context.Add(t.GetOutputParam(), in+"/"+t.GetName())
}

func newChain(commands ...cor.Command) cor.Chain {
	chain := cor.NewBaseChain("test-chain")
	for _, command := range commands {
		chain.AddCommand(command)
	}
	return chain
}

func TestChainPipesOutputIntoNextInput(t *testing.T) {
	c := cor.NewBaseContext()
	c.SetContext(context.Background())
	c.Add(cor.CtxIn, "start")

	newChain(newAppendCommand("one", false), newAppendCommand("two", false)).Execute(c)

	assert.False(t, c.HasErrors())
	assert.Equal(t, "start/one/two", c.Get(cor.CtxIn))
	assert.Nil(t, c.Get(cor.CtxOut))
}

func TestChainStopsAfterError(t *testing.T) {
	c := cor.NewBaseContext()
	c.SetContext(context.Background())
	c.Add(cor.CtxIn, "start")

	tail := newAppendCommand("tail", false)
	newChain(newAppendCommand("boom", true), tail).Execute(c)

	assert.True(t, c.HasErrors())
	assert.Error(t, c.FirstError())
	// The failed command produced no output, so nothing was piped forward.
	assert.Nil(t, c.Get(cor.CtxIn))
}

func TestChainContinueOnFailureRunsRemainingCommands(t *testing.T) {
	c := cor.NewBaseContext()
	c.SetContext(context.Background())
	c.Add(cor.CtxIn, "start")
	c.Add("seed", "start")

	// The tail command reads a named parameter, so it stays executable even
	// though the failed command produced nothing to pipe forward.
	tail := newAppendCommand("tail", false)
	tail.InputParamName = "seed"

	chain := cor.NewBaseChain("tolerant-chain").ContinueOnFailure(true)
	chain.AddCommand(newAppendCommand("boom", true))
	chain.AddCommand(tail)
	chain.Execute(c)

	assert.True(t, c.HasErrors())
	assert.Equal(t, "start/tail", c.Get(cor.CtxIn))
}

func TestChainSkipsCommandsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := cor.NewBaseContext()
	c.SetContext(ctx)
	c.Add(cor.CtxIn, "start")

	newChain(newAppendCommand("one", false)).Execute(c)

	assert.True(t, c.HasErrors())
	assert.True(t, errors.Is(c.FirstError(), context.Canceled))
	assert.Equal(t, "start", c.Get(cor.CtxIn))
}

func TestFirstErrorIsDeterministic(t *testing.T) {
	c := cor.NewBaseContext()
	c.AddError("zebra", errors.New("late"))
	c.AddError("alpha", errors.New("early"))

	assert.Equal(t, "early", c.FirstError().Error())
}
