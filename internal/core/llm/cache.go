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

// Package llm provides the typed generative model client. This file holds the
// process-wide prompt cache bookkeeping. The backend performs the actual
// prefix caching; this LRU only remembers which (model, system message,
// static prefix) combinations have been sent recently, so that cached-token
// counts can be estimated when the backend omits them from usage metadata.
package llm

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

const defaultPromptCacheCapacity = 64

type promptCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List               // front = most recently used
	entries  map[string]*list.Element // key -> element whose Value is the key
}

func newPromptCache(capacity int) *promptCache {
	return &promptCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// cacheKey hashes the cache identity tuple into a fixed-size key.
func cacheKey(modelName, systemMessage, staticPrefix string) string {
	h := sha256.New()
	h.Write([]byte(modelName))
	h.Write([]byte{0})
	h.Write([]byte(systemMessage))
	h.Write([]byte{0})
	h.Write([]byte(staticPrefix))
	return hex.EncodeToString(h.Sum(nil))
}

// touch reports whether the tuple is already resident (a warm prefix) and
// returns the key for the follow-up commit. An empty prefix never caches.
func (p *promptCache) touch(modelName, systemMessage, staticPrefix string) (key string, warm bool) {
	if staticPrefix == "" {
		return "", false
	}
	key = cacheKey(modelName, systemMessage, staticPrefix)
	p.mu.Lock()
	defer p.mu.Unlock()
	if elem, ok := p.entries[key]; ok {
		p.order.MoveToFront(elem)
		return key, true
	}
	return key, false
}

// commit records a successful call for the key, inserting it and evicting the
// least recently used entry when over capacity.
func (p *promptCache) commit(key string) {
	if key == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if elem, ok := p.entries[key]; ok {
		p.order.MoveToFront(elem)
		return
	}
	p.entries[key] = p.order.PushFront(key)
	for p.order.Len() > p.capacity {
		oldest := p.order.Back()
		p.order.Remove(oldest)
		delete(p.entries, oldest.Value.(string))
	}
}
