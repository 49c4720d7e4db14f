// Copyright 2024 The mkforge Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package toolchain

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// A Factory resolves the builder for one language, probing commands from the
// registry's environment as needed.
type Factory func(ctx context.Context, r *Registry, lang string) (*Builder, error)

// A Registry maps languages to builders.  Builders are resolved lazily, once
// per language, and probe results are cached so repeated resolution of
// aliased commands (cc and c++ pointing at the same driver) stays cheap.
type Registry struct {
	env        Environ
	factories  map[string]Factory
	builders   map[string]*Builder
	precedence []string
	probeCache *lru.Cache[string, string]
}

// NewRegistry creates a registry over env with the C-family languages
// registered and the default cross-language link precedence.
func NewRegistry(env Environ) *Registry {
	cache, _ := lru.New[string, string](64)
	r := &Registry{
		env:        env,
		factories:  make(map[string]Factory),
		builders:   make(map[string]*Builder),
		precedence: []string{"c++", "objc++", "objc", "c"},
		probeCache: cache,
	}
	r.Register(CFamily, "c", "c++", "objc", "objc++")
	return r
}

// Env returns the environment builders are resolved from.
func (r *Registry) Env() Environ { return r.env }

// Register installs a factory for the given languages, replacing any
// previous registration.
func (r *Registry) Register(f Factory, langs ...string) {
	for _, lang := range langs {
		r.factories[lang] = f
	}
}

// AddBuilder installs an already-resolved builder, bypassing probing.
func (r *Registry) AddBuilder(b *Builder) {
	r.builders[b.Lang] = b
}

// SetPrecedence replaces the cross-language link precedence.  Earlier
// languages are more capable: when objects from several languages are linked
// together, the earliest listed language's linker drives the link.
func (r *Registry) SetPrecedence(langs ...string) {
	r.precedence = append([]string(nil), langs...)
}

// Builder returns the builder for lang, resolving it on first use.
func (r *Registry) Builder(ctx context.Context, lang string) (*Builder, error) {
	if b, ok := r.builders[lang]; ok {
		return b, nil
	}
	f, ok := r.factories[lang]
	if !ok {
		return nil, fmt.Errorf("no builder registered for language %q", lang)
	}
	b, err := f(ctx, r, lang)
	if err != nil {
		return nil, err
	}
	r.builders[lang] = b
	return b, nil
}

// Compiler returns the compiler for lang.
func (r *Registry) Compiler(ctx context.Context, lang string) (Compiler, error) {
	b, err := r.Builder(ctx, lang)
	if err != nil {
		return nil, err
	}
	return b.Compiler, nil
}

// Linker picks the linker for a link combining objects from the given
// languages: the most capable language per the precedence order drives the
// link.  Languages absent from the precedence table lose to every listed
// one.
func (r *Registry) Linker(ctx context.Context, mode LinkMode, langs []string) (Linker, error) {
	if len(langs) == 0 {
		return nil, fmt.Errorf("cannot pick a linker with no input languages")
	}
	rank := func(lang string) int {
		for i, l := range r.precedence {
			if l == lang {
				return i
			}
		}
		return len(r.precedence)
	}
	best := langs[0]
	for _, lang := range langs[1:] {
		if rank(lang) < rank(best) {
			best = lang
		}
	}
	b, err := r.Builder(ctx, best)
	if err != nil {
		return nil, err
	}
	return b.Linker(mode)
}
