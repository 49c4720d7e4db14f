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

// Package shell implements POSIX sh quoting and splitting for the strings
// that end up inside generated recipes.  Makefiles only support sh-style
// shells, so there is a single quoting dialect here.
package shell

import (
	"regexp"
	"strings"

	"github.com/frioux/shellquote"
	"github.com/google/shlex"
)

// badChars matches any character that forces a word to be quoted before a
// POSIX shell will treat it as a single literal argument.
var badChars = regexp.MustCompile(`[^\w@%+=:,./-]`)

// InnerQuoteInfo escapes embedded single quotes in s but does not wrap the
// result.  It returns the escaped string and whether the caller needs to
// wrap the surrounding span in quotes.  This is used for values that are
// concatenated with other already-safe text (variable references, path
// roots) and quoted once as a whole.
func InnerQuoteInfo(s string) (string, bool) {
	if !badChars.MatchString(s) {
		return s, false
	}
	return strings.ReplaceAll(s, "'", `'\''`), true
}

// QuoteInfo quotes s for a POSIX shell if necessary.  It returns the
// (possibly quoted) string and whether quoting was applied.
func QuoteInfo(s string) (string, bool) {
	if s == "" {
		return "''", true
	}
	inner, quoted := InnerQuoteInfo(s)
	if !quoted {
		return s, false
	}
	return WrapQuotes(inner), true
}

// Quote is QuoteInfo without the flag.
func Quote(s string) string {
	q, _ := QuoteInfo(s)
	return q
}

// WrapQuotes wraps an already inner-escaped string in single quotes.
func WrapQuotes(s string) string {
	return "'" + s + "'"
}

// Split splits a shell-syntax command string into words.  It is used for
// environment-supplied command and flag variables (CC, CXXFLAGS, LDFLAGS,
// ...), which may contain quoting of their own.
func Split(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return shlex.Split(s)
}

// JoinCommand renders argv as a single shell-quoted command line, for
// diagnostics and error messages.
func JoinCommand(argv []string) string {
	joined, err := shellquote.Quote(argv)
	if err != nil {
		// Quote only fails on words containing NUL; fall back to a
		// plain join so diagnostics still show something useful.
		return strings.Join(argv, " ")
	}
	return joined
}
