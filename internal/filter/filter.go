// Package filter classifies post comments before any of them reach the
// outbound message queue. Everything here is a pure function over the
// comment payload so the heuristics stay deterministically testable.
package filter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"revos.app/pipeline/internal/social"
)

const botScoreThreshold = 50

// Headline fragments that mark automation/bot accounts.
var botHeadlineKeywords = []string{
	"bot",
	"automation",
	"automated",
	"auto-post",
	"autopost",
	"growth hacking",
	"lead gen bot",
	"ai agent",
}

// Canned praise that carries no buying intent. Matched against the trimmed
// comment, case-insensitive, allowing trailing punctuation and emoji.
var genericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^great post\W*$`),
	regexp.MustCompile(`(?i)^great share\W*$`),
	regexp.MustCompile(`(?i)^thanks for sharing\W*$`),
	regexp.MustCompile(`(?i)^thank you for sharing\W*$`),
	regexp.MustCompile(`(?i)^love this\W*$`),
	regexp.MustCompile(`(?i)^love it\W*$`),
	regexp.MustCompile(`(?i)^nice\W*$`),
	regexp.MustCompile(`(?i)^nice post\W*$`),
	regexp.MustCompile(`(?i)^awesome\W*$`),
	regexp.MustCompile(`(?i)^amazing\W*$`),
	regexp.MustCompile(`(?i)^well said\W*$`),
	regexp.MustCompile(`(?i)^so true\W*$`),
	regexp.MustCompile(`(?i)^agreed?\W*$`),
	regexp.MustCompile(`(?i)^interesting\W*$`),
	regexp.MustCompile(`(?i)^congrats\W*$`),
	regexp.MustCompile(`(?i)^congratulations\W*$`),
	regexp.MustCompile(`(?i)^(very |really )?(insightful|helpful|useful)\W*$`),
}

type BotResult struct {
	IsBot   bool
	Score   int // 0-100, clamped after summation
	Reasons []string
}

type TriggerResult struct {
	HasTrigger bool
	Matched    []string
}

type Classification struct {
	Comment     social.Comment
	Bot         BotResult
	Trigger     TriggerResult
	Generic     bool
	ShouldQueue bool
}

// DetectBot scores a comment author with additive heuristics. Missing
// optional author fields leave the score unaffected; this never errors on
// malformed input.
func DetectBot(c social.Comment) BotResult {
	score := 0
	var reasons []string

	headline := strings.ToLower(c.Author.Headline)
	if headline != "" {
		for _, kw := range botHeadlineKeywords {
			if strings.Contains(headline, kw) {
				score += 50
				reasons = append(reasons, "headline matches bot keyword")
				break
			}
		}
	}

	if c.Author.ConnectionsCount != nil && *c.Author.ConnectionsCount < 10 {
		score += 30
		reasons = append(reasons, "fewer than 10 connections")
	}

	text := strings.TrimSpace(c.Text)
	if utf8.RuneCountInString(text) < 10 && !hasLongWord(text, 5) {
		score += 15
		reasons = append(reasons, "very short text")
	}

	if text != "" && stripSymbols(text) == "" {
		score += 25
		reasons = append(reasons, "only emoji or symbols")
	}

	if score > 100 {
		score = 100
	}

	return BotResult{
		IsBot:   score >= botScoreThreshold,
		Score:   score,
		Reasons: reasons,
	}
}

// IsGeneric reports whether the comment is canned praise or a pure
// applause-emoji string.
func IsGeneric(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	for _, p := range genericPatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}

	// Pure emoji/symbol sequences count as generic applause.
	return stripSymbols(trimmed) == ""
}

// DetectTriggers finds whole-word, case-insensitive trigger matches.
// A trigger embedded in a longer word does not count: "scale" never
// matches inside "escalate". All matches are returned, not just the first.
func DetectTriggers(text string, triggers []string) TriggerResult {
	result := TriggerResult{}
	for _, trigger := range triggers {
		trigger = strings.TrimSpace(trigger)
		if trigger == "" {
			continue
		}
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(trigger) + `\b`)
		if pattern.MatchString(text) {
			result.HasTrigger = true
			result.Matched = append(result.Matched, trigger)
		}
	}
	return result
}

// Process composes the heuristics. A comment queues iff a trigger matched
// and it is neither a bot nor generic praise.
func Process(c social.Comment, triggers []string) Classification {
	bot := DetectBot(c)
	trig := DetectTriggers(c.Text, triggers)
	generic := IsGeneric(c.Text)

	return Classification{
		Comment:     c,
		Bot:         bot,
		Trigger:     trig,
		Generic:     generic,
		ShouldQueue: trig.HasTrigger && !bot.IsBot && !generic,
	}
}

// ProcessBatch classifies a batch and keeps only queueing comments,
// preserving input order.
func ProcessBatch(comments []social.Comment, triggers []string) []Classification {
	var queued []Classification
	for _, c := range comments {
		cls := Process(c, triggers)
		if cls.ShouldQueue {
			queued = append(queued, cls)
		}
	}
	return queued
}

// FilterNew returns ids not present in seen, preserving input order.
func FilterNew(ids []string, seen map[string]struct{}) []string {
	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	return fresh
}

func hasLongWord(text string, minLen int) bool {
	for _, word := range strings.Fields(text) {
		letters := 0
		for _, r := range word {
			if unicode.IsLetter(r) {
				letters++
			}
		}
		if letters >= minLen {
			return true
		}
	}
	return false
}

// stripSymbols drops everything except letters and digits, which reduces
// emoji/symbol/whitespace-only strings to "".
func stripSymbols(text string) string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
