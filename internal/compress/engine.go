// Package compress implements quality-gated lossy text compression.
//
// Content is classified (classify.go), a pressure level picks the target
// ratio and quality floor, and a three-step pipeline compresses until the
// target is met or the next step would break the class's quality floor.
// Compression is quality-gated, never purely ratio-driven.
package compress

import (
	"strings"
	"unicode"

	"hookwise/internal/config"
	"hookwise/internal/logging"
)

// PressureLevel is the host-reported resource pressure bucket.
type PressureLevel string

const (
	LevelMinimal    PressureLevel = "minimal"
	LevelEfficient  PressureLevel = "efficient"
	LevelCompressed PressureLevel = "compressed"
	LevelCritical   PressureLevel = "critical"
	LevelEmergency  PressureLevel = "emergency"
)

// LevelForPressure buckets a measured pressure fraction in [0,1].
func LevelForPressure(pressure float64) PressureLevel {
	switch {
	case pressure < 0.40:
		return LevelMinimal
	case pressure < 0.60:
		return LevelEfficient
	case pressure < 0.75:
		return LevelCompressed
	case pressure < 0.90:
		return LevelCritical
	default:
		return LevelEmergency
	}
}

// Result describes one compression outcome.
type Result struct {
	Output  string
	Class   ContentClass
	Level   PressureLevel
	Ratio   float64 // fraction of the original removed
	Quality float64
	Steps   []string
	Halted  bool // pipeline stopped early at the quality floor
}

// Engine applies the compression pipeline using configured class profiles
// and pressure levels.
type Engine struct {
	cfg config.CompressionConfig
}

func NewEngine(cfg config.CompressionConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Compress runs the pipeline on content. Framework content always passes
// through untouched. Each step runs only while the running reduction is
// below target; a step whose result would fall under the quality floor is
// discarded and the pipeline halts with the best result so far.
func (e *Engine) Compress(content string, class ContentClass, level PressureLevel) Result {
	timer := logging.StartTimer(logging.CategoryCompress, "Compress")
	defer timer.Stop()

	if class == ClassFramework || content == "" {
		return Result{Output: content, Class: class, Level: level, Quality: 1.0}
	}

	target, floor := e.profile(class, level)
	if target <= 0 {
		return Result{Output: content, Class: class, Level: level, Quality: 1.0}
	}

	terms := keyTerms(content)
	state := pipelineState{
		original:  content,
		current:   content,
		terms:     terms,
		preserved: map[string]string{},
	}

	result := Result{Output: content, Class: class, Level: level, Quality: 1.0}

	for _, step := range pipelineSteps {
		if state.reduction() >= target {
			break
		}
		if target < step.minTarget {
			continue
		}

		candidate := step.apply(&state)
		if candidate == state.current {
			continue
		}

		quality := scoreQuality(state.original, candidate, terms, state.preserved)
		if quality < floor {
			state.rollback()
			result.Halted = true
			logging.CompressDebug("halted before %s: quality %.3f under floor %.3f", step.name, quality, floor)
			logging.Audit(logging.AuditEvent{
				EventType: logging.AuditCompressHalted,
				Target:    step.name,
				Success:   true,
			})
			break
		}

		state.current = candidate
		state.commit()
		result.Output = candidate
		result.Quality = quality
		result.Steps = append(result.Steps, step.name)
	}

	result.Ratio = 1.0 - ratioOf(result.Output, content)
	if len(result.Steps) > 0 {
		logging.Compress("class=%s level=%s ratio=%.2f quality=%.2f steps=%v",
			class, level, result.Ratio, result.Quality, result.Steps)
		logging.Audit(logging.AuditEvent{
			EventType: logging.AuditCompressApplied,
			Target:    string(class) + "/" + string(level),
			Success:   true,
		})
	}
	return result
}

// profile resolves the effective target ratio and quality floor for a
// class under a pressure level, with compiled-in fallbacks when config is
// incomplete.
func (e *Engine) profile(class ContentClass, level PressureLevel) (target, floor float64) {
	cp, ok := e.cfg.Classes[string(class)]
	if !ok {
		cp = config.ClassProfile{TargetRatio: 0.15, QualityFloor: 0.90}
	}
	lp, ok := e.cfg.Levels[string(level)]
	if !ok {
		lp = config.LevelProfile{RatioScale: 0.50, FloorScale: 1.00}
	}

	target = cp.TargetRatio * lp.RatioScale
	floor = cp.QualityFloor * lp.FloorScale
	if target > 0.95 {
		target = 0.95
	}
	if floor < 0 {
		floor = 0
	}
	return target, floor
}

// =============================================================================
// Pipeline
// =============================================================================

type pipelineState struct {
	original string
	current  string
	terms    []string
	// preserved maps an original term to the substitute that now stands for
	// it, so quality scoring counts abbreviated terms as kept.
	preserved map[string]string
	pending   map[string]string
}

func (s *pipelineState) reduction() float64 {
	return 1.0 - ratioOf(s.current, s.original)
}

func (s *pipelineState) commit() {
	for k, v := range s.pending {
		s.preserved[k] = v
	}
	s.pending = nil
}

func (s *pipelineState) rollback() {
	s.pending = nil
}

var pipelineSteps = []struct {
	name      string
	minTarget float64
	apply     func(*pipelineState) string
}{
	{"symbols", 0.0, applySymbols},
	{"abbreviations", 0.10, applyAbbreviations},
	{"trim", 0.25, applyTrim},
}

// applySymbols replaces verbose phrases with their fixed short tokens.
// Phrase edges must land on word boundaries, so a phrase occurring inside
// a longer word is left alone.
func applySymbols(s *pipelineState) string {
	out := s.current
	for _, sub := range symbolTable {
		out = replaceWord(out, sub.Phrase, sub.Token)
	}
	return out
}

// applyAbbreviations shortens domain words. An abbreviation already present
// in the text as its own word is skipped so two meanings never collide.
func applyAbbreviations(s *pipelineState) string {
	words := splitWords(s.current)
	present := map[string]bool{}
	for _, w := range words {
		present[strings.ToLower(w)] = true
	}

	s.pending = map[string]string{}
	out := s.current
	for word, abbr := range abbreviationTable {
		if !present[word] || present[abbr] {
			continue
		}
		out = replaceWord(out, word, abbr)
		s.pending[word] = abbr
	}
	return out
}

// applyTrim collapses whitespace and drops filler connectives.
func applyTrim(s *pipelineState) string {
	fields := strings.Fields(s.current)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if fillerWords[strings.ToLower(strings.Trim(f, ".,;:"))] {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// =============================================================================
// Quality Scoring
// =============================================================================

const (
	termWeight    = 0.7
	lengthWeight  = 0.3
	minSafeLength = 0.30
)

// scoreQuality combines key-term preservation with a penalty for shrinking
// the text below the safe length fraction.
func scoreQuality(original, compressed string, terms []string, preserved map[string]string) float64 {
	termScore := 1.0
	if len(terms) > 0 {
		lower := strings.ToLower(compressed)
		kept := 0
		for _, term := range terms {
			if strings.Contains(lower, term) {
				kept++
				continue
			}
			if abbr, ok := preserved[term]; ok && strings.Contains(lower, abbr) {
				kept++
			}
		}
		termScore = float64(kept) / float64(len(terms))
	}

	lengthScore := 1.0
	if r := ratioOf(compressed, original); r < minSafeLength {
		lengthScore = r / minSafeLength
	}

	return termWeight*termScore + lengthWeight*lengthScore
}

// keyTerms extracts the technical vocabulary of the original: words of five
// or more runes, or words carrying digits or identifier punctuation.
func keyTerms(content string) []string {
	seen := map[string]bool{}
	var terms []string
	for _, w := range splitWords(content) {
		lw := strings.ToLower(w)
		if stopwords[lw] || seen[lw] {
			continue
		}
		if len([]rune(lw)) >= 5 || hasIdentChar(lw) {
			seen[lw] = true
			terms = append(terms, lw)
		}
	}
	return terms
}

func hasIdentChar(w string) bool {
	for _, r := range w {
		if unicode.IsDigit(r) || r == '_' || r == '.' || r == '/' {
			return true
		}
	}
	return false
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' && r != '/'
	})
}

// replaceWord swaps whole-word occurrences of word (case-insensitive) for repl.
func replaceWord(text, word, repl string) string {
	var b strings.Builder
	b.Grow(len(text))

	lower := strings.ToLower(text)
	for i := 0; i < len(text); {
		idx := strings.Index(lower[i:], word)
		if idx < 0 {
			b.WriteString(text[i:])
			break
		}
		start := i + idx
		end := start + len(word)
		if isWordBoundary(text, start-1) && isWordBoundary(text, end) {
			b.WriteString(text[i:start])
			b.WriteString(repl)
		} else {
			b.WriteString(text[i:end])
		}
		i = end
	}
	return b.String()
}

func isWordBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	r := rune(text[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

func ratioOf(compressed, original string) float64 {
	if len(original) == 0 {
		return 1.0
	}
	return float64(len(compressed)) / float64(len(original))
}
