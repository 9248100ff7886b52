// Package instruction maps free-text task instructions to the target and
// anchor concepts the segmentation prompts are built from.
package instruction

import (
	"regexp"
	"strings"

	"github.com/robodistill/cgvd/vision"
)

// RobotConcepts is appended to a prompt when the robot should be segmented
// alongside the task concepts.
const RobotConcepts = "robot arm. robot gripper"

// FallbackTarget is returned when nothing usable can be extracted.
const FallbackTarget = "object"

type template struct {
	re     *regexp.Regexp
	target string
	anchor string
}

// Known task phrasings, most specific first. Literal templates pin the exact
// concept names the segmenter works best with; capture templates generalize.
var templates = []template{
	{re: regexp.MustCompile(`(?i)\bput\s+(?:the\s+)?spoon\s+on(?:to)?\s+(?:the\s+)?(?:table\s*cloth|towel)\b`), target: "spoon", anchor: "towel"},
	{re: regexp.MustCompile(`(?i)\bput\s+(?:the\s+)?carrot\s+on(?:to)?\s+(?:the\s+)?plate\b`), target: "carrot", anchor: "plate"},
	{re: regexp.MustCompile(`(?i)\bput\s+(?:the\s+)?eggplant\s+in(?:to)?\s+(?:the\s+)?(?:yellow\s+)?basket\b`), target: "eggplant", anchor: "basket"},
	{re: regexp.MustCompile(`(?i)\bstack\s+(?:the\s+)?green\s+block\s+on(?:to)?\s+(?:the\s+)?yellow\s+block\b`), target: "green block", anchor: "yellow block"},
}

// Generic capture patterns, tried after the literal templates.
var capturePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:put|place|move|stack)\s+(?:the\s+|a\s+|an\s+)?([\w\s-]+?)\s+(?:on(?:to)?|in(?:to|side)?|near|next to|under|over)\s+(?:the\s+|a\s+|an\s+)?([\w\s-]+?)\s*$`),
	regexp.MustCompile(`(?i)\b(?:pick\s+up|grasp|grab|lift)\s+(?:the\s+|a\s+|an\s+)?([\w\s-]+?)\s*$`),
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "and": true,
	"put": true, "place": true, "move": true, "pick": true, "up": true,
	"grab": true, "grasp": true, "lift": true, "stack": true, "please": true,
}

var anchorPrepositions = map[string]bool{
	"on": true, "onto": true, "in": true, "into": true, "inside": true,
	"near": true, "under": true, "over": true, "beside": true,
}

// Parse extracts (target, anchor) from an instruction. The anchor is empty
// when the task has no reference object. Parse never fails; an unparseable
// instruction degrades to the generic FallbackTarget.
func Parse(raw string) (string, string) {
	instr := strings.TrimSpace(raw)
	if instr == "" {
		return FallbackTarget, ""
	}
	for _, tmpl := range templates {
		if tmpl.re.MatchString(instr) {
			return tmpl.target, tmpl.anchor
		}
	}
	for _, re := range capturePatterns {
		groups := re.FindStringSubmatch(instr)
		if groups == nil {
			continue
		}
		target := normalizeConcept(groups[1])
		anchor := ""
		if len(groups) > 2 {
			anchor = normalizeConcept(groups[2])
		}
		if target != "" {
			return target, anchor
		}
	}
	return heuristicParse(instr)
}

// heuristicParse strips stopwords and takes the first content word as the
// target, then looks for a preposition followed by a noun as the anchor.
func heuristicParse(instr string) (string, string) {
	words := strings.Fields(strings.ToLower(strings.Trim(instr, " .!?")))
	target, anchor := "", ""
	for i, w := range words {
		w = strings.Trim(w, ",.!?")
		if target == "" {
			if !stopwords[w] && !anchorPrepositions[w] {
				target = w
			}
			continue
		}
		if anchorPrepositions[w] && i+1 < len(words) {
			for _, cand := range words[i+1:] {
				cand = strings.Trim(cand, ",.!?")
				if !stopwords[cand] && !anchorPrepositions[cand] {
					anchor = cand
					break
				}
			}
			break
		}
	}
	if target == "" {
		return FallbackTarget, ""
	}
	return target, anchor
}

func normalizeConcept(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.Trim(s, " .,!?"))), " ")
}

// BuildConceptPrompt joins the non-empty concepts into the exact prompt
// string handed to the segmentation service, optionally appending the robot
// concepts.
func BuildConceptPrompt(target, anchor string, includeRobot bool) string {
	var parts []string
	if target != "" {
		parts = append(parts, target)
	}
	if anchor != "" {
		parts = append(parts, anchor)
	}
	if includeRobot {
		parts = append(parts, RobotConcepts)
	}
	return strings.Join(parts, vision.ConceptSeparator)
}
