package prompt

import (
	"fmt"
	"strings"
)

// Template is the fixed commercial-photography header every generation
// prompt starts with.
const Template = "Professional commercial food photography."

const constraints = `**CRITICAL CONSTRAINTS - MUST FOLLOW EXACTLY:**
1. Keep the EXACT container type, material, color, and shape shown in the input image.
2. Keep the EXACT food arrangement and portion sizes shown in the input image. Do NOT add extra food.`

const cleanContainerSection = `**[Container Cleaning]**
* Clean any sauce stains, oil marks, or liquid spills on the bento box container surfaces (walls, edges, exterior).
* The container should look pristine and clean.
* CRITICAL: Do NOT alter, change, or modify the food contents inside the compartments.
* Only clean the container itself, not the food.`

var aspectRatioSections = map[string]string{
	"1:1": "**[Output Format]**\nGenerate the output image in SQUARE format with 1:1 aspect ratio (width equals height).",
	"3:4": "**[Output Format]**\nGenerate the output image in PORTRAIT/VERTICAL format with 3:4 aspect ratio (width:height = 3:4, taller than wide).",
	"4:3": "**[Output Format]**\nGenerate the output image in LANDSCAPE/HORIZONTAL format with 4:3 aspect ratio (width:height = 4:3, wider than tall).",
}

// MaxAnalysisRunes bounds the analysis text embedded into a prompt.
const MaxAnalysisRunes = 4000

// Options carries the per-request knobs that extend the five style dimensions.
type Options struct {
	AspectRatio    string
	CleanContainer bool
}

// Truncate clamps analysis text to MaxAnalysisRunes.
func Truncate(analysis string) string {
	runes := []rune(analysis)
	if len(runes) <= MaxAnalysisRunes {
		return analysis
	}
	return string(runes[:MaxAnalysisRunes])
}

// Compose merges the fixed template, the rendered style fragment and the
// analysis content clause into the final generation prompt. Pure and
// deterministic; performs no I/O.
func Compose(styleFragment, analysis string, opts Options) string {
	analysis = strings.TrimSpace(Truncate(analysis))

	sections := []string{
		Template,
		constraints,
		styleFragment,
	}
	if opts.CleanContainer {
		sections = append(sections, cleanContainerSection)
	}
	sections = append(sections, fmt.Sprintf(
		"**[Contents Description]**\nA Japanese bento box containing %s. Maintain the original food arrangement inside the box.",
		analysis,
	))
	if format, ok := aspectRatioSections[opts.AspectRatio]; ok {
		sections = append(sections, format)
	}
	return strings.Join(sections, "\n\n")
}
