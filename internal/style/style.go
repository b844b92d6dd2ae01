package style

import (
	"fmt"
	"strings"

	"bentopro/internal/apierr"
)

// Selection pins the five presentation dimensions for one generation run.
// Values come from the fixed option sets below; a Selection never changes
// after it is handed to the pipeline.
type Selection struct {
	Background  string `json:"background"`
	Angle       string `json:"angle"`
	Lighting    string `json:"lighting"`
	Margin      string `json:"margin"`
	Orientation string `json:"orientation"`
}

const (
	BackgroundWhite  = "white"
	BackgroundBlack  = "black"
	BackgroundWood   = "wood"
	BackgroundMarble = "marble"
	BackgroundWashi  = "washi"

	Angle45       = "45deg"
	AngleOverhead = "overhead"

	LightingStudio   = "studio"
	LightingNatural  = "natural"
	LightingDramatic = "dramatic"

	MarginTight    = "tight"
	MarginStandard = "standard"
	MarginWide     = "wide"

	OrientationFront    = "front"
	OrientationDiagonal = "diagonal"
)

var backgroundFragments = map[string]string{
	BackgroundWhite:  "clean white background",
	BackgroundBlack:  "matte black background",
	BackgroundWood:   "natural wood grain table surface",
	BackgroundMarble: "elegant marble table surface",
	BackgroundWashi:  "traditional Japanese washi paper background",
}

var angleFragments = map[string]string{
	Angle45: "The camera is positioned at a moderate height above the table, looking down at the bento box at approximately 30-40 degrees from horizontal. This angle shows both the top surface of the food AND the front vertical side wall of the container clearly, creating depth while maintaining visibility of contents.",
	AngleOverhead: "The camera is positioned DIRECTLY overhead at 90 degrees, perfectly perpendicular to the table surface. Pure bird's eye view looking STRAIGHT DOWN. NO angle whatsoever - completely flat, top-down perspective.",
}

var lightingFragments = map[string]string{
	LightingStudio:   "Bright, even studio lighting (high-key). Soft shadows. The food looks fresh, glossy, vibrant, and appetizing.",
	LightingNatural:  "Soft, natural window light. Gentle shadows. The food looks fresh, natural, and inviting.",
	LightingDramatic: "Dramatic side lighting with strong shadows. The food looks bold, artistic, and textured.",
}

var marginFragments = map[string]string{
	MarginTight:    "Tight framing with minimal negative space. The bento box fills most of the frame. The entire bento box must fit completely within the frame with NO edges cut off.",
	MarginStandard: "With some negative space around the bento box. A little breathing room on the table surface. Not cropped tightly. Centered composition. The entire bento box must fit completely within the frame with NO edges cut off.",
	MarginWide:     "Ample negative space. Vast empty table surface surrounding the bento box. Minimalist composition with lots of empty space. Long shot. The bento box is small in the center of the large frame. The entire bento box must fit completely within the frame with NO edges cut off.",
}

var orientationRules = map[string]string{
	OrientationFront: "**[Crucial: Orientation & Alignment]**\n* The bento box is NOT rotated diagonally on the table surface.\n* The edges of the box are perfectly parallel to the frame edges (top edge parallel to top of frame, sides parallel to sides of frame).\n* NO rotation whatsoever. The box maintains a straight, unrotated position.",
	OrientationDiagonal: "**[Crucial: Orientation & Alignment]**\n* The bento box IS rotated diagonally on the table surface.\n* The box is tilted approximately 45 degrees CLOCKWISE (from viewer's perspective).\n* One corner of the box points towards the top of the frame, creating a diamond-like orientation.",
}

// Studio returns the default preset: white background, 45-degree angle,
// bright studio lighting, standard margin, front-facing box.
func Studio() Selection {
	return Selection{
		Background:  BackgroundWhite,
		Angle:       Angle45,
		Lighting:    LightingStudio,
		Margin:      MarginStandard,
		Orientation: OrientationFront,
	}
}

// WithDefaults fills empty dimensions from the studio preset and returns the
// completed copy; the receiver is not modified.
func (s Selection) WithDefaults() Selection {
	preset := Studio()
	if s.Background == "" {
		s.Background = preset.Background
	}
	if s.Angle == "" {
		s.Angle = preset.Angle
	}
	if s.Lighting == "" {
		s.Lighting = preset.Lighting
	}
	if s.Margin == "" {
		s.Margin = preset.Margin
	}
	if s.Orientation == "" {
		s.Orientation = preset.Orientation
	}
	return s
}

// Validate checks every dimension against its option set.
func Validate(s Selection) error {
	checks := []struct {
		dimension string
		value     string
		options   map[string]string
	}{
		{"background", s.Background, backgroundFragments},
		{"angle", s.Angle, angleFragments},
		{"lighting", s.Lighting, lightingFragments},
		{"margin", s.Margin, marginFragments},
		{"orientation", s.Orientation, orientationRules},
	}
	for _, c := range checks {
		if _, ok := c.options[c.value]; !ok {
			return fmt.Errorf("style: unknown %s %q: %w", c.dimension, c.value, apierr.ErrConfig)
		}
	}
	return nil
}

// Render turns a validated selection into the style portion of a generation
// prompt. Pure: the same selection always yields a byte-identical fragment.
func Render(s Selection) (string, error) {
	if err := Validate(s); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(orientationRules[s.Orientation])
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "**[Camera Angle & Perspective]**\n* %s\n\n", angleFragments[s.Angle])
	fmt.Fprintf(&b, "**[Environment & Composition]**\n* The bento box is placed on a %s.\n* %s\n\n",
		backgroundFragments[s.Background], marginFragments[s.Margin])
	fmt.Fprintf(&b, "**[Lighting & Style]**\n* %s\n* NO steam, NO vapor. 8k resolution, highly detailed.",
		lightingFragments[s.Lighting])
	return b.String(), nil
}
