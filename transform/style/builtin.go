package style

// 内置风格 ID
const (
	PopArt            = "pop_art"
	WPAP              = "wpap"
	Watercolor        = "watercolor"
	LineArt           = "line_art"
	LineArtWatercolor = "line_art_watercolor"
	OilPainting       = "oil_painting"
	Romantic          = "romantic"
	ComicBook         = "comic_book"
	Vintage           = "vintage"
	OriginalEnhanced  = "original_enhanced"
)

// ReferenceRoot is the location prefix of bundled reference images.
const ReferenceRoot = "/style-references"

// builtinStyles returns the storefront styles in display order.
func builtinStyles() []Definition {
	return []Definition{
		{
			ID:          PopArt,
			NameHe:      "פופ ארט",
			NameEn:      "Pop Art",
			Description: "Bold colors, halftone dots, Warhol-inspired",
			Prompt: `Transform this photograph into the iconic Pop Art style of the 1960s, inspired by Andy Warhol and Roy Lichtenstein.

Render the subject with:
- Bold, flat areas of vibrant saturated color (hot pink, electric blue, bright yellow, orange)
- Visible halftone dot patterns in shadow areas, like printed comic books
- Strong black outlines defining shapes and features
- High contrast with simplified tonal areas
- Graphic, poster-like quality with clean color separations

Preserve the subject's likeness and facial features accurately. The final result should look like a screen-printed pop art portrait suitable for framing.`,
			Anchors: Anchors{
				Medium:   "screen print, silkscreen",
				Era:      "1960s Pop Art movement",
				Palette:  "vibrant saturated colors: hot pink, electric blue, yellow, orange",
				Texture:  "flat color areas with halftone dot patterns",
				Lighting: "high contrast, simplified shadows",
			},
			Parameters:      Parameters{Temperature: 0.8},
			CSSFilter:       "saturate(2) contrast(1.3) brightness(1.1)",
			Icon:            "zap",
			Gradient:        [2]string{"#8b5cf6", "#ec4899"},
			ReferencePrompt: "Use bold pop art treatment with vibrant colors, halftone dots and strong outlines in the spirit of Warhol and Lichtenstein.",
		},
		{
			ID:          WPAP,
			NameHe:      "דיוקן גיאומטרי",
			NameEn:      "WPAP",
			Description: "Geometric polygon portrait, flat vivid color planes",
			Prompt: `Transform the portrait into WPAP (Wedha's Pop Art Portrait) style. Preserve exact facial likeness, proportions and identity first.

Build the face from sharp angular polygon planes that follow the facial anatomy and the original light direction. Every region is one solid flat color in a bold, saturated palette. Crisp vector edges, high-contrast light and shadow blocks, poster composition. Keep hairstyle, glasses and facial hair accurate. Simple flat solid background, print-ready resolution.`,
			NegativePrompt: "no gradients, no soft shading, no airbrush, no watercolor, no brush strokes, no texture, no blur, no realism, no painterly effects",
			Anchors: Anchors{
				Medium:   "digital vector illustration, faceted polygon planes",
				Era:      "Indonesian WPAP pop portrait",
				Palette:  "bold saturated solid colors",
				Texture:  "flat fills with crisp vector edges",
				Lighting: "hard-edged light and shadow blocks",
			},
			Parameters: Parameters{Temperature: 0.7},
			CSSFilter:  "saturate(2.2) contrast(1.5) brightness(1.05)",
			Icon:       "hexagon",
			Gradient:   [2]string{"#0ea5e9", "#a855f7"},
			Badge:      "new",
		},
		{
			ID:          Watercolor,
			NameHe:      "צבעי מים",
			NameEn:      "Watercolor",
			Description: "Soft flowing colors, artistic brushstrokes",
			Prompt: `Transform this photograph into a delicate watercolor painting with the qualities of traditional wet-on-wet technique.

Apply these watercolor characteristics:
- Soft, flowing edges where colors blend naturally
- Translucent color washes that layer and overlap
- Visible paper texture showing through the paint
- Gentle color bleeding at the boundaries of shapes
- Light, airy quality with white highlights preserved

Use a harmonious palette of soft, muted tones. Preserve the subject's likeness while giving the portrait an artistic, painterly quality.`,
			Anchors: Anchors{
				Medium:   "watercolor painting, wet-on-wet technique",
				Palette:  "soft muted tones, translucent washes",
				Texture:  "visible paper texture, color bleeding, soft edges",
				Lighting: "natural diffused light, preserved white highlights",
			},
			Parameters:      Parameters{Temperature: 0.7},
			CSSFilter:       "blur(0.5px) saturate(1.3) brightness(1.05)",
			Icon:            "droplet",
			Gradient:        [2]string{"#3b82f6", "#06b6d4"},
			ReferencePrompt: "Match the soft edges, translucent washes and color bleeding technique shown in the reference images.",
		},
		{
			ID:          LineArt,
			NameHe:      "ציור קווי",
			NameEn:      "Line Art",
			Description: "Clean minimalist lines, elegant simplicity",
			Prompt: `Transform this photograph into a clean, minimalist line art drawing with elegant simplicity.

Create using these techniques:
- Clean, precise continuous lines of consistent weight
- Pure black lines on a white background
- No shading, hatching, or fill, only outlines
- Capture essential features and contours only
- Vector-like quality with smooth curves

Focus on the most defining features of the subject. Remove unnecessary detail while keeping the subject's recognizable likeness.`,
			Anchors: Anchors{
				Medium:  "ink line drawing, single-weight pen",
				Palette: "monochrome: pure black on white",
				Texture: "clean smooth lines, no texture or hatching",
			},
			Parameters:      Parameters{Temperature: 0.6},
			CSSFilter:       "grayscale(1) contrast(2) brightness(1.2)",
			Icon:            "pen",
			Gradient:        [2]string{"#6b7280", "#9ca3af"},
			ReferencePrompt: "Match the line weight, simplicity and contour technique shown in the reference images.",
		},
		{
			ID:          LineArtWatercolor,
			NameHe:      "קו וצבעי מים",
			NameEn:      "Line & Wash",
			Description: "Ink outlines with loose watercolor fills",
			Prompt: `Transform this photograph into an ink-and-wash illustration.

Use clean, confident ink outlines to define the main forms, then fill them with soft, translucent watercolor washes. Let the colors bleed slightly past the lines in places for a hand-crafted touch. The outlines anchor the composition while the watercolor adds warmth and life. Preserve the subject's likeness; the result should feel suitable for premium printing.`,
			Anchors: Anchors{
				Medium:  "ink outlines with watercolor washes",
				Palette: "soft translucent watercolor tones",
				Texture: "crisp linework, loose wet washes, paper grain",
			},
			Parameters: Parameters{Temperature: 0.7},
			CSSFilter:  "contrast(1.3) saturate(1.2) brightness(1.05)",
			Icon:       "feather",
			Gradient:   [2]string{"#14b8a6", "#6366f1"},
			References: []string{
				ReferenceRoot + "/line_art_watercolor/ref1.webp",
				ReferenceRoot + "/line_art_watercolor/ref2.webp",
				ReferenceRoot + "/line_art_watercolor/ref3.webp",
				ReferenceRoot + "/line_art_watercolor/ref4.webp",
				ReferenceRoot + "/line_art_watercolor/ref5.webp",
				ReferenceRoot + "/line_art_watercolor/ref6.webp",
			},
			ReferencePrompt: "Notice the delicate line work combined with soft watercolor washes. Apply this ink-and-wash aesthetic with clean contour lines and loose, flowing watercolor fills. Do not copy the content of the references.",
		},
		{
			ID:          OilPainting,
			NameHe:      "ציור שמן",
			NameEn:      "Oil Painting",
			Description: "Rich brushstrokes, classical art style",
			Prompt: `Transform this photograph into a classical oil painting reminiscent of Renaissance and Baroque portraiture masters.

Apply these oil painting characteristics:
- Thick, visible impasto brushstrokes with rich texture
- Deep, luminous colors with complex layering
- Dramatic chiaroscuro lighting with rich shadows
- Warm undertones in skin with subtle color variations
- Museum-quality finish with glazed depth

Preserve the subject's likeness while elevating it to fine art quality.`,
			Anchors: Anchors{
				Medium:   "oil on canvas, impasto technique",
				Era:      "Renaissance/Baroque classical portraiture",
				Palette:  "rich deep colors, warm undertones, complex layering",
				Texture:  "visible brushstrokes, thick impasto, glazed layers",
				Lighting: "dramatic chiaroscuro, warm key light",
			},
			Parameters:      Parameters{Temperature: 0.75},
			CSSFilter:       "saturate(1.5) contrast(1.2) brightness(0.95)",
			Icon:            "brush",
			Gradient:        [2]string{"#f59e0b", "#d97706"},
			ReferencePrompt: "Match the brushstroke texture, color richness and lighting shown in the reference images.",
		},
		{
			ID:          Romantic,
			NameHe:      "רומנטי",
			NameEn:      "Romantic",
			Description: "Soft dreamy focus, warm ethereal glow",
			Prompt: `Transform this photograph into a romantic, dreamy portrait with an ethereal, timeless quality.

Apply these romantic characteristics:
- Soft, diffused focus with gentle blur on edges
- Warm golden-hour lighting with soft highlights
- Delicate pink and peach tones in highlights
- Subtle light bloom effects
- Dreamy, nostalgic atmosphere

Preserve the subject's beauty while adding an idealized, romantic glow.`,
			Anchors: Anchors{
				Medium:   "soft focus photography, diffusion filter",
				Palette:  "warm golden tones, soft pink and peach highlights",
				Texture:  "smooth gradients, soft bloom, gentle diffusion",
				Lighting: "golden hour warmth, soft key light, subtle rim light",
			},
			Parameters:      Parameters{Temperature: 0.7},
			CSSFilter:       "sepia(0.3) saturate(1.2) brightness(1.1) contrast(0.95)",
			Icon:            "heart",
			Gradient:        [2]string{"#ec4899", "#f472b6"},
			ReferencePrompt: "Create a soft romantic atmosphere with dreamy lighting, pastel tones and an ethereal glow.",
		},
		{
			ID:          ComicBook,
			NameHe:      "קומיקס",
			NameEn:      "Comic Book",
			Description: "Bold outlines, vibrant flat colors",
			Prompt: `Transform this photograph into a dynamic comic book illustration in the classic American superhero comic style.

Apply these comic book characteristics:
- Bold, confident black outlines of varying thickness
- Flat areas of bright, saturated color
- Ben-Day dots or halftone patterns in shadows and midtones
- Strong contrast with dramatic lighting
- Clean color separations without gradients

Preserve the subject's likeness while adding heroic, dynamic energy.`,
			Anchors: Anchors{
				Medium:   "comic book ink and color, Ben-Day dots",
				Era:      "classic American superhero comics",
				Palette:  "bright saturated primaries and secondaries",
				Texture:  "halftone dots, flat color areas, bold ink lines",
				Lighting: "dramatic high contrast, strong shadows",
			},
			Parameters: Parameters{Temperature: 0.8},
			CSSFilter:  "saturate(1.8) contrast(1.4) brightness(1.05)",
			Icon:       "zap",
			Gradient:   [2]string{"#f97316", "#ef4444"},
		},
		{
			ID:          Vintage,
			NameHe:      "וינטג'",
			NameEn:      "Vintage",
			Description: "Nostalgic sepia tones, film grain texture",
			Prompt: `Transform this photograph into a vintage, nostalgic portrait reminiscent of photographs from the 1970s.

Apply these vintage characteristics:
- Warm sepia and amber color tones
- Visible film grain texture throughout
- Slightly faded highlights and lifted blacks
- Soft vignette darkening the edges
- Muted, desaturated color palette

Add authentic analog film qualities while preserving the subject's likeness.`,
			Anchors: Anchors{
				Medium:   "analog film photography, 35mm film",
				Era:      "1970s vintage photography",
				Palette:  "warm sepia, amber tones, faded colors",
				Texture:  "visible film grain, soft vignette, light leaks",
				Lighting: "soft natural light, slightly overexposed highlights",
			},
			Parameters:      Parameters{Temperature: 0.7},
			CSSFilter:       "sepia(0.6) saturate(0.8) contrast(1.1) brightness(0.95)",
			Icon:            "film",
			Gradient:        [2]string{"#92400e", "#b45309"},
			ReferencePrompt: "Apply a vintage photographic look with muted tones, film grain and sepia hints.",
		},
		{
			ID:          OriginalEnhanced,
			NameHe:      "מקורי משופר",
			NameEn:      "Enhanced Original",
			Description: "Professional color enhancement, sharpened details",
			Prompt: `Enhance this photograph with professional photo editing while keeping its natural, realistic appearance.

Apply these enhancements:
- Improved color vibrancy and saturation balance
- Enhanced contrast with preserved highlight and shadow detail
- Subtle sharpening of fine details
- Balanced exposure and natural skin tones

Do not apply artistic filters or style transformations. Preserve the subject exactly as they appear, only improving technical quality.`,
			Anchors: Anchors{
				Medium:   "digital photography, professional retouching",
				Palette:  "natural enhanced colors, balanced tones",
				Texture:  "sharp detail, smooth skin, clean finish",
				Lighting: "balanced exposure, natural lighting enhanced",
			},
			Parameters: Parameters{Temperature: 0.5},
			CSSFilter:  "saturate(1.2) contrast(1.1) brightness(1.05)",
			Icon:       "sun",
			Gradient:   [2]string{"#10b981", "#34d399"},
		},
	}
}
