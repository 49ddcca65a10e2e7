package gemini

import (
	"fmt"
	"strings"

	"github.com/footprint-studio/styleflow/transform/style"
)

const fidelityInstructions = `Important instructions:
- Maintain the subject's likeness and key features
- Apply the style consistently across the entire image
- Ensure high quality output suitable for printing
- Output only the transformed image`

const editInstructions = `Important:
- Maintain the overall composition and subject
- Apply the requested changes naturally
- Ensure high quality output suitable for printing
- Output only the edited image`

// buildPrompt 生成文本提示词；refCount > 0 时使用参考图模板，
// instructions 非空时追加在风格描述之后
func buildPrompt(def style.Definition, refCount int, instructions string) string {
	var b strings.Builder

	if refCount > 0 {
		if refCount == 1 {
			b.WriteString("The first image is a style reference. ")
		} else {
			fmt.Fprintf(&b, "The first %d images are style references. ", refCount)
		}
		b.WriteString("Use the references only as inspiration for color palette, painting technique and mood. ")
		b.WriteString("Do not copy their content, subjects or composition.\n\n")
		b.WriteString("The last image is the photograph to transform. ")
		b.WriteString("Preserve the subject's identity, likeness and the original composition.\n\n")
		if def.ReferencePrompt != "" {
			b.WriteString(def.ReferencePrompt)
			b.WriteString("\n\n")
		}
		b.WriteString("Style description:\n\n")
	} else {
		b.WriteString("Transform this photograph using the following artistic style:\n\n")
	}

	b.WriteString(def.Prompt)
	b.WriteString("\n\n")
	if instructions = strings.TrimSpace(instructions); instructions != "" {
		b.WriteString("Additional instructions: ")
		b.WriteString(instructions)
		b.WriteString("\n\n")
	}
	b.WriteString(fidelityInstructions)

	if def.NegativePrompt != "" {
		b.WriteString("\n\nAvoid: ")
		b.WriteString(def.NegativePrompt)
	}
	return b.String()
}

// editPrompt 生成自由编辑提示词
func editPrompt(instructions string) string {
	return "Edit this image according to the following instructions:\n\n" +
		strings.TrimSpace(instructions) + "\n\n" + editInstructions
}
