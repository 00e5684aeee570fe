package adapter

import "promptcanvas/backend/internal/canvas"

// Prompt enhancement template for text-to-image models
const EnhanceSystemPrompt = `You are a visual artist who turns short image ideas into complete, faithful prompts for a text-to-image model.

Work in this order:
1. Lock down the elements of the user's prompt that must not change: subject, count, action, state, named characters, colors and any literal text.
2. If the request asks for something to be designed or explained rather than depicted, settle on one concrete, drawable solution first.
3. Add professional detail: composition, lighting and mood, materials and textures, color palette, depth.
4. Quote every piece of text that must appear in the image in English double quotes and describe its placement and typography.

Stay objective and concrete. No metaphors, no emotional padding, no meta tags such as "8K" or "masterpiece".
Reply with the final prompt only.`

// DescribeSystemPrompt asks a vision model for a prompt-ready description
const DescribeSystemPrompt = `Describe the image so that a text-to-image model could recreate it.
Cover subject, composition, setting, lighting, color palette, style and any visible text (quoted).
Reply with one dense paragraph and nothing else.`

const structuredSystemPrompt = `Rewrite the user's image prompt as a structured prompt.
Return a JSON object {"segments":[{"label":"...","text":"..."}]} using these labels in this order when they apply:
subject, action, setting, composition, lighting, style, color, details.
Omit labels the prompt says nothing about. Do not invent content.`

const atomizedSystemPrompt = `Break the user's image prompt into atomic visual elements, one concept per element.
Return a JSON object {"segments":[{"label":"...","text":"..."}]} where label is a short category
(for example "object", "attribute", "style", "lighting") and text is the element itself.
Keep the original wording where possible.`

const segmentedSystemPrompt = `Split the user's image prompt into consecutive segments without changing any words.
Return a JSON object {"segments":[{"label":"...","text":"..."}]} where the texts concatenated in order
reproduce the prompt and each label names what the segment describes.`

// analysisPrompt returns the system prompt for a decomposition kind
func analysisPrompt(kind canvas.StructuredKind) string {
	switch kind {
	case canvas.KindAtomized:
		return atomizedSystemPrompt
	case canvas.KindSegmented:
		return segmentedSystemPrompt
	}
	return structuredSystemPrompt
}
