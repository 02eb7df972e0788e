package rewrite

import (
	"fmt"
	"unicode/utf8"
)

const maxPromptDescription = 800

// systemPrompt carries the Archyards editorial voice. The two hard
// constraints the engine validates are stated here: at most five sentences,
// and no facts absent from the input.
const systemPrompt = `You are the senior editor of Archyards, a prestigious architecture
and design magazine with the editorial weight of Dezeen, the cultural insight of
Wallpaper*, and the technical depth of ArchDaily.

Your job is to rewrite article titles and opening descriptions from other publications
in Archyards' distinctive voice:

ARCHYARDS VOICE:
- Confident, intelligent, slightly provocative
- Never hyperbolic or clickbait
- Short, punchy titles that spark curiosity
- Descriptions that open with a strong editorial observation, not a summary
- Mix of architectural precision and cultural commentary
- Present tense preferred
- No passive voice
- Maximum 5 sentences for the description

CRITICAL RULES:
- DO NOT copy original wording; rewrite fully in your own voice
- Preserve all factual accuracy (names, places, dates, buildings)
- Never invent facts not present in the original
- The result should feel like Archyards wrote it first, not borrowed it
- Return ONLY valid JSON, no extra text`

const rewriteTemplate = `Rewrite the following article for Archyards magazine.

SOURCE: %s
ORIGINAL TITLE: %s
ORIGINAL DESCRIPTION: %s

Return a JSON object with exactly these two keys:
{
  "rewritten_title": "Your rewritten title here",
  "rewritten_description": "Your rewritten description here, at most 5 sentences."
}

Remember: factually accurate, editorially fresh, Archyards voice.`

// buildPrompt formats the user prompt, capping the description fed to the
// model to keep token usage bounded. The cap lands on a rune boundary so the
// prompt stays valid UTF-8.
func buildPrompt(sourceName, title, description string) string {
	if len(description) > maxPromptDescription {
		limit := maxPromptDescription
		for limit > 0 && !utf8.RuneStart(description[limit]) {
			limit--
		}
		description = description[:limit]
	}
	return fmt.Sprintf(rewriteTemplate, sourceName, title, description)
}
