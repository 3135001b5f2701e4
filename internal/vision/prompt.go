package vision

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"

	"github.com/vbonduro/winelens/internal/domain"
)

const (
	maxTokens = 4096
	// Web search results and interim narration are billed against the output
	// budget before the final answer is written.
	maxTokensWithLookup = 16384
)

// SystemPrompt is the extraction contract sent with every request. Extract
// parses against the schema it describes.
var SystemPrompt = strings.TrimSpace(dedent.Dedent(fmt.Sprintf(`
	You are a practical sommelier. Given a photo of a wine list or menu, extract every wine you can identify and provide honest, grounded tasting information.

	Rules:
	- Extract the wine name (including vintage if shown) and price exactly as displayed
	- For tastingNotes, rate each descriptor from 1 to 10 and include ONLY descriptors that score 4 or higher, chosen from: %s
	- NEVER invent specific flavor notes like "hints of sun-dried apricot" or "notes of toasted marshmallow"
	- For regionNotes, write one sentence about whether the region is known for this grape/style
	- For story, write one or two sentences about the producer, grape or region that a guest would enjoy hearing
	- For vibe, give a short evocative phrase of two to four words
	- If you cannot read a wine clearly, skip it rather than guessing
	- If the image is not a wine list, return an empty array

	Return ONLY valid JSON matching this schema, with no other text:
	{
	  "wines": [
	    {
	      "name": "string",
	      "price": "string",
	      "vibe": "string",
	      "regionNotes": "string",
	      "tastingNotes": [{"descriptor": "string", "rating": number}],
	      "story": "string"
	    }
	  ]
	}`, strings.Join(domain.Descriptors, ", "))))

const (
	allWinesPrompt = "Analyze this wine list and return the structured JSON for every wine you can identify."

	filteredPrompt = "Analyze this wine list and return the structured JSON for only the %s wines you can identify. Skip all other wines entirely."

	lookupPrompt = "Before writing your final answer, use web search once for each wine you identified to confirm the producer, region and style. After searching, respond with the JSON only."
)

// BuildRequest assembles the call parameters for one analysis. It performs
// no validation; callers check the media type before getting here.
func BuildRequest(req domain.AnalysisRequest) Request {
	out := Request{
		System: SystemPrompt,
		Prompt: UserInstruction(req.Categories, req.AllowLookup),
		Image: Image{
			MediaType: req.MediaType,
			Data:      req.Image,
		},
		MaxTokens: maxTokens,
	}
	if req.AllowLookup {
		out.Tools = []Tool{ToolWebSearch}
		out.MaxTokens = maxTokensWithLookup
	}
	return out
}

// UserInstruction returns the user-turn text for the given filter.
func UserInstruction(categories []domain.Category, lookup bool) string {
	prompt := allWinesPrompt
	if (domain.AnalysisRequest{Categories: categories}).Filtered() {
		prompt = fmt.Sprintf(filteredPrompt, joinLabels(categories))
	}
	if lookup {
		prompt += "\n\n" + lookupPrompt
	}
	return prompt
}

// joinLabels renders categories as an English list: "red", "red and white",
// "red, white and rosé". Duplicates are dropped, order is kept.
func joinLabels(categories []domain.Category) string {
	seen := make(map[domain.Category]bool, len(categories))
	labels := make([]string, 0, len(categories))
	for _, c := range categories {
		if seen[c] {
			continue
		}
		seen[c] = true
		labels = append(labels, c.Label())
	}
	switch len(labels) {
	case 1:
		return labels[0]
	default:
		return strings.Join(labels[:len(labels)-1], ", ") + " and " + labels[len(labels)-1]
	}
}
