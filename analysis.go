package visionrouter

import (
	"encoding/json"
	"regexp"
)

// AnalysisPrompt is the instruction sent with every image.
const AnalysisPrompt = `Analyze this image and provide a detailed description including:
1. Subject: What is the main subject of the image?
2. Medium: What type of image is this (photo, illustration, 3D render, etc.)?
3. Lighting: Describe the lighting conditions
4. Composition: How is the image composed?
5. Style: What artistic style does this represent?
6. Color Palette: List the dominant colors (as hex codes if possible)
7. Prompt: Generate a detailed prompt that could recreate this image

Respond in JSON format:
{
  "subject": "",
  "medium": "",
  "lighting": "",
  "composition": "",
  "style": "",
  "colorPalette": [],
  "prompt": ""
}`

// Spans from the first '{' to the last '}' so prose and code fences
// around the object are ignored.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// ParseAnalysis extracts the JSON object of a model answer. When the text
// holds no parseable object the whole text becomes the prompt.
func ParseAnalysis(text string) AnalysisResult {
	if raw := jsonObjectRe.FindString(text); raw != "" {
		var res AnalysisResult
		if err := json.Unmarshal([]byte(raw), &res); err == nil {
			if res.ColorPalette == nil {
				res.ColorPalette = []string{}
			}
			return res
		}
	}
	return AnalysisResult{ColorPalette: []string{}, Prompt: text}
}
