package translate

import "fmt"

var languageNames = map[string]string{
	"auto": "the detected language",
	"en":   "English",
	"zh":   "Chinese",
	"ja":   "Japanese",
	"ko":   "Korean",
	"fr":   "French",
	"de":   "German",
	"es":   "Spanish",
	"ru":   "Russian",
	"pt":   "Portuguese",
	"it":   "Italian",
	"vi":   "Vietnamese",
}

// LanguageName maps a language code to the English name used in prompts. Unknown codes pass through.
func LanguageName(code string) string {
	if n, ok := languageNames[code]; ok {
		return n
	}
	return code
}

// SystemPrompt instructs a chat model to return nothing but the translation.
const SystemPrompt = "You are a translation engine for on-screen text. " +
	"Maintain the original meaning and line breaks. Only return the translated text without additional commentary."

// Prompt is the user message for one translation.
func Prompt(text, source, target string) string {
	return fmt.Sprintf("Translate the following text from %s to %s:\n\n%s", LanguageName(source), LanguageName(target), text)
}
