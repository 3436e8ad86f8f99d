package models

import "strings"

// TextPreview обрезает текст до заданной длины для отображения в дайджесте.
func TextPreview(text string, length int) string {
	text = strings.Join(strings.Fields(text), " ")

	if len(text) <= length {
		return text
	}

	runes := []rune(text)
	if len(runes) <= length {
		return text
	}

	return string(runes[:length]) + "..."
}
