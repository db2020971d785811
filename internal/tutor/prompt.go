package tutor

import (
	"fmt"
	"strings"
)

const chatSystemPrompt = `You are a patient study tutor helping a student review their own uploaded notes before an exam.
Answer in two to five short sentences that sound natural when read aloud.
Ground every answer in the study material below. If the material does not cover the question, say so and give a brief general explanation.
Never invent quiz answers the student has not attempted yet.`

const analysisSystemPrompt = `You are a patient study tutor. The student marked up an image from their study material to point at something.
Explain what the marked region shows and why it matters, in two to five short sentences that sound natural when read aloud.`

func chatSystem(sessionContext string) string {
	sessionContext = strings.TrimSpace(sessionContext)
	if sessionContext == "" {
		return chatSystemPrompt
	}
	return chatSystemPrompt + "\n\nStudy material:\n" + sessionContext
}

func analysisPrompt(annotationType, alt, userMessage string) string {
	subject := strings.TrimSpace(alt)
	if subject == "" {
		subject = "this image"
	}
	prompt := fmt.Sprintf("The student %s %s.", annotationType, subject)
	if q := strings.TrimSpace(userMessage); q != "" {
		prompt += " Their question: " + q
	} else {
		prompt += " Explain the marked part."
	}
	return prompt
}
