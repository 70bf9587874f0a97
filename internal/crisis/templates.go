package crisis

import "slices"

var responseTemplates = map[Severity][]string{
	SeverityHigh: {
		"It sounds like you are in a lot of pain right now. Please call or text 988 to reach the Suicide and Crisis Lifeline, or call 911 if you are in immediate danger. A crisis counselor from our team is being notified.",
		"Your safety matters. If you are thinking about ending your life, please contact 988 now or go to the nearest emergency room. We are connecting you with a counselor.",
		"You do not have to go through this alone. Please reach out to 988 or text HOME to 741741 right now. Someone from our care team will follow up with you.",
	},
	SeverityMedium: {
		"Thank you for sharing this. It sounds really hard. Would you like us to connect you with a counselor?",
		"What you are feeling matters. Your care team can help, and you can reach 988 any time if things get worse.",
		"It takes courage to talk about this. Consider reaching out to your therapist, and remember 988 is available around the clock.",
	},
	SeverityLow: {
		"It sounds like you are carrying a lot right now. Our wellness resources might help, and your care team is here if you want to talk.",
		"Thanks for opening up. Small steps like a short walk or a breathing exercise can help. Let us know if you would like more support.",
		"You are not alone in feeling this way. Would you like some coping resources or to schedule time with a counselor?",
	},
}

// ResponseTemplates returns a copy of the suggested responses for a severity.
func ResponseTemplates(severity Severity) []string {
	return slices.Clone(responseTemplates[severity])
}
