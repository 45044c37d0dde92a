package guardrails

// DetectionPrompt pairs a prompt with the detection it is expected to
// trigger, if any.
type DetectionPrompt struct {
	Content       string
	DetectorID    string
	DetectionName string
	DetectionType string
	DetectionText string
}

const ExampleEmailAddress = "myemail@domain.com"

// PIIInputPrompt triggers the regex email detector on the input side.
var PIIInputPrompt = DetectionPrompt{
	Content:       "This is my email address: " + ExampleEmailAddress + ", just answer ACK.",
	DetectorID:    "regex",
	DetectionName: "EmailAddress",
	DetectionType: "pii",
	DetectionText: ExampleEmailAddress,
}

// PIIOutputPrompt asks the model to produce PII so the output
// detector fires.
var PIIOutputPrompt = DetectionPrompt{
	Content:       "Give me one example email address and nothing else.",
	DetectorID:    "regex",
	DetectionName: "EmailAddress",
	DetectionType: "pii",
}

// HarmlessPrompt must pass every detector untouched.
var HarmlessPrompt = DetectionPrompt{
	Content: "What is the opposite of up?",
}
