package learning

import "strings"

// FeedbackSemantics holds normalized weak-label scores in [0, 1]:
// usefulness (did the reminder likely help progress), timing fit (was the
// moment right), and interrupt cost (disruption at the moment of delivery).
type FeedbackSemantics struct {
	Usefulness    float64
	TimingFit     float64
	InterruptCost float64
	Rationale     string
}

// InferReminderFeedbackSemantics interprets ambiguous reminder feedback into
// weak labels. Dismiss and snooze are not direct negatives; context decides.
func InferReminderFeedbackSemantics(action string, followupWithinMinutes, snoozeMinutes *int) FeedbackSemantics {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "snoozed":
		// Snooze is a timing signal rather than a pure usefulness negative.
		result := FeedbackSemantics{
			Usefulness:    0.7,
			TimingFit:     0.3,
			InterruptCost: 0.7,
			Rationale:     "snoozed interpreted as useful-but-mistimed with elevated interrupt cost",
		}
		if snoozeMinutes != nil && *snoozeMinutes <= 15 {
			result.Usefulness = 0.8
			result.TimingFit = 0.35
			result.InterruptCost = 0.8
		}
		return result

	case "dismissed":
		if followupWithinMinutes != nil && *followupWithinMinutes <= 60 {
			return FeedbackSemantics{
				Usefulness:    0.85,
				TimingFit:     0.65,
				InterruptCost: 0.55,
				Rationale:     "dismissed with quick follow-up interpreted as useful completion signal",
			}
		}
		return FeedbackSemantics{
			Usefulness:    0.25,
			TimingFit:     0.45,
			InterruptCost: 0.35,
			Rationale:     "dismissed without quick follow-up interpreted as low usefulness signal",
		}
	}

	return FeedbackSemantics{
		Usefulness:    0.5,
		TimingFit:     0.5,
		InterruptCost: 0.5,
		Rationale:     "neutral fallback semantics",
	}
}
