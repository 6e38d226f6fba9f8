package config

const (
	// MaxQuestionLength is the maximum length for a user question. Questions
	// longer than this are almost certainly pasted content, not questions.
	MaxQuestionLength = 2000

	// MaxConstraintsLength is the maximum length for the optional free-form
	// constraints field.
	MaxConstraintsLength = 1000

	// MaxSessionTitleLength is the maximum length for session titles.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255).
	MaxSessionTitleLength = 255

	// HistoryWindow is how many recent messages are loaded as conversation
	// context for a turn.
	HistoryWindow = 10
)
