package mcp

// AskHumanInput is the input for the ask_human MCP tool.
type AskHumanInput struct {
	Question       string `json:"question" jsonschema:"The question to ask the human operator"`
	Context        string `json:"context,omitempty" jsonschema:"Optional background the operator needs to answer well"`
	TimeoutMinutes int    `json:"timeout_minutes,omitempty" jsonschema:"Minutes to wait for an answer. Default 30"`
}

// AskHumanOutput is the output for the ask_human MCP tool.
type AskHumanOutput struct {
	Answer     string `json:"answer" jsonschema:"The operator's reply"`
	QuestionID string `json:"question_id" jsonschema:"ID of the resolved question"`
	ThreadID   string `json:"thread_id,omitempty" jsonschema:"Messaging thread the exchange happened in"`
}

// ListSessionsInput is the input for the list_sessions MCP tool.
type ListSessionsInput struct{}

// SessionInfo is one connected session as reported by list_sessions.
type SessionInfo struct {
	SessionID     string `json:"session_id"`
	Label         string `json:"label"`
	ProjectRoot   string `json:"project_root,omitempty"`
	Status        string `json:"status"`
	QuestionTitle string `json:"question_title,omitempty"`
	ConnectedAt   string `json:"connected_at"`
}

// ListSessionsOutput is the output for the list_sessions MCP tool.
type ListSessionsOutput struct {
	Sessions []SessionInfo `json:"sessions" jsonschema:"Connected sessions in connection order"`
}

// ListPendingQuestionsInput is the input for the list_pending_questions MCP tool.
type ListPendingQuestionsInput struct{}

// QuestionInfo is one pending question as reported by list_pending_questions.
type QuestionInfo struct {
	QuestionID string `json:"question_id"`
	SessionID  string `json:"session_id"`
	Text       string `json:"text"`
	ThreadID   string `json:"thread_id,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// ListPendingQuestionsOutput is the output for the list_pending_questions MCP tool.
type ListPendingQuestionsOutput struct {
	Questions []QuestionInfo `json:"questions" jsonschema:"Questions still awaiting an answer"`
}
