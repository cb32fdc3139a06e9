package models

// FilePayload is an uploaded file in a training request. Content is
// base64-encoded; clients that send raw text are accepted too.
type FilePayload struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// TrainRequest is the body of a training submission for one agent.
type TrainRequest struct {
	AgentID   string        `json:"agentId"`
	Source    Source        `json:"source"`
	Text      string        `json:"text,omitempty"`
	SourceURL string        `json:"sourceUrl,omitempty"`
	FileType  string        `json:"fileType,omitempty"`
	Files     []FilePayload `json:"files,omitempty"`
	ChunkSize int           `json:"chunkSize,omitempty"`
	Overlap   int           `json:"overlap,omitempty"`
}
