package data

// TaskRequest is the input of task creation and update. It is never stored.
type TaskRequest struct {
	Message    string `json:"message"`
	AssigneeID int64  `json:"assignee_id"`
}

type TaskRequestBuilder struct {
	req TaskRequest
}

func NewTaskRequest() *TaskRequestBuilder {
	return &TaskRequestBuilder{}
}

func (b *TaskRequestBuilder) Message(message string) *TaskRequestBuilder {
	b.req.Message = message
	return b
}

func (b *TaskRequestBuilder) AssigneeID(id int64) *TaskRequestBuilder {
	b.req.AssigneeID = id
	return b
}

func (b *TaskRequestBuilder) Build() TaskRequest {
	return b.req
}
